package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/loadpilot/loadpilot/internal/api"
	"github.com/loadpilot/loadpilot/internal/metrics"
	"github.com/loadpilot/loadpilot/internal/runner"
)

// PrintSummary writes the human-readable outcome of a finished run.
func PrintSummary(w io.Writer, run *runner.LoadTestRun) {
	fmt.Fprintln(w, "\n--- Load Test Run Summary ---")
	fmt.Fprintf(w, "Test:            %s (id %d)\n", run.TestName, run.TestID)
	if run.ID != 0 {
		fmt.Fprintf(w, "Run ID:          %d\n", run.ID)
	}
	fmt.Fprintf(w, "Status:          %s\n", run.Status())
	if run.StatusReason != "" {
		fmt.Fprintf(w, "Reason:          %s\n", run.StatusReason)
	}
	if run.RemoteStatus != "" {
		fmt.Fprintf(w, "Remote Status:   %s\n", run.RemoteStatus)
	}
	if !run.StartedAt.IsZero() && !run.EndedAt.IsZero() {
		fmt.Fprintf(w, "Wall Clock:      %s\n", run.EndedAt.Sub(run.StartedAt).Truncate(time.Second))
	}

	if r := run.Results; r != nil {
		fmt.Fprintln(w, "\nResults:")
		fmt.Fprintf(w, "  Duration:         %s\n", formatRunDuration(r))
		fmt.Fprintf(w, "  Vusers:           %d\n", r.VusersNum)
		fmt.Fprintf(w, "  Transactions:     %d passed, %d failed\n", r.TransactionsPassed, r.TransactionsFailed)
		fmt.Fprintf(w, "  Script Errors:    %d\n", r.ScriptErrors)
		fmt.Fprintf(w, "  Avg Throughput:   %s\n", formatMeasurement(r.AverageThroughputBytes(), "bytes/s"))
		fmt.Fprintf(w, "  Total Throughput: %s\n", formatMeasurement(r.TotalThroughputBytes(), "bytes/s"))
		fmt.Fprintf(w, "  Avg Hit Rate:     %s\n", formatMeasurement(r.AverageHitRate(), "hits/s"))
		fmt.Fprintf(w, "  Error Rate:       %s\n", formatErrorRate(r))
	}

	if len(run.Transactions) > 0 {
		fmt.Fprintln(w, "\nTransactions:")
		for _, tx := range run.Transactions {
			fmt.Fprintf(w, "  - %s (%s): passed=%d, failed=%d, avg=%.3fs, p90=%.3fs\n",
				tx.Name, tx.ScriptName, tx.Passed, tx.Failed, tx.Summary.Avg, tx.Summary.P90)
		}
	}

	if run.HasReport {
		names := make([]string, 0, len(run.ReportData))
		for name := range run.ReportData {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "\nReport Artifacts:")
		for _, name := range names {
			fmt.Fprintf(w, "  - %s (%d bytes)\n", name, len(run.ReportData[name]))
		}
	} else {
		fmt.Fprintln(w, "\nReport Artifacts: none")
	}
}

// Summary is the JSON shape of a finished run, written for downstream
// tooling. Unparseable service measurements carry the -1 sentinel.
type Summary struct {
	RunID        int64                `json:"runId"`
	TestID       int                  `json:"testId"`
	TestName     string               `json:"testName"`
	Status       string               `json:"status"`
	Reason       string               `json:"reason,omitempty"`
	RemoteStatus string               `json:"remoteStatus,omitempty"`
	Passed       bool                 `json:"passed"`
	HasReport    bool                 `json:"hasReport"`
	Artifacts    []string             `json:"artifacts,omitempty"`
	Results      *ResultsSummary      `json:"results,omitempty"`
	Transactions []TransactionSummary `json:"transactions,omitempty"`
}

// ResultsSummary carries the run's aggregate measurements in normalized
// units.
type ResultsSummary struct {
	Duration             string  `json:"duration,omitempty"`
	DurationSeconds      int64   `json:"durationSeconds"`
	VusersNum            int64   `json:"vusersNum"`
	TransactionsPassed   int64   `json:"transactionsPassed"`
	TransactionsFailed   int64   `json:"transactionsFailed"`
	ScriptErrors         int64   `json:"scriptErrors"`
	AvgThroughputBytes   float64 `json:"avgThroughputBytes"`
	TotalThroughputBytes float64 `json:"totalThroughputBytes"`
	AvgHitsPerSecond     float64 `json:"avgHitsPerSecond"`
	ErrorsPerSecond      float64 `json:"errorsPerSecond,omitempty"`
}

// TransactionSummary is one transaction's outcome in seconds.
type TransactionSummary struct {
	Name       string  `json:"name"`
	ScriptName string  `json:"scriptName,omitempty"`
	Passed     int64   `json:"passed"`
	Failed     int64   `json:"failed"`
	MinSeconds float64 `json:"minSeconds"`
	MaxSeconds float64 `json:"maxSeconds"`
	AvgSeconds float64 `json:"avgSeconds"`
	P90Seconds float64 `json:"p90Seconds"`
}

// NewSummary flattens a finished run into its JSON shape.
func NewSummary(run *runner.LoadTestRun) Summary {
	s := Summary{
		RunID:        run.ID,
		TestID:       run.TestID,
		TestName:     run.TestName,
		Status:       run.Status().String(),
		Reason:       run.StatusReason,
		RemoteStatus: run.RemoteStatus,
		Passed:       run.Passed(),
		HasReport:    run.HasReport,
	}
	if len(run.ReportData) > 0 {
		s.Artifacts = make([]string, 0, len(run.ReportData))
		for name := range run.ReportData {
			s.Artifacts = append(s.Artifacts, name)
		}
		sort.Strings(s.Artifacts)
	}
	if r := run.Results; r != nil {
		rs := ResultsSummary{
			Duration:             r.Duration,
			DurationSeconds:      -1,
			VusersNum:            r.VusersNum,
			TransactionsPassed:   r.TransactionsPassed,
			TransactionsFailed:   r.TransactionsFailed,
			ScriptErrors:         r.ScriptErrors,
			AvgThroughputBytes:   r.AverageThroughputBytes().Float(),
			TotalThroughputBytes: r.TotalThroughputBytes().Float(),
			AvgHitsPerSecond:     r.AverageHitRate().Float(),
		}
		if secs, ok := r.DurationSeconds(); ok {
			rs.DurationSeconds = secs
		}
		if rate, err := r.ErrorRate(); err == nil {
			rs.ErrorsPerSecond = rate
		}
		s.Results = &rs
	}
	for _, tx := range run.Transactions {
		s.Transactions = append(s.Transactions, TransactionSummary{
			Name:       tx.Name,
			ScriptName: tx.ScriptName,
			Passed:     tx.Passed,
			Failed:     tx.Failed,
			MinSeconds: tx.Summary.Min,
			MaxSeconds: tx.Summary.Max,
			AvgSeconds: tx.Summary.Avg,
			P90Seconds: tx.Summary.P90,
		})
	}
	return s
}

// PrintJSONSummary writes the run summary as indented JSON.
func PrintJSONSummary(w io.Writer, run *runner.LoadTestRun) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewSummary(run))
}

// PrintAPIStats writes per-operation statistics for the API calls made
// during the run. Intended for debug output.
func PrintAPIStats(w io.Writer, c *metrics.Collector) {
	stats := c.Snapshot()
	if len(stats) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- API Call Statistics ---")
	fmt.Fprintf(w, "Total Calls:     %d\n", c.TotalCalls())
	fmt.Fprintf(w, "Elapsed:         %s\n", c.Elapsed().Truncate(time.Millisecond))
	for _, s := range stats {
		fmt.Fprintf(w, "  - %s: calls=%d, failures=%d, mean=%.1fms, p95=%.1fms\n",
			s.Operation, s.Calls, s.Failures, s.MeanLatencyMs, s.P95LatencyMs)
	}
	if rows := c.StatusBuckets(); len(rows) > 0 {
		fmt.Fprintln(w, "\n  Status Codes:")
		for _, row := range rows {
			fmt.Fprintf(w, "    %s %s: %d\n", row.Operation, row.Code, row.Count)
		}
	}
	if errs := c.ErrorBreakdown(); len(errs) > 0 {
		fmt.Fprintln(w, "\n  Errors:")
		names := make([]string, 0, len(errs))
		for name := range errs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "    %s: %d\n", metrics.FriendlyErrorName(name), errs[name])
		}
	}
}

func formatRunDuration(r *api.TestRunResults) string {
	if secs, ok := r.DurationSeconds(); ok {
		return fmt.Sprintf("%s (%ds)", r.Duration, secs)
	}
	if r.Duration == "" {
		return "n/a"
	}
	return r.Duration
}

func formatMeasurement(m api.Measurement, unit string) string {
	if !m.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.1f %s", m.Value, unit)
}

func formatErrorRate(r *api.TestRunResults) string {
	rate, err := r.ErrorRate()
	if err != nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f errors/s", rate)
}
