package runner

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/loadpilot/loadpilot/internal/api"
)

const (
	// stopRequestTimeout bounds the best-effort stop sent on cancellation;
	// the parent context is already dead at that point.
	stopRequestTimeout = 30 * time.Second

	// lastChanceTimeout bounds the single report fetch attempted after the
	// report budget elapsed.
	lastChanceTimeout = 10 * time.Second
)

// ErrRunTimeout reports that the overall run deadline elapsed while the
// remote run had not yet reached a terminal status. The run ends Failed,
// distinct from a failure the service itself reported.
var ErrRunTimeout = errors.New("run timed out")

// PollingFailure reports that status polling failed persistently: the
// client's retry budget was exhausted or the service answered with a
// fatal status. The run ends Failed without further polling.
type PollingFailure struct {
	RunID int64
	Err   error
}

func (e *PollingFailure) Error() string {
	return fmt.Sprintf("polling run %d failed: %v", e.RunID, e.Err)
}

func (e *PollingFailure) Unwrap() error { return e.Err }

// Client is the slice of the API client the orchestrator drives. The
// concrete *api.Client satisfies it; tests substitute fakes.
type Client interface {
	ValidateTenant(ctx context.Context, testID int) (*api.LoadTest, error)
	Execute(ctx context.Context, op api.Operation, vars map[string]string, query url.Values, payload any) ([]byte, error)
	StopRun(ctx context.Context, runID int64) error
	GetReport(ctx context.Context, reportID int64) ([]byte, bool, error)
	DownloadCsv(ctx context.Context, refURL string) ([]byte, error)
}

// Runner drives one remote load-test run end to end: start, status
// polling, cancellation, report collection, final verdict.
type Runner struct {
	client Client
	opts   Options
}

// New builds a Runner. Zero intervals and budgets in opts take their
// defaults, shortened when TestMode is set.
func New(client Client, opts Options) *Runner {
	opts.normalize()
	return &Runner{client: client, opts: opts}
}

// Run drives one run of the given load test to a verdict. Whenever a
// remote run was started the returned LoadTestRun is non-nil, error or
// not, and its status carries the verdict. The overall wall-clock budget
// is the deadline on ctx; canceling ctx stops the remote run best-effort
// and ends the local run as Canceled.
func (r *Runner) Run(ctx context.Context, testID int) (*LoadTestRun, error) {
	lt, err := r.client.ValidateTenant(ctx, testID)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("test_id", testID).
		Str("test_name", lt.Name).
		Int64("project_id", lt.ProjectID).
		Msg("load test validated")

	run := NewLoadTestRun(testID, lt.Name)
	if err := r.start(ctx, run, lt.ProjectID); err != nil {
		if ctx.Err() != nil {
			return run, r.unwind(ctx, run)
		}
		if ferr := run.Fail(fmt.Sprintf("starting the run failed: %v", err)); ferr != nil {
			return run, ferr
		}
		return run, err
	}

	remoteDone, err := r.pollStatus(ctx, run)
	if err != nil {
		return run, err
	}
	if remoteDone {
		r.collectArtifacts(ctx, run)
		run.HasReport = len(run.ReportData) > 0
	}

	log.Info().
		Int64("run_id", run.ID).
		Stringer("status", run.Status()).
		Bool("has_report", run.HasReport).
		Msg("run finished")
	return run, nil
}

// start issues StartTestRun and moves the run to Starting.
func (r *Runner) start(ctx context.Context, run *LoadTestRun, projectID int64) error {
	vars := map[string]string{
		api.VarProjectID:  strconv.FormatInt(projectID, 10),
		api.VarLoadTestID: strconv.Itoa(run.TestID),
	}
	payload := map[string]any{"sendEmail": r.opts.SendEmail}
	if r.opts.Initiator != "" {
		payload["initiator"] = r.opts.Initiator
	}

	body, err := r.client.Execute(ctx, api.OpStartTestRun, vars, nil, payload)
	if err != nil {
		return err
	}
	id, err := api.DecodeRunID(body)
	if err != nil {
		return err
	}

	run.ID = id
	run.StartedAt = time.Now()
	if err := run.Transition(StatusStarting); err != nil {
		return err
	}
	log.Info().Int64("run_id", id).Int("test_id", run.TestID).Msg("run started")
	return nil
}

// pollStatus polls GetRunStatus until the remote side reports a terminal
// status. It returns true only when that happened; cancellation, the run
// deadline and persistent poll failures all end the run without a remote
// verdict.
func (r *Runner) pollStatus(ctx context.Context, run *LoadTestRun) (bool, error) {
	vars := map[string]string{api.VarRunID: strconv.FormatInt(run.ID, 10)}
	pacer := rate.NewLimiter(rate.Every(r.opts.StatusInterval), 1)

	for {
		if err := pacer.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// The pacer refused because the next slot falls past
				// the run deadline; wait it out so the cause is real.
				<-ctx.Done()
			}
			return false, r.unwind(ctx, run)
		}

		body, err := r.client.Execute(ctx, api.OpGetRunStatus, vars, nil, nil)
		if err != nil {
			if ctx.Err() != nil {
				return false, r.unwind(ctx, run)
			}
			return false, r.escalate(run, err)
		}
		st, err := api.DecodeRunStatus(body)
		if err != nil {
			return false, r.escalate(run, err)
		}

		run.RemoteStatus = st.Status
		if st.DetailedStatus != "" {
			run.StatusReason = st.DetailedStatus
		}

		next, ok := MapRemoteStatus(st.Status)
		if !ok {
			log.Debug().
				Int64("run_id", run.ID).
				Str("remote_status", st.Status).
				Msg("unrecognized run status, keeping previous")
			continue
		}
		if next == run.Status() {
			continue
		}
		if err := run.Transition(next); err != nil {
			return false, err
		}
		log.Info().
			Int64("run_id", run.ID).
			Str("remote_status", st.Status).
			Stringer("status", next).
			Msg("run status changed")
		if next.Terminal() {
			run.EndedAt = time.Now()
			return true, nil
		}
	}
}

// escalate turns a persistent poll failure into the run's failure.
func (r *Runner) escalate(run *LoadTestRun, cause error) error {
	if err := run.Fail(fmt.Sprintf("status polling failed: %v", cause)); err != nil {
		return err
	}
	run.EndedAt = time.Now()
	return &PollingFailure{RunID: run.ID, Err: cause}
}

// unwind handles a dead context observed while the run is in flight. A
// deadline means the run overran its budget and ends Failed; an
// interrupt ends it Canceled. Both send exactly one best-effort stop to
// the remote side.
func (r *Runner) unwind(ctx context.Context, run *LoadTestRun) error {
	cause := ctx.Err()
	r.stopRemote(run)
	run.EndedAt = time.Now()

	if errors.Is(cause, context.DeadlineExceeded) {
		last := run.RemoteStatus
		if last == "" {
			last = "unknown"
		}
		if err := run.Fail("run did not finish before the configured timeout"); err != nil {
			return err
		}
		return fmt.Errorf("%w: run %d last reported %q", ErrRunTimeout, run.ID, last)
	}
	run.Cancel()
	return cause
}

// stopRemote asks the service to stop the run. The parent context is
// already dead here, so the request runs on its own bounded context; a
// failure is logged, never escalated.
func (r *Runner) stopRemote(run *LoadTestRun) {
	if run.ID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopRequestTimeout)
	defer cancel()
	if err := r.client.StopRun(ctx, run.ID); err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("stop request failed")
		return
	}
	log.Info().Int64("run_id", run.ID).Msg("requested remote stop")
}

// collectArtifacts runs the report phase: results and transaction
// summaries, the raw transaction CSV, and unless skipped the PDF report.
// Every artifact is independently fallible; a missed one is logged and
// recorded as absent but never changes the verdict.
func (r *Runner) collectArtifacts(ctx context.Context, run *LoadTestRun) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ReportTimeout)
	defer cancel()

	vars := map[string]string{api.VarRunID: strconv.FormatInt(run.ID, 10)}
	r.fetchResults(ctx, run, vars)
	r.fetchTransactions(ctx, run, vars)
	r.fetchRawTransactionCsv(ctx, run, vars)
	if r.opts.SkipPDFReport {
		log.Info().Int64("run_id", run.ID).Msg("PDF report skipped")
		return
	}
	r.fetchPDFReport(ctx, run, vars)
}

func (r *Runner) fetchResults(ctx context.Context, run *LoadTestRun, vars map[string]string) {
	body, err := r.client.Execute(ctx, api.OpGetResults, vars, nil, nil)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("results summary unavailable")
		return
	}
	results, err := api.DecodeTestRunResults(body)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("results summary unreadable")
		return
	}
	run.Results = &results
}

func (r *Runner) fetchTransactions(ctx context.Context, run *LoadTestRun, vars map[string]string) {
	body, err := r.client.Execute(ctx, api.OpGetTransactions, vars, nil, nil)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("transaction summary unavailable")
		return
	}
	txns, err := api.DecodeTestRunTransactions(body)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("transaction summary unreadable")
		return
	}
	run.Transactions = txns

	data, err := transactionsCsv(txns)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("transaction CSV not built")
		return
	}
	run.ReportData[r.artifactName("trans", run.ID, "csv")] = data
}

// fetchRawTransactionCsv follows the reference URL on the run record to
// the service-rendered transaction CSV.
func (r *Runner) fetchRawTransactionCsv(ctx context.Context, run *LoadTestRun, vars map[string]string) {
	body, err := r.client.Execute(ctx, api.OpGetTestRun, vars, nil, nil)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("run record unavailable")
		return
	}
	record, err := api.DecodeTestRun(body)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("run record unreadable")
		return
	}
	if record.TrtCsvURL == "" {
		log.Debug().Int64("run_id", run.ID).Msg("no raw transaction CSV reference")
		return
	}
	data, err := r.client.DownloadCsv(ctx, record.TrtCsvURL)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("raw transaction CSV unavailable")
		return
	}
	run.ReportData[r.artifactName("trt_raw", run.ID, "csv")] = data
}

func (r *Runner) fetchPDFReport(ctx context.Context, run *LoadTestRun, vars map[string]string) {
	body, err := r.client.Execute(ctx, api.OpGenerateReport, vars, nil, map[string]string{"reportType": "pdf"})
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("report generation not accepted")
		return
	}
	reportID, err := api.DecodeReportID(body)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("report generation unreadable")
		return
	}

	data, err := r.awaitReport(ctx, reportID)
	if err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Int64("report_id", reportID).Msg("PDF report unavailable")
		return
	}
	run.ReportData[r.artifactName("", run.ID, "pdf")] = data
	log.Info().Int64("run_id", run.ID).Int64("report_id", reportID).Msg("PDF report downloaded")
}

// awaitReport polls the generated report until it is ready or the report
// budget elapses. A report that became ready just as the budget ran out
// still gets one final fetch on a fresh context.
func (r *Runner) awaitReport(ctx context.Context, reportID int64) ([]byte, error) {
	pacer := rate.NewLimiter(rate.Every(r.opts.ReportInterval), 1)
	for {
		if err := pacer.Wait(ctx); err != nil {
			return r.lastChanceReport(reportID, err)
		}
		data, ready, err := r.client.GetReport(ctx, reportID)
		if err != nil {
			if ctx.Err() != nil {
				return r.lastChanceReport(reportID, err)
			}
			return nil, err
		}
		if ready {
			return data, nil
		}
		log.Debug().Int64("report_id", reportID).Msg("report not ready")
	}
}

func (r *Runner) lastChanceReport(reportID int64, cause error) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lastChanceTimeout)
	defer cancel()
	data, ready, err := r.client.GetReport(ctx, reportID)
	if err == nil && ready {
		return data, nil
	}
	return nil, cause
}

// artifactName builds the file name for a fetched artifact, for example
// lrc_report_demo-1024.pdf or lrc_report_trans_demo-1024.csv.
func (r *Runner) artifactName(kind string, runID int64, ext string) string {
	base := "lrc_report_"
	if kind != "" {
		base += kind + "_"
	}
	return fmt.Sprintf("%s%s-%d.%s", base, r.opts.Tenant, runID, ext)
}

// transactionsCsv renders per-transaction outcomes as CSV. Time columns
// are seconds with millisecond precision.
func transactionsCsv(txns []api.TestRunTransaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Transaction", "Script", "Passed", "Failed", "Min", "Max", "Avg", "P90"}); err != nil {
		return nil, err
	}
	for _, t := range txns {
		record := []string{
			t.Name,
			t.ScriptName,
			strconv.FormatInt(t.Passed, 10),
			strconv.FormatInt(t.Failed, 10),
			formatSeconds(t.Summary.Min),
			formatSeconds(t.Summary.Max),
			formatSeconds(t.Summary.Avg),
			formatSeconds(t.Summary.P90),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
