package api

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// LoadTest is the definition of a load test as stored on the service.
type LoadTest struct {
	ID        int64
	Name      string
	ProjectID int64
}

// LoadTestTransaction is one transaction defined in a load-test script.
type LoadTestTransaction struct {
	Name       string
	ScriptName string
}

// RunStatus is one status poll observation.
type RunStatus struct {
	Status         string
	DetailedStatus string
}

// TestRun is the run record as returned by GetTestRun, including the
// reference URL for the raw transaction CSV download.
type TestRun struct {
	ID        int64
	Status    string
	TrtCsvURL string
}

// TestRunResults is the aggregate results summary of a finished run.
// Duration and throughput fields keep the service's string formatting;
// the derived accessors below normalize them.
type TestRunResults struct {
	Duration           string
	AverageThroughput  string
	TotalThroughput    string
	AverageHits        string
	VusersNum          int64
	TransactionsPassed int64
	TransactionsFailed int64
	ScriptErrors       int64
	Status             string
}

// TrtSummary holds transaction response time percentiles in seconds.
type TrtSummary struct {
	Min float64
	Max float64
	Avg float64
	P90 float64
}

// TestRunTransaction is per-transaction outcome data for a finished run.
type TestRunTransaction struct {
	Name       string
	ScriptName string
	Passed     int64
	Failed     int64
	Summary    TrtSummary
}

// Measurement is a parsed magnitude that is invalid when the source string
// did not follow the expected format. Invalid is a distinct case, not a
// negative number; Float returns the legacy -1 sentinel for callers that
// still need one.
type Measurement struct {
	Value float64
	Valid bool
}

// Float returns the measurement value, or -1 when invalid.
func (m Measurement) Float() float64 {
	if !m.Valid {
		return -1
	}
	return m.Value
}

// throughputScale maps unit labels to powers of 1024.
var throughputScale = map[string]int{
	"bytes": 0,
	"KB":    1,
	"MB":    2,
	"GB":    3,
	"TB":    4,
	"PB":    5,
	"EB":    6,
	"ZB":    7,
	"YB":    8,
}

// ParseDurationSeconds converts a "H:MM:SS" duration string to total
// seconds. Malformed input reports ok=false instead of a panic or a
// partial value.
func ParseDurationSeconds(s string) (int64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m < 0 {
		return 0, false
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || sec < 0 {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

// ParseThroughput normalizes a "<number> <unit>/s" string to bytes per
// second, where the unit scales by powers of 1024 (bytes, KB, MB, GB, TB,
// PB, EB, ZB, YB). Anything else yields an invalid Measurement.
func ParseThroughput(s string) Measurement {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return Measurement{}
	}
	num, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Measurement{}
	}
	unit, ok := strings.CutSuffix(fields[1], "/s")
	if !ok {
		return Measurement{}
	}
	scale, ok := throughputScale[unit]
	if !ok {
		return Measurement{}
	}
	return Measurement{Value: num * math.Pow(1024, float64(scale)), Valid: true}
}

// ParseHitRate parses a "<number> hits/s" string. The magnitude passes
// through unscaled.
func ParseHitRate(s string) Measurement {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 || fields[1] != "hits/s" {
		return Measurement{}
	}
	num, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Measurement{}
	}
	return Measurement{Value: num, Valid: true}
}

// DurationSeconds returns the run duration in seconds.
func (r TestRunResults) DurationSeconds() (int64, bool) {
	return ParseDurationSeconds(r.Duration)
}

// AverageThroughputBytes returns the average throughput in bytes/s.
func (r TestRunResults) AverageThroughputBytes() Measurement {
	return ParseThroughput(r.AverageThroughput)
}

// TotalThroughputBytes returns the total throughput in bytes/s.
func (r TestRunResults) TotalThroughputBytes() Measurement {
	return ParseThroughput(r.TotalThroughput)
}

// AverageHitRate returns the average hit rate in hits/s.
func (r TestRunResults) AverageHitRate() Measurement {
	return ParseHitRate(r.AverageHits)
}

// ErrorRate is script errors per second of run time. A zero or
// unparseable duration is the caller's boundary condition to handle,
// never silently divided through.
func (r TestRunResults) ErrorRate() (float64, error) {
	secs, ok := r.DurationSeconds()
	if !ok {
		return 0, fmt.Errorf("duration %q is not H:MM:SS", r.Duration)
	}
	if secs == 0 {
		return 0, errors.New("run duration is zero")
	}
	return float64(r.ScriptErrors) / float64(secs), nil
}

// DecodeLoadTest decodes a GetLoadTest payload.
func DecodeLoadTest(data []byte) (LoadTest, error) {
	id := gjson.GetBytes(data, "id")
	if !id.Exists() {
		return LoadTest{}, errors.New("load test payload missing id")
	}
	return LoadTest{
		ID:        id.Int(),
		Name:      gjson.GetBytes(data, "name").String(),
		ProjectID: gjson.GetBytes(data, "projectId").Int(),
	}, nil
}

// DecodeLoadTestTransactions decodes the transaction definitions embedded
// in a GetLoadTest payload, if present.
func DecodeLoadTestTransactions(data []byte) []LoadTestTransaction {
	var out []LoadTestTransaction
	gjson.GetBytes(data, "transactions").ForEach(func(_, item gjson.Result) bool {
		out = append(out, LoadTestTransaction{
			Name:       item.Get("name").String(),
			ScriptName: item.Get("scriptName").String(),
		})
		return true
	})
	return out
}

// DecodeRunID decodes a StartTestRun payload into the new run id.
func DecodeRunID(data []byte) (int64, error) {
	id := gjson.GetBytes(data, "runId")
	if !id.Exists() {
		return 0, errors.New("start run payload missing runId")
	}
	return id.Int(), nil
}

// DecodeRunStatus decodes a GetRunStatus payload.
func DecodeRunStatus(data []byte) (RunStatus, error) {
	status := gjson.GetBytes(data, "status")
	if !status.Exists() {
		return RunStatus{}, errors.New("run status payload missing status")
	}
	return RunStatus{
		Status:         status.String(),
		DetailedStatus: gjson.GetBytes(data, "detailedStatus").String(),
	}, nil
}

// DecodeTestRun decodes a GetTestRun payload.
func DecodeTestRun(data []byte) (TestRun, error) {
	id := gjson.GetBytes(data, "id")
	if !id.Exists() {
		return TestRun{}, errors.New("test run payload missing id")
	}
	return TestRun{
		ID:        id.Int(),
		Status:    gjson.GetBytes(data, "status").String(),
		TrtCsvURL: gjson.GetBytes(data, "trtCsvUrl").String(),
	}, nil
}

// DecodeReportID decodes a GenerateReport payload into the report id.
func DecodeReportID(data []byte) (int64, error) {
	id := gjson.GetBytes(data, "reportId")
	if !id.Exists() {
		return 0, errors.New("generate report payload missing reportId")
	}
	return id.Int(), nil
}

// DecodeTestRunResults decodes a GetResults payload.
func DecodeTestRunResults(data []byte) (TestRunResults, error) {
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return TestRunResults{}, errors.New("results payload is not an object")
	}
	return TestRunResults{
		Duration:           root.Get("duration").String(),
		AverageThroughput:  root.Get("averageThroughput").String(),
		TotalThroughput:    root.Get("totalThroughput").String(),
		AverageHits:        root.Get("averageHits").String(),
		VusersNum:          root.Get("vusersNum").Int(),
		TransactionsPassed: root.Get("totalTransactionsPassed").Int(),
		TransactionsFailed: root.Get("totalTransactionsFailed").Int(),
		ScriptErrors:       root.Get("scriptErrors").Int(),
		Status:             root.Get("status").String(),
	}, nil
}

// DecodeTestRunTransactions decodes a GetTransactions payload.
func DecodeTestRunTransactions(data []byte) ([]TestRunTransaction, error) {
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("transactions payload is not an array")
	}
	var out []TestRunTransaction
	root.ForEach(func(_, item gjson.Result) bool {
		summary := item.Get("trtSummary")
		out = append(out, TestRunTransaction{
			Name:       item.Get("name").String(),
			ScriptName: item.Get("scriptName").String(),
			Passed:     item.Get("passed").Int(),
			Failed:     item.Get("failed").Int(),
			Summary: TrtSummary{
				Min: summary.Get("min").Float(),
				Max: summary.Get("max").Float(),
				Avg: summary.Get("avg").Float(),
				P90: summary.Get("p90").Float(),
			},
		})
		return true
	})
	return out, nil
}
