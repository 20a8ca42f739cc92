package metrics_test

import (
	"testing"

	"github.com/loadpilot/loadpilot/internal/metrics"
)

func TestFlattenStatusBuckets(t *testing.T) {
	buckets := map[string]map[string]int{
		"GetRunStatus": {"200": 40, "503": 2},
		"StartTestRun": {"200": 1},
		"GetReport":    {"404": 2},
	}

	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) != 4 {
		t.Fatalf("FlattenStatusBuckets() returned %d rows, want 4", len(rows))
	}

	if rows[0].Operation != "GetRunStatus" || rows[0].Code != "200" || rows[0].Count != 40 {
		t.Errorf("rows[0] = %+v, want GetRunStatus/200 x40", rows[0])
	}

	// Ties sort by operation, then code.
	if rows[1].Count != 2 || rows[2].Count != 2 {
		t.Fatalf("rows[1], rows[2] counts = %d, %d, want both 2", rows[1].Count, rows[2].Count)
	}
	if rows[1].Operation != "GetReport" || rows[2].Operation != "GetRunStatus" {
		t.Errorf("tie order = %q, %q; want GetReport before GetRunStatus", rows[1].Operation, rows[2].Operation)
	}
}

func TestFlattenStatusBucketsEmpty(t *testing.T) {
	if rows := metrics.FlattenStatusBuckets(nil); rows != nil {
		t.Errorf("FlattenStatusBuckets(nil) = %v, want nil", rows)
	}
}
