package metrics_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loadpilot/loadpilot/internal/metrics"
)

func TestRecordCallAggregates(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordCall("GetRunStatus", 200, 10*time.Millisecond, nil)
	c.RecordCall("GetRunStatus", 200, 30*time.Millisecond, nil)
	c.RecordCall("StartTestRun", 500, 5*time.Millisecond, errors.New("server error"))

	if got := c.TotalCalls(); got != 3 {
		t.Errorf("TotalCalls() = %d, want 3", got)
	}

	stats := c.Snapshot()
	if len(stats) != 2 {
		t.Fatalf("Snapshot() returned %d operations, want 2", len(stats))
	}

	// Sorted by operation name.
	if stats[0].Operation != "GetRunStatus" || stats[1].Operation != "StartTestRun" {
		t.Errorf("Snapshot() order = %q, %q; want GetRunStatus, StartTestRun", stats[0].Operation, stats[1].Operation)
	}

	status := stats[0]
	if status.Calls != 2 || status.Failures != 0 {
		t.Errorf("GetRunStatus calls/failures = %d/%d, want 2/0", status.Calls, status.Failures)
	}
	if status.MinLatencyMs != 10 {
		t.Errorf("MinLatencyMs = %v, want 10", status.MinLatencyMs)
	}
	if status.MaxLatencyMs != 30 {
		t.Errorf("MaxLatencyMs = %v, want 30", status.MaxLatencyMs)
	}
	if status.MeanLatencyMs != 20 {
		t.Errorf("MeanLatencyMs = %v, want 20", status.MeanLatencyMs)
	}

	start := stats[1]
	if start.Failures != 1 {
		t.Errorf("StartTestRun failures = %d, want 1", start.Failures)
	}
}

func TestRecordCallStatusBuckets(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordCall("GetRunStatus", 200, time.Millisecond, nil)
	c.RecordCall("GetRunStatus", 200, time.Millisecond, nil)
	c.RecordCall("GetRunStatus", 503, time.Millisecond, errors.New("unavailable"))
	// No response at all: no status bucket.
	c.RecordCall("GetReport", 0, 0, errors.New("dial timeout"))

	buckets := c.StatusBuckets()
	if len(buckets) != 2 {
		t.Fatalf("StatusBuckets() returned %d rows, want 2", len(buckets))
	}
	if buckets[0].Operation != "GetRunStatus" || buckets[0].Code != "200" || buckets[0].Count != 2 {
		t.Errorf("top bucket = %+v, want GetRunStatus/200 x2", buckets[0])
	}
	if buckets[1].Code != "503" || buckets[1].Count != 1 {
		t.Errorf("second bucket = %+v, want GetRunStatus/503 x1", buckets[1])
	}
}

func TestErrorBreakdown(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordCall("StartTestRun", 500, time.Millisecond, errors.New("a"))
	c.RecordCall("StartTestRun", 500, time.Millisecond, errors.New("b"))

	breakdown := c.ErrorBreakdown()
	if len(breakdown) != 1 {
		t.Fatalf("ErrorBreakdown() has %d types, want 1", len(breakdown))
	}
	for _, count := range breakdown {
		if count != 2 {
			t.Errorf("error count = %d, want 2", count)
		}
	}
}

func TestP95FromHistogram(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 100; i++ {
		c.RecordCall("GetRunStatus", 200, time.Duration(i)*time.Millisecond, nil)
	}

	stats := c.Snapshot()
	if len(stats) != 1 {
		t.Fatalf("Snapshot() returned %d operations, want 1", len(stats))
	}
	p95 := stats[0].P95LatencyMs
	if p95 < 90 || p95 > 100 {
		t.Errorf("P95LatencyMs = %v, want in [90, 100]", p95)
	}
}

func TestRecordCallConcurrent(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.RecordCall("GetRunStatus", 200, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	if got := c.TotalCalls(); got != 400 {
		t.Errorf("TotalCalls() = %d, want 400", got)
	}
}
