package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records latency and outcome for remote API calls in a
// thread-safe manner, keyed by operation.
type Collector struct {
	mu           sync.Mutex
	ops          map[string]*opRecord
	statusByOp   map[string]map[string]int
	errorsByType map[string]int64
	start        time.Time
}

type opRecord struct {
	hist     *hdrhistogram.Histogram
	calls    int64
	failures int64
	sum      time.Duration
	min      time.Duration
	max      time.Duration
}

// OperationStats is the aggregated view of one operation's calls.
type OperationStats struct {
	Operation     string  `json:"operation"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
}

func NewCollector() *Collector {
	return &Collector{
		ops:          make(map[string]*opRecord),
		statusByOp:   make(map[string]map[string]int),
		errorsByType: make(map[string]int64),
		start:        time.Now(),
	}
}

func newOpRecord() *opRecord {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &opRecord{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// RecordCall records one API call attempt. A statusCode of zero means the
// request never produced a response.
func (c *Collector) RecordCall(operation string, statusCode int, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.ops[operation]
	if !ok {
		rec = newOpRecord()
		c.ops[operation] = rec
	}

	if latency > 0 {
		us := latency.Microseconds()
		if us < rec.hist.LowestTrackableValue() {
			us = rec.hist.LowestTrackableValue()
		}
		if us > rec.hist.HighestTrackableValue() {
			us = rec.hist.HighestTrackableValue()
		}
		_ = rec.hist.RecordValue(us)
	}
	rec.calls++
	rec.sum += latency
	if rec.min == 0 || latency < rec.min {
		rec.min = latency
	}
	if latency > rec.max {
		rec.max = latency
	}

	if statusCode > 0 {
		codes, ok := c.statusByOp[operation]
		if !ok {
			codes = make(map[string]int)
			c.statusByOp[operation] = codes
		}
		codes[strconv.Itoa(statusCode)]++
	}

	if err != nil {
		rec.failures++
		errorType := fmt.Sprintf("%T", err)
		if len(errorType) > 30 {
			errorType = errorType[len(errorType)-30:]
		}
		c.errorsByType[errorType]++
	}
}

// Snapshot returns per-operation statistics sorted by operation name.
func (c *Collector) Snapshot() []OperationStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := make([]OperationStats, 0, len(c.ops))
	for op, rec := range c.ops {
		s := OperationStats{
			Operation:    op,
			Calls:        rec.calls,
			Failures:     rec.failures,
			MinLatencyMs: float64(rec.min) / float64(time.Millisecond),
			MaxLatencyMs: float64(rec.max) / float64(time.Millisecond),
		}
		if rec.calls > 0 {
			s.MeanLatencyMs = float64(rec.sum) / float64(rec.calls) / float64(time.Millisecond)
		}
		if rec.hist.TotalCount() > 0 {
			s.P95LatencyMs = float64(rec.hist.ValueAtQuantile(95)) / 1000.0
		}
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Operation < stats[j].Operation })
	return stats
}

// TotalCalls returns the number of recorded call attempts across all
// operations.
func (c *Collector) TotalCalls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, rec := range c.ops {
		total += rec.calls
	}
	return total
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// StatusBuckets returns response-code counts per operation, sorted by
// descending count.
func (c *Collector) StatusBuckets() []StatusBucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FlattenStatusBuckets(c.statusByOp)
}

// ErrorBreakdown returns a map of error types to their counts.
func (c *Collector) ErrorBreakdown() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		result[k] = int(v)
	}
	return result
}
