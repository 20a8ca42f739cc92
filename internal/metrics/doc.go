// Package metrics collects latency and outcome statistics for the remote
// API calls issued during a run.
//
// The central [Collector] type aggregates one histogram per operation:
//
//	collector := metrics.NewCollector()
//
//	// Record one call attempt
//	collector.RecordCall("GetRunStatus", 200, latency, nil)
//
//	// Per-operation statistics, sorted by operation name
//	stats := collector.Snapshot()
//
// Response codes are bucketed per operation ([Collector.StatusBuckets])
// and failures are grouped by error type ([Collector.ErrorBreakdown]).
// Both feed the debug summary printed after a run.
package metrics
