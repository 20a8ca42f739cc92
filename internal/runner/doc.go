// Package runner drives one remote load-test run to a verdict.
//
// The orchestrator starts the run, polls its status at a paced interval
// until the service reports a terminal state, collects report artifacts,
// and assembles the final [LoadTestRun]. Cancellation sends a single
// best-effort stop request to the remote side; the overall wall-clock
// budget is the deadline on the context passed to [Runner.Run].
//
// # Lifecycle
//
// A run advances Created -> Starting -> Running -> Collating and ends in
// exactly one of Passed, Failed or Canceled. Terminal states are final:
// nothing moves a run out of one, and late cancellation is a no-op.
//
// # Failure policy
//
// Only three things fail a run locally: a persistent polling failure
// ([PollingFailure]), the overall deadline ([ErrRunTimeout]), and a
// failure to start. Everything in the report phase is independently
// fallible; a missed artifact is logged and recorded as absent without
// touching the verdict.
package runner
