package runner

import (
	"fmt"
	"time"

	"github.com/loadpilot/loadpilot/internal/api"
)

// LoadTestRun is the aggregate state of one remote run. The orchestrator
// goroutine is its only writer; everyone else receives it after Run
// returns, or reads an immutable snapshot.
type LoadTestRun struct {
	ID       int64
	TestID   int
	TestName string

	status Status

	// RemoteStatus is the service's raw status string from the most
	// recent poll; StatusReason carries the detailed status or the
	// local failure reason.
	RemoteStatus string
	StatusReason string

	StartedAt time.Time
	EndedAt   time.Time

	// Results and Transactions are populated during the report phase
	// when the respective fetches succeed.
	Results      *api.TestRunResults
	Transactions []api.TestRunTransaction

	// ReportData maps artifact file names to fetched contents. A
	// missing key is a recorded absence, not an error.
	ReportData map[string][]byte
	HasReport  bool
}

// NewLoadTestRun builds the aggregate for a run that has not started.
func NewLoadTestRun(testID int, testName string) *LoadTestRun {
	return &LoadTestRun{
		TestID:     testID,
		TestName:   testName,
		status:     StatusCreated,
		ReportData: make(map[string][]byte),
	}
}

// Status returns the current lifecycle state.
func (r *LoadTestRun) Status() Status {
	return r.status
}

// Passed reports the final verdict.
func (r *LoadTestRun) Passed() bool {
	return r.status == StatusPassed
}

// Transition moves the run to next. Once a terminal state is reached the
// run absorbs no further transitions; attempting one is a programming
// error reported as ErrTerminalTransition.
func (r *LoadTestRun) Transition(next Status) error {
	if r.status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalTransition, r.status, next)
	}
	r.status = next
	return nil
}

// Fail transitions to Failed and records the reason shown to the user.
func (r *LoadTestRun) Fail(reason string) error {
	if err := r.Transition(StatusFailed); err != nil {
		return err
	}
	r.StatusReason = reason
	return nil
}

// Cancel transitions to Canceled. Already-terminal runs are left alone;
// cancellation after the verdict changes nothing.
func (r *LoadTestRun) Cancel() {
	if r.status.Terminal() {
		return
	}
	r.status = StatusCanceled
	r.StatusReason = "canceled"
}
