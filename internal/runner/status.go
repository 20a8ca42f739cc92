package runner

import (
	"errors"
	"strings"
)

// Status is the local view of a run's lifecycle. It advances Created ->
// Starting -> Running -> Collating and ends in exactly one of Passed,
// Failed or Canceled.
type Status int

const (
	StatusCreated Status = iota
	StatusStarting
	StatusRunning
	StatusCollating
	StatusPassed
	StatusFailed
	StatusCanceled
)

// ErrTerminalTransition reports an attempt to move a run out of a
// terminal state. It marks a programming error; callers must not retry.
var ErrTerminalTransition = errors.New("status transition out of a terminal state")

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusCollating:
		return "collating"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// MapRemoteStatus maps the service's status string onto the local
// lifecycle. ok is false for strings the mapping does not know; callers
// keep the previous status in that case.
func MapRemoteStatus(remote string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "INITIALIZING", "CHECKING_STATUS":
		return StatusStarting, true
	case "RUNNING":
		return StatusRunning, true
	case "STOPPING", "COLLATING_RESULTS":
		return StatusCollating, true
	case "PASSED":
		return StatusPassed, true
	case "FAILED", "SYSTEM_ERROR", "HALTED", "ABORTED":
		return StatusFailed, true
	default:
		return StatusCreated, false
	}
}
