package runner_test

import (
	"errors"
	"testing"

	"github.com/loadpilot/loadpilot/internal/runner"
)

func TestTransitionAdvancesLifecycle(t *testing.T) {
	run := runner.NewLoadTestRun(42, "checkout baseline")
	if got := run.Status(); got != runner.StatusCreated {
		t.Fatalf("Status() = %v, want %v", got, runner.StatusCreated)
	}
	for _, next := range []runner.Status{runner.StatusStarting, runner.StatusRunning, runner.StatusCollating, runner.StatusPassed} {
		if err := run.Transition(next); err != nil {
			t.Fatalf("Transition(%v) = %v, want nil", next, err)
		}
	}
	if !run.Passed() {
		t.Error("Passed() = false, want true")
	}
}

func TestTransitionOutOfTerminal(t *testing.T) {
	run := runner.NewLoadTestRun(42, "checkout baseline")
	if err := run.Transition(runner.StatusFailed); err != nil {
		t.Fatalf("Transition(StatusFailed) = %v, want nil", err)
	}
	err := run.Transition(runner.StatusRunning)
	if !errors.Is(err, runner.ErrTerminalTransition) {
		t.Errorf("Transition out of terminal = %v, want ErrTerminalTransition", err)
	}
	if got := run.Status(); got != runner.StatusFailed {
		t.Errorf("Status() after rejected transition = %v, want %v", got, runner.StatusFailed)
	}
}

func TestFailRecordsReason(t *testing.T) {
	run := runner.NewLoadTestRun(42, "checkout baseline")
	if err := run.Fail("status polling failed: connection reset"); err != nil {
		t.Fatalf("Fail() = %v, want nil", err)
	}
	if got := run.Status(); got != runner.StatusFailed {
		t.Errorf("Status() = %v, want %v", got, runner.StatusFailed)
	}
	if run.StatusReason != "status polling failed: connection reset" {
		t.Errorf("StatusReason = %q, want the failure reason", run.StatusReason)
	}

	if err := run.Fail("again"); !errors.Is(err, runner.ErrTerminalTransition) {
		t.Errorf("Fail() on a failed run = %v, want ErrTerminalTransition", err)
	}
}

func TestCancelAbsorbs(t *testing.T) {
	run := runner.NewLoadTestRun(42, "checkout baseline")
	run.Cancel()
	if got := run.Status(); got != runner.StatusCanceled {
		t.Fatalf("Status() = %v, want %v", got, runner.StatusCanceled)
	}
	if run.StatusReason != "canceled" {
		t.Errorf("StatusReason = %q, want %q", run.StatusReason, "canceled")
	}

	run.Cancel()
	if got := run.Status(); got != runner.StatusCanceled {
		t.Errorf("Status() after second Cancel = %v, want %v", got, runner.StatusCanceled)
	}
	if err := run.Fail("late failure"); !errors.Is(err, runner.ErrTerminalTransition) {
		t.Errorf("Fail() on a canceled run = %v, want ErrTerminalTransition", err)
	}
}

func TestCancelAfterVerdictIsNoop(t *testing.T) {
	run := runner.NewLoadTestRun(42, "checkout baseline")
	if err := run.Transition(runner.StatusPassed); err != nil {
		t.Fatalf("Transition(StatusPassed) = %v, want nil", err)
	}
	run.Cancel()
	if got := run.Status(); got != runner.StatusPassed {
		t.Errorf("Status() after Cancel = %v, want %v", got, runner.StatusPassed)
	}
	if run.StatusReason == "canceled" {
		t.Error("Cancel overwrote the reason of a decided run")
	}
}
