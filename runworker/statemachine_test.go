package runworker

import "testing"

func TestCheckTransitionQueuedToRunningAllowed(t *testing.T) {
	if err := checkTransition(StatusQueued, StatusRunning); err != nil {
		t.Fatal(err)
	}
}

func TestCheckTransitionRunningToEachTerminalStatusAllowed(t *testing.T) {
	for _, terminal := range []string{StatusCompleted, StatusCompletedWithWarnings, StatusDegradedNoEvidence, StatusFailedPipeline} {
		if err := checkTransition(StatusRunning, terminal); err != nil {
			t.Fatalf("expected running -> %s to be allowed: %v", terminal, err)
		}
	}
}

func TestCheckTransitionQueuedToTerminalRejected(t *testing.T) {
	if err := checkTransition(StatusQueued, StatusCompleted); err == nil {
		t.Fatal("expected queued -> completed to be rejected")
	}
}

func TestCheckTransitionFromTerminalRejected(t *testing.T) {
	if err := checkTransition(StatusCompleted, StatusRunning); err == nil {
		t.Fatal("expected re-claiming a terminal run to be rejected, enforcing single-worker-per-run")
	}
}

func TestCheckTransitionRunningToRunningRejected(t *testing.T) {
	if err := checkTransition(StatusRunning, StatusRunning); err == nil {
		t.Fatal("expected a second worker claiming an already-running run to be rejected")
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusCompletedWithWarnings, StatusDegradedNoEvidence, StatusFailedPipeline} {
		if !isTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	if isTerminal(StatusQueued) || isTerminal(StatusRunning) {
		t.Fatal("expected queued/running to be non-terminal")
	}
}
