// Package runworker executes queued runs through their full lifecycle
// (spec §4.2, §4.12): queued → running → one of {completed,
// completed_with_warnings, degraded_no_evidence, failed_pipeline}. Pool
// is adapted from worker/pool.go's generic worker-pool shape, specialized
// to run execution jobs; Manager enforces the state machine and writes
// every status transition and its RunEvent in one transaction.
package runworker

import "fmt"

// Run lifecycle statuses, spec §4.2.
const (
	StatusQueued                = "queued"
	StatusRunning               = "running"
	StatusCompleted             = "completed"
	StatusCompletedWithWarnings = "completed_with_warnings"
	StatusDegradedNoEvidence    = "degraded_no_evidence"
	StatusFailedPipeline        = "failed_pipeline"
)

func isTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCompletedWithWarnings, StatusDegradedNoEvidence, StatusFailedPipeline:
		return true
	default:
		return false
	}
}

// validTransitions enumerates every allowed (from, to) status pair. A run
// may only move forward: queued → running, and running → exactly one
// terminal status. Terminal statuses never transition again, which is how
// single-worker-per-run enforcement is expressed here: a second worker
// racing to pick up an already-terminal or already-running run finds no
// valid transition and aborts instead of double-processing it.
var validTransitions = map[string]map[string]bool{
	StatusQueued: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusCompleted:             true,
		StatusCompletedWithWarnings: true,
		StatusDegradedNoEvidence:    true,
		StatusFailedPipeline:        true,
	},
}

// ErrInvalidTransition is returned when a requested status change is not
// allowed from the run's current status.
type ErrInvalidTransition struct {
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid run status transition: %s -> %s", e.From, e.To)
}

// checkTransition validates that moving a run from 'from' to 'to' is
// legal, returning an *ErrInvalidTransition if not.
func checkTransition(from, to string) error {
	if allowed, ok := validTransitions[from]; ok && allowed[to] {
		return nil
	}
	return &ErrInvalidTransition{From: from, To: to}
}
