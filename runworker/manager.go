package runworker

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"compliance.evalgo.org/entities"
)

// Manager enforces the run lifecycle state machine against Postgres via
// GORM, writing a Run's status change and its RunEvent row in a single
// transaction (spec §4.12 — a run must never show a status change with no
// corresponding event, or vice versa).
type Manager struct {
	db *gorm.DB
}

// NewManager builds a Manager.
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// EventType values recorded in RunEvent.EventType.
const (
	EventStatusChanged = "status_changed"
	EventRunFailed     = "run_failed"
)

// Transition moves the run identified by runID from its current status to
// to, recording eventType/payload in the same transaction. It re-reads
// the run's current status from Postgres inside the transaction so two
// workers racing on the same run serialize on the row lock rather than
// both succeeding.
func (m *Manager) Transition(runID uint, to string, eventType string, payload map[string]interface{}) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		var run entities.Run
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&run, runID).Error; err != nil {
			return fmt.Errorf("load run %d: %w", runID, err)
		}

		if err := checkTransition(run.Status, to); err != nil {
			return err
		}

		if err := tx.Model(&run).Update("status", to).Error; err != nil {
			return fmt.Errorf("update run %d status: %w", runID, err)
		}

		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload for run %d: %w", runID, err)
		}

		event := entities.RunEvent{
			RunID:     runID,
			EventType: eventType,
			Payload:   string(payloadJSON),
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("create run event for run %d: %w", runID, err)
		}
		return nil
	})
}

// Claim attempts to move runID from queued to running, returning
// *ErrInvalidTransition if another worker already claimed it (or it is
// not in a claimable state). This is the single entry point a worker
// pool uses to pick up a run, guaranteeing only one worker ever executes
// a given run at a time.
func (m *Manager) Claim(runID uint) error {
	return m.Transition(runID, StatusRunning, EventStatusChanged, map[string]interface{}{
		"from": StatusQueued,
		"to":   StatusRunning,
	})
}

// Finish moves runID from running to one of the terminal statuses,
// recording failures and warnings in the event payload.
func (m *Manager) Finish(runID uint, finalStatus string, failures []string, warnings []string) error {
	eventType := EventStatusChanged
	if finalStatus == StatusFailedPipeline || finalStatus == StatusDegradedNoEvidence {
		eventType = EventRunFailed
	}
	return m.Transition(runID, finalStatus, eventType, map[string]interface{}{
		"from":     StatusRunning,
		"to":       finalStatus,
		"failures": failures,
		"warnings": warnings,
	})
}
