// Package tasks runs background work (push, pull, notification, cache
// warming, reindexing) from a persistent queue.
//
// Tasks are stored in SQLite or Postgres so their status and audit trail
// survive restarts and are visible to every process sharing the store.
// Status transitions are monotonic: a task moves from queued through
// in_progress to exactly one terminal status and never changes again.
package tasks

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusQueued              Status = "queued"
	StatusInProgress          Status = "in_progress"
	StatusSuccess             Status = "success"
	StatusFailed              Status = "failed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusCancelled           Status = "cancelled"
)

// Terminal reports whether s is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCompletedWithErrors, StatusCancelled:
		return true
	default:
		return false
	}
}

var (
	// ErrCancelled is returned by TaskContext.Checkpoint once cancellation
	// was requested. Handlers return it to end as cancelled.
	ErrCancelled = errors.New("task cancelled")
	// ErrUnknownType is returned by Dispatch for a type without handler.
	ErrUnknownType = errors.New("unknown task type")
)

// Audit actions recorded by the engine. A transition into a terminal
// status is recorded under the status name itself.
const (
	ActionCreated          = "created"
	ActionStarted          = "started"
	ActionCancelRequested  = "cancel_requested"
	ActionAttemptFailed    = "attempt_failed"
	ActionAttemptSucceeded = "attempt_succeeded"
	ActionRetryWait        = "retry_wait"
	ActionPartialFailure   = "partial_failure"
	ActionLockWait         = "lock_wait"
)

// Task is one unit of background work.
type Task struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Status          Status          `json:"status"`
	Progress        float64         `json:"progress"`
	Detail          string          `json:"detail,omitempty"`
	CancelRequested bool            `json:"cancel_requested,omitempty"`
	Logs            []string        `json:"logs,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

// AuditEntry is one event in a task's audit trail.
type AuditEntry struct {
	ID     string    `json:"id"`
	TaskID string    `json:"task_id"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}
