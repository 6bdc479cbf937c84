package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/folio/pkg/core"
)

// TaskContext is handed to a Handler. It carries the task's context and
// records logs, progress and audit events for it.
type TaskContext struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	task   *Task
	engine *Engine
	logger *slog.Logger

	cancelled atomic.Bool

	mu          sync.Mutex
	subFailures []string
}

func newTaskContext(parent context.Context, e *Engine, t *Task) *TaskContext {
	tc := &TaskContext{
		task:   t,
		engine: e,
		logger: e.logger.With("task", t.ID, "type", t.Type),
	}
	ctx, cancel := context.WithCancelCause(parent)
	tc.ctx = core.WithLockObserver(ctx, func(waited time.Duration) {
		tc.Event(ActionLockWait, waited.Round(time.Millisecond).String())
	})
	tc.cancel = cancel
	return tc
}

// ID returns the task id.
func (tc *TaskContext) ID() string { return tc.task.ID }

// Type returns the task type.
func (tc *TaskContext) Type() string { return tc.task.Type }

// Context is cancelled when the task is cancelled in this process or the
// worker shuts down.
func (tc *TaskContext) Context() context.Context { return tc.ctx }

// Bind decodes the payload into v. An empty payload leaves v untouched.
func (tc *TaskContext) Bind(v any) error {
	if len(tc.task.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(tc.task.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", tc.task.Type, err)
	}
	return nil
}

// Logf appends a line to the task log.
func (tc *TaskContext) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	tc.logger.Debug(line)
	if err := tc.engine.store.AppendLog(tc.bg(), tc.task.ID, line); err != nil {
		tc.logger.Warn("failed to append task log", "error", err)
	}
}

// SetProgress records progress in [0, 1].
func (tc *TaskContext) SetProgress(f float64) {
	f = min(max(f, 0), 1)
	if err := tc.engine.store.SetProgress(tc.bg(), tc.task.ID, f); err != nil {
		tc.logger.Warn("failed to record progress", "error", err)
	}
}

// Checkpoint returns ErrCancelled once cancellation was requested, here
// or by another process sharing the store.
func (tc *TaskContext) Checkpoint() error {
	if tc.cancelled.Load() {
		return ErrCancelled
	}
	requested, err := tc.engine.store.CancelRequested(tc.bg(), tc.task.ID)
	if err != nil {
		tc.logger.Warn("failed to check cancellation", "error", err)
		return nil
	}
	if requested {
		tc.requestCancel()
		return ErrCancelled
	}
	return nil
}

// SubFailure records a failed step that does not fail the whole task. A
// task with sub-failures ends as completed_with_errors.
func (tc *TaskContext) SubFailure(step string, err error) {
	detail := fmt.Sprintf("%s: %v", step, err)
	tc.mu.Lock()
	tc.subFailures = append(tc.subFailures, detail)
	tc.mu.Unlock()
	tc.Event(ActionPartialFailure, detail)
	tc.logger.Warn("task step failed", "step", step, "error", err)
}

// Event appends an entry to the audit trail.
func (tc *TaskContext) Event(action, detail string) {
	tc.engine.audit(tc.ctx, tc.task.ID, action, detail)
}

func (tc *TaskContext) requestCancel() {
	if tc.cancelled.CompareAndSwap(false, true) {
		tc.cancel(ErrCancelled)
	}
}

func (tc *TaskContext) bg() context.Context {
	return context.WithoutCancel(tc.ctx)
}

// outcome maps the handler result to a terminal status and its detail.
func (tc *TaskContext) outcome(err error) (Status, string) {
	switch {
	case errors.Is(err, ErrCancelled):
		return StatusCancelled, "cancelled"
	case err != nil && tc.cancelled.Load() && errors.Is(err, context.Canceled):
		return StatusCancelled, "cancelled"
	case err != nil && tc.ctx.Err() != nil && errors.Is(err, context.Canceled):
		return StatusCancelled, "worker stopped"
	case err != nil:
		return StatusFailed, err.Error()
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	switch n := len(tc.subFailures); n {
	case 0:
		return StatusSuccess, ""
	case 1:
		return StatusCompletedWithErrors, tc.subFailures[0]
	default:
		return StatusCompletedWithErrors, fmt.Sprintf("%d steps failed, first: %s", n, tc.subFailures[0])
	}
}
