package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/aretw0/folio/pkg/core"
)

// Handler runs one task. Returning ErrCancelled ends the task as
// cancelled, any other error as failed.
type Handler func(tc *TaskContext) error

var typeName = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Registry maps task types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h, replacing any previous handler.
func (r *Registry) Register(name string, h Handler) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, 64),
		validation.Match(typeName),
	)
	if err != nil {
		return fmt.Errorf("invalid task type %q: %w", name, err)
	}
	if h == nil {
		return fmt.Errorf("nil handler for task type %q", name)
	}
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return nil
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Types lists the registered task types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const (
	defaultWorkers      = 2
	defaultPollInterval = time.Second
)

// Config holds the engine configuration.
type Config struct {
	Store        Store
	Registry     *Registry
	Workers      int
	PollInterval time.Duration
	Retry        RetryPolicy
	Logger       *slog.Logger
}

// Engine dispatches tasks into the store and executes them on a worker pool.
type Engine struct {
	store    Store
	registry *Registry
	workers  int
	poll     time.Duration
	retry    RetryPolicy
	logger   *slog.Logger

	wake chan struct{}

	mu        sync.Mutex
	running   map[string]*TaskContext
	processed int
	failed    int
}

// New creates an Engine. Handlers may be registered on the registry after
// New returns.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("tasks: store is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:    cfg.Store,
		registry: cfg.Registry,
		workers:  cfg.Workers,
		poll:     cfg.PollInterval,
		retry:    cfg.Retry.withDefaults(),
		logger:   cfg.Logger,
		wake:     make(chan struct{}, 1),
		running:  make(map[string]*TaskContext),
	}, nil
}

// Registry returns the handler registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Dispatch stores a queued task and returns its id without waiting for it
// to run. payload is JSON-encoded.
func (e *Engine) Dispatch(ctx context.Context, taskType string, payload any) (string, error) {
	if _, ok := e.registry.Lookup(taskType); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, taskType)
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s payload: %w", taskType, err)
		}
		raw = b
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate task id: %w", err)
	}
	t := &Task{ID: id.String(), Type: taskType, Payload: raw, Status: StatusQueued}
	if err := e.store.Create(ctx, t); err != nil {
		return "", err
	}
	e.audit(ctx, t.ID, ActionCreated, taskType)
	e.logger.Debug("task dispatched", "task", t.ID, "type", taskType)

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return t.ID, nil
}

// Status returns the task with id.
func (e *Engine) Status(ctx context.Context, id string) (*Task, error) {
	return e.store.Get(ctx, id)
}

// List returns the most recent tasks first.
func (e *Engine) List(ctx context.Context, limit int) ([]*Task, error) {
	return e.store.List(ctx, limit)
}

// Audit returns the audit trail of a task, oldest first.
func (e *Engine) Audit(ctx context.Context, id string) ([]AuditEntry, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.store.Audit(ctx, id)
}

// Cancel stops a task. A queued task is cancelled at once; a running one
// is flagged and stops at its next checkpoint. Cancel reports false for a
// task that already finished.
func (e *Engine) Cancel(ctx context.Context, id string) (bool, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status.Terminal() {
		return false, nil
	}

	ok, err := e.store.CancelQueued(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		e.audit(ctx, id, string(StatusCancelled), "cancelled before start")
		return true, nil
	}

	ok, err = e.store.RequestCancel(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	e.audit(ctx, id, ActionCancelRequested, "")

	e.mu.Lock()
	tc := e.running[id]
	e.mu.Unlock()
	if tc != nil {
		tc.requestCancel()
	}
	return true, nil
}

// Run executes tasks on the worker pool until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("task workers started", "workers", e.workers, "types", e.registry.Types())

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		lifecycle.Go(ctx, func(ctx context.Context) error {
			defer wg.Done()
			e.loop(ctx)
			return nil
		}, lifecycle.WithErrorHandler(func(err error) {
			e.logger.Error("task worker panic", "worker", i, "error", err)
		}))
	}

	<-ctx.Done()
	wg.Wait()
	e.logger.Info("task workers stopped")
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	timer := time.NewTimer(e.poll)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		t, err := e.store.ClaimNext(ctx)
		if err != nil && ctx.Err() == nil {
			e.logger.Warn("failed to claim task", "error", err)
		}
		if t != nil {
			e.execute(ctx, t)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.poll)
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// Drain executes queued tasks inline until none is left and returns how
// many ran.
func (e *Engine) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		t, err := e.store.ClaimNext(ctx)
		if err != nil {
			return n, err
		}
		if t == nil {
			return n, nil
		}
		e.execute(ctx, t)
		n++
	}
}

func (e *Engine) execute(ctx context.Context, t *Task) {
	bg := context.WithoutCancel(ctx)
	log := e.logger.With("task", t.ID, "type", t.Type)
	e.audit(bg, t.ID, ActionStarted, "")
	log.Debug("task started")

	tc := newTaskContext(ctx, e, t)
	e.mu.Lock()
	e.running[t.ID] = tc
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, t.ID)
		e.mu.Unlock()
		tc.cancel(nil)
	}()

	var err error
	if h, ok := e.registry.Lookup(t.Type); ok {
		err = invoke(h, tc)
	} else {
		err = fmt.Errorf("%w: %s", ErrUnknownType, t.Type)
	}

	status, detail := tc.outcome(err)
	ok, ferr := e.store.Finish(bg, t.ID, status, detail)
	if ferr != nil {
		log.Error("failed to finish task", "error", ferr)
		return
	}
	if !ok {
		log.Warn("task was not in progress at finish", "status", status)
		return
	}
	e.audit(bg, t.ID, string(status), detail)

	e.mu.Lock()
	e.processed++
	if status == StatusFailed {
		e.failed++
	}
	e.mu.Unlock()

	if status == StatusFailed {
		log.Warn("task failed", "error", detail)
	} else {
		log.Info("task finished", "status", status)
	}
}

func invoke(h Handler, tc *TaskContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(tc)
}

func (e *Engine) audit(ctx context.Context, id, action, detail string) {
	if err := e.store.AddAudit(context.WithoutCancel(ctx), id, action, detail); err != nil {
		e.logger.Warn("failed to record audit entry", "task", id, "action", action, "error", err)
	}
}

var _ core.Dispatcher = (*Engine)(nil)
