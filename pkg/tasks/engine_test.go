package tasks

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/folio/pkg/core"
)

func newStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open("sqlite://" + filepath.Join(t.TempDir(), ".folio", "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	e, err := New(Config{
		Store:        store,
		PollInterval: 20 * time.Millisecond,
		Retry:        RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return e
}

func register(t *testing.T, e *Engine, name string, h Handler) {
	t.Helper()
	require.NoError(t, e.Registry().Register(name, h))
}

func actions(t *testing.T, e *Engine, id string, action string) []AuditEntry {
	t.Helper()
	entries, err := e.Audit(context.Background(), id)
	require.NoError(t, err)
	var out []AuditEntry
	for _, a := range entries {
		if action == "" || a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

func TestTransientFailuresAreRetried(t *testing.T) {
	e := newEngine(t, newStore(t))
	ctx := context.Background()

	var calls atomic.Int32
	register(t, e, "push", func(tc *TaskContext) error {
		return tc.Retry("push", func(ctx context.Context) error {
			if calls.Add(1) <= 2 {
				return core.Transient("push", errors.New("connection reset"))
			}
			return nil
		})
	})

	id, err := e.Dispatch(ctx, "push", nil)
	require.NoError(t, err)
	n, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, task.Status)
	assert.Equal(t, 1.0, task.Progress)
	assert.NotNil(t, task.FinishedAt)

	assert.Len(t, actions(t, e, id, ActionAttemptFailed), 2)
	assert.Len(t, actions(t, e, id, ActionAttemptSucceeded), 1)
	assert.Len(t, actions(t, e, id, ActionRetryWait), 2)

	trail := actions(t, e, id, "")
	require.NotEmpty(t, trail)
	assert.Equal(t, ActionCreated, trail[0].Action)
	assert.Equal(t, ActionStarted, trail[1].Action)
	assert.Equal(t, string(StatusSuccess), trail[len(trail)-1].Action)
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	e := newEngine(t, newStore(t))
	ctx := context.Background()

	var calls atomic.Int32
	register(t, e, "push", func(tc *TaskContext) error {
		return tc.Retry("push", func(ctx context.Context) error {
			calls.Add(1)
			return core.Storage("push", "", errors.New("rejected"))
		})
	})

	id, err := e.Dispatch(ctx, "push", nil)
	require.NoError(t, err)
	_, err = e.Drain(ctx)
	require.NoError(t, err)

	task, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Detail, "rejected")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	e := newEngine(t, newStore(t))
	ctx := context.Background()

	register(t, e, "push", func(tc *TaskContext) error {
		return tc.Retry("push", func(ctx context.Context) error {
			return core.Transient("push", errors.New("timeout"))
		})
	})

	id, err := e.Dispatch(ctx, "push", nil)
	require.NoError(t, err)
	_, err = e.Drain(ctx)
	require.NoError(t, err)

	task, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Len(t, actions(t, e, id, ActionAttemptFailed), 3)
}

func TestSubFailureCompletesWithErrors(t *testing.T) {
	e := newEngine(t, newStore(t))
	ctx := context.Background()

	register(t, e, "sync", func(tc *TaskContext) error {
		tc.SubFailure("notify", errors.New("webhook unavailable"))
		return nil
	})

	id, err := e.Dispatch(ctx, "sync", map[string]string{"message": "Update home"})
	require.NoError(t, err)
	_, err = e.Drain(ctx)
	require.NoError(t, err)

	task, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompletedWithErrors, task.Status)
	assert.Contains(t, task.Detail, "webhook unavailable")
	assert.Len(t, actions(t, e, id, ActionPartialFailure), 1)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("Queued", func(t *testing.T) {
		e := newEngine(t, newStore(t))
		register(t, e, "noop", func(tc *TaskContext) error { return nil })

		id, err := e.Dispatch(ctx, "noop", nil)
		require.NoError(t, err)
		ok, err := e.Cancel(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		task, err := e.Status(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, task.Status)

		n, err := e.Drain(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "a cancelled task must never run")

		trail := actions(t, e, id, "")
		require.Len(t, trail, 2)
		assert.Equal(t, string(StatusCancelled), trail[1].Action)
	})

	t.Run("Terminal", func(t *testing.T) {
		e := newEngine(t, newStore(t))
		register(t, e, "noop", func(tc *TaskContext) error { return nil })

		id, err := e.Dispatch(ctx, "noop", nil)
		require.NoError(t, err)
		_, err = e.Drain(ctx)
		require.NoError(t, err)

		ok, err := e.Cancel(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		task, err := e.Status(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, task.Status)
	})

	t.Run("Unknown", func(t *testing.T) {
		e := newEngine(t, newStore(t))
		_, err := e.Cancel(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Running", func(t *testing.T) {
		e := newEngine(t, newStore(t))
		started := make(chan struct{})
		register(t, e, "slow", func(tc *TaskContext) error {
			close(started)
			for {
				if err := tc.Checkpoint(); err != nil {
					return err
				}
				select {
				case <-tc.Context().Done():
					return context.Cause(tc.Context())
				case <-time.After(10 * time.Millisecond):
				}
			}
		})

		runCtx, stop := context.WithCancel(ctx)
		defer stop()
		go e.Run(runCtx)

		id, err := e.Dispatch(ctx, "slow", nil)
		require.NoError(t, err)
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("task did not start")
		}

		ok, err := e.Cancel(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		require.Eventually(t, func() bool {
			task, err := e.Status(ctx, id)
			return err == nil && task.Status == StatusCancelled
		}, 5*time.Second, 10*time.Millisecond)
		assert.Len(t, actions(t, e, id, ActionCancelRequested), 1)
		require.Eventually(t, func() bool {
			entries, err := e.Audit(ctx, id)
			return err == nil && entries[len(entries)-1].Action == string(StatusCancelled)
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("From Another Process", func(t *testing.T) {
		store := newStore(t)
		e := newEngine(t, store)
		other := newEngine(t, store)

		register(t, e, "slow", func(tc *TaskContext) error {
			ok, err := other.Cancel(tc.Context(), tc.ID())
			if err != nil || !ok {
				return errors.New("cancel was not accepted")
			}
			return tc.Checkpoint()
		})

		id, err := e.Dispatch(ctx, "slow", nil)
		require.NoError(t, err)
		_, err = e.Drain(ctx)
		require.NoError(t, err)

		task, err := e.Status(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, task.Status)
		assert.True(t, task.CancelRequested)
	})
}

func TestPanicFailsTask(t *testing.T) {
	e := newEngine(t, newStore(t))
	ctx := context.Background()
	register(t, e, "boom", func(tc *TaskContext) error { panic("kaboom") })

	id, err := e.Dispatch(ctx, "boom", nil)
	require.NoError(t, err)
	_, err = e.Drain(ctx)
	require.NoError(t, err)

	task, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Detail, "kaboom")
	assert.Equal(t, 1, e.State().(EngineState).Failed)
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	e := newEngine(t, newStore(t))
	_, err := e.Dispatch(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistryValidatesTypes(t *testing.T) {
	r := NewRegistry()
	h := func(tc *TaskContext) error { return nil }
	assert.Error(t, r.Register("", h))
	assert.Error(t, r.Register("Has Spaces", h))
	assert.Error(t, r.Register("ok", nil))
	require.NoError(t, r.Register("cache-warm", h))
	require.NoError(t, r.Register("sync", h))
	assert.Equal(t, []string{"cache-warm", "sync"}, r.Types())
}

func TestTaskContextRecordsProgressLogsAndPayload(t *testing.T) {
	e := newEngine(t, newStore(t))
	ctx := context.Background()

	type payload struct {
		Path string `json:"path"`
	}
	var got payload
	register(t, e, "reindex", func(tc *TaskContext) error {
		if err := tc.Bind(&got); err != nil {
			return err
		}
		tc.Logf("reindexing %s", got.Path)
		tc.SetProgress(0.5)
		core.ObserveLockWait(tc.Context(), 150*time.Millisecond)
		tc.Logf("done")
		return nil
	})

	id, err := e.Dispatch(ctx, "reindex", payload{Path: "guides/setup"})
	require.NoError(t, err)
	_, err = e.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, "guides/setup", got.Path)
	task, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"reindexing guides/setup", "done"}, task.Logs)
	assert.Equal(t, `{"path":"guides/setup"}`, string(task.Payload))

	waits := actions(t, e, id, ActionLockWait)
	require.Len(t, waits, 1)
	assert.Equal(t, "150ms", waits[0].Detail)
}

func TestRunExecutesDispatchedTasks(t *testing.T) {
	e := newEngine(t, newStore(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int32
	register(t, e, "noop", func(tc *TaskContext) error {
		ran.Add(1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()

	for i := 0; i < 5; i++ {
		_, err := e.Dispatch(ctx, "noop", nil)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return ran.Load() == 5 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 5, e.State().(EngineState).Processed)
}

func TestClaimNextNeverDoubleClaims(t *testing.T) {
	store := newStore(t)
	e := newEngine(t, store)
	ctx := context.Background()
	register(t, e, "noop", func(tc *TaskContext) error { return nil })

	const total = 20
	for i := 0; i < total; i++ {
		_, err := e.Dispatch(ctx, "noop", nil)
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := store.ClaimNext(ctx)
				if !assert.NoError(t, err) || task == nil {
					return
				}
				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestClaimNextIsFIFO(t *testing.T) {
	store := newStore(t)
	e := newEngine(t, store)
	ctx := context.Background()
	register(t, e, "noop", func(tc *TaskContext) error { return nil })

	first, err := e.Dispatch(ctx, "noop", nil)
	require.NoError(t, err)
	second, err := e.Dispatch(ctx, "noop", nil)
	require.NoError(t, err)

	task, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, task.ID)
	assert.Equal(t, StatusInProgress, task.Status)
	assert.NotNil(t, task.StartedAt)

	task, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, task.ID)

	task, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestFinishIsMonotonic(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Task{ID: "t1", Type: "noop", Status: StatusQueued}))

	ok, err := store.Finish(ctx, "t1", StatusSuccess, "")
	require.NoError(t, err)
	assert.False(t, ok, "a queued task cannot finish")

	_, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	ok, err = store.Finish(ctx, "t1", StatusFailed, "boom")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Finish(ctx, "t1", StatusSuccess, "")
	require.NoError(t, err)
	assert.False(t, ok, "terminal states never change")

	_, err = store.Finish(ctx, "t1", StatusInProgress, "")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: dialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := &SQLStore{dialect: dialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestOpenSelectsDriverByScheme(t *testing.T) {
	orig := openDB
	defer func() { openDB = orig }()

	var driver, dsn string
	openDB = func(d, s string) (*sql.DB, error) {
		driver, dsn = d, s
		return orig("sqlite", ":memory:")
	}

	s, err := Open("postgres://folio@localhost/folio?sslmode=disable")
	require.NoError(t, err)
	s.Close()
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://folio@localhost/folio?sslmode=disable", dsn)

	path := filepath.Join(t.TempDir(), "tasks.db")
	s, err = Open(path)
	require.NoError(t, err)
	s.Close()
	assert.Equal(t, "sqlite", driver)
	assert.Contains(t, dsn, path)
	assert.Contains(t, dsn, "busy_timeout")

	_, err = Open("  ")
	assert.Error(t, err)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 200*time.Millisecond, p.delay(1))
	assert.Equal(t, 400*time.Millisecond, p.delay(2))
	assert.Equal(t, 5*time.Second, p.delay(10))
	assert.Equal(t, p, RetryPolicy{}.withDefaults())
}
