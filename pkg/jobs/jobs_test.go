package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/jobs"
	"github.com/aretw0/folio/pkg/tasks"
)

type fakeRemote struct {
	mu         sync.Mutex
	pushErrs   []error
	pushes     int
	pullResult bool
	pulls      int
}

func (f *fakeRemote) Push(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		return false, err
	}
	return true, nil
}

func (f *fakeRemote) Pull(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return f.pullResult, nil
}

type fakeIndex struct {
	reindexed []string
	rebuilds  int
}

func (f *fakeIndex) Reindex(_ context.Context, path string) error {
	f.reindexed = append(f.reindexed, path)
	return nil
}

func (f *fakeIndex) Rebuild(_ context.Context, progress func(done, total int)) (int, error) {
	f.rebuilds++
	for i := 1; i <= 4; i++ {
		progress(i, 4)
	}
	return 4, nil
}

type fakeNav struct {
	calls []string
}

func (f *fakeNav) Invalidate(_ context.Context, scope core.Scope) error {
	if scope.All {
		f.calls = append(f.calls, "invalidate:all")
	} else {
		f.calls = append(f.calls, "invalidate:"+scope.Path)
	}
	return nil
}

func (f *fakeNav) Warm(context.Context) error {
	f.calls = append(f.calls, "warm")
	return nil
}

type fakeSink struct {
	err  error
	sent []core.Notification
}

func (f *fakeSink) Notify(_ context.Context, n core.Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func setup(t *testing.T, d jobs.Deps) *tasks.Engine {
	t.Helper()
	store, err := tasks.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := tasks.NewRegistry()
	require.NoError(t, jobs.Register(reg, d))
	e, err := tasks.New(tasks.Config{
		Store:    store,
		Registry: reg,
		Retry:    tasks.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return e
}

func run(t *testing.T, e *tasks.Engine, taskType string, payload any) *tasks.Task {
	t.Helper()
	ctx := context.Background()
	id, err := e.Dispatch(ctx, taskType, payload)
	require.NoError(t, err)
	_, err = e.Drain(ctx)
	require.NoError(t, err)
	task, err := e.Status(ctx, id)
	require.NoError(t, err)
	return task
}

func TestRegisterCoversEveryTaskType(t *testing.T) {
	reg := tasks.NewRegistry()
	require.NoError(t, jobs.Register(reg, jobs.Deps{}))
	assert.Equal(t, []string{"cache-warm", "notify", "pull", "reindex", "sync"}, reg.Types())
}

func TestSyncPushesAndNotifies(t *testing.T) {
	remote := &fakeRemote{pushErrs: []error{core.Transient("push", errors.New("reset"))}}
	sink := &fakeSink{}
	e := setup(t, jobs.Deps{Remote: remote, Sink: sink})

	event := &core.Notification{Kind: core.EventCreate, Title: "Setup"}
	task := run(t, e, core.TaskSync, core.SyncPayload{Message: "create guides/setup", Event: event})

	assert.Equal(t, tasks.StatusSuccess, task.Status)
	assert.Equal(t, 2, remote.pushes)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "Setup", sink.sent[0].Title)
}

func TestSyncNotifyFailureCompletesWithErrors(t *testing.T) {
	sink := &fakeSink{err: core.E(core.KindNotification, "notify", "", errors.New("bad request"))}
	e := setup(t, jobs.Deps{Remote: &fakeRemote{}, Sink: sink})

	event := &core.Notification{Kind: core.EventEdit, Title: "Home"}
	task := run(t, e, core.TaskSync, core.SyncPayload{Message: "edit home", Event: event})

	assert.Equal(t, tasks.StatusCompletedWithErrors, task.Status)
	assert.Contains(t, task.Detail, "notify")
	assert.Len(t, sink.sent, 1, "permanent notification errors are not retried")

	audit, err := e.Audit(context.Background(), task.ID)
	require.NoError(t, err)
	var partial int
	for _, a := range audit {
		if a.Action == tasks.ActionPartialFailure {
			partial++
		}
	}
	assert.Equal(t, 1, partial)
}

func TestSyncPushFailureFails(t *testing.T) {
	remote := &fakeRemote{pushErrs: []error{core.Storage("push", "", errors.New("rejected"))}}
	sink := &fakeSink{}
	e := setup(t, jobs.Deps{Remote: remote, Sink: sink})

	task := run(t, e, core.TaskSync, core.SyncPayload{Message: "edit", Event: &core.Notification{Kind: core.EventEdit}})
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Empty(t, sink.sent)
}

func TestSyncWithoutEventSkipsNotify(t *testing.T) {
	sink := &fakeSink{}
	e := setup(t, jobs.Deps{Remote: &fakeRemote{}, Sink: sink})
	task := run(t, e, core.TaskSync, core.SyncPayload{Message: "attach"})
	assert.Equal(t, tasks.StatusSuccess, task.Status)
	assert.Empty(t, sink.sent)
}

func TestPullRefreshesDerivedState(t *testing.T) {
	index := &fakeIndex{}
	nav := &fakeNav{}
	e := setup(t, jobs.Deps{Remote: &fakeRemote{pullResult: true}, Index: index, Nav: nav})

	task := run(t, e, core.TaskPull, nil)
	assert.Equal(t, tasks.StatusSuccess, task.Status)
	assert.Equal(t, 1, index.rebuilds)
	assert.Equal(t, []string{"invalidate:all", "warm"}, nav.calls)
}

func TestPullUpToDateDoesNothing(t *testing.T) {
	index := &fakeIndex{}
	nav := &fakeNav{}
	e := setup(t, jobs.Deps{Remote: &fakeRemote{}, Index: index, Nav: nav})

	task := run(t, e, core.TaskPull, nil)
	assert.Equal(t, tasks.StatusSuccess, task.Status)
	assert.Zero(t, index.rebuilds)
	assert.Empty(t, nav.calls)
	assert.Contains(t, task.Logs, "already up to date")
}

func TestReindex(t *testing.T) {
	index := &fakeIndex{}
	e := setup(t, jobs.Deps{Index: index})

	task := run(t, e, core.TaskReindex, core.ReindexPayload{Path: "guides/setup"})
	assert.Equal(t, tasks.StatusSuccess, task.Status)
	assert.Equal(t, []string{"guides/setup"}, index.reindexed)

	task = run(t, e, core.TaskReindex, core.ReindexPayload{})
	assert.Equal(t, tasks.StatusSuccess, task.Status)
	assert.Equal(t, 1, index.rebuilds)
	assert.Equal(t, 1.0, task.Progress)
}

func TestCacheWarm(t *testing.T) {
	nav := &fakeNav{}
	e := setup(t, jobs.Deps{Nav: nav})
	task := run(t, e, core.TaskCacheWarm, nil)
	assert.Equal(t, tasks.StatusSuccess, task.Status)
	assert.Equal(t, []string{"warm"}, nav.calls)
}

func TestNotifyFailureFails(t *testing.T) {
	sink := &fakeSink{err: core.E(core.KindNotification, "notify", "", core.Transient("webhook", errors.New("502")))}
	e := setup(t, jobs.Deps{Sink: sink})

	task := run(t, e, core.TaskNotify, core.NotifyPayload{Event: core.Notification{Kind: core.EventMove, Title: "Setup"}})
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Len(t, sink.sent, 3, "transient notification errors are retried")
}
