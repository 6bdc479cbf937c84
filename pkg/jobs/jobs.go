// Package jobs binds the background task types to the store, the search
// index, the navigation cache and the notification sink.
package jobs

import (
	"context"
	"fmt"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/notify"
	"github.com/aretw0/folio/pkg/tasks"
)

// Indexer rebuilds the search index with progress reporting.
type Indexer interface {
	Reindex(ctx context.Context, path string) error
	Rebuild(ctx context.Context, progress func(done, total int)) (int, error)
}

// Navigator is the navigation cache.
type Navigator interface {
	Invalidate(ctx context.Context, scope core.Scope) error
	Warm(ctx context.Context) error
}

// Deps are the components the handlers act on. Remote may be nil when the
// tree has no mirror; Index and Nav may be nil when disabled.
type Deps struct {
	Remote core.Syncable
	Index  Indexer
	Nav    Navigator
	Sink   notify.Sink
}

// Register installs a handler for every task type.
func Register(r *tasks.Registry, d Deps) error {
	if d.Sink == nil {
		d.Sink = notify.NopSink{}
	}
	handlers := map[string]tasks.Handler{
		core.TaskSync:      d.sync,
		core.TaskPull:      d.pull,
		core.TaskCacheWarm: d.cacheWarm,
		core.TaskReindex:   d.reindex,
		core.TaskNotify:    d.notify,
	}
	for name, h := range handlers {
		if err := r.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) sync(tc *tasks.TaskContext) error {
	var p core.SyncPayload
	if err := tc.Bind(&p); err != nil {
		return err
	}
	tc.Logf("sync: %s", p.Message)

	if d.Remote != nil {
		var pushed bool
		err := tc.Retry("push", func(ctx context.Context) error {
			var err error
			pushed, err = d.Remote.Push(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if pushed {
			tc.Logf("pushed to remote")
		} else {
			tc.Logf("no remote configured, skipping push")
		}
	}
	tc.SetProgress(0.5)

	if p.Event == nil {
		return nil
	}
	if err := tc.Checkpoint(); err != nil {
		return err
	}
	err := tc.Retry("notify", func(ctx context.Context) error {
		return d.Sink.Notify(ctx, *p.Event)
	})
	if err != nil {
		tc.SubFailure("notify", err)
	}
	return nil
}

func (d Deps) pull(tc *tasks.TaskContext) error {
	if d.Remote == nil {
		tc.Logf("no remote configured, nothing to pull")
		return nil
	}
	var changed bool
	err := tc.Retry("pull", func(ctx context.Context) error {
		var err error
		changed, err = d.Remote.Pull(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if !changed {
		tc.Logf("already up to date")
		return nil
	}
	tc.Logf("pulled remote changes")
	if err := tc.Checkpoint(); err != nil {
		return err
	}

	ctx := tc.Context()
	if d.Index != nil {
		n, err := d.Index.Rebuild(ctx, func(done, total int) {
			tc.SetProgress(0.8 * float64(done) / float64(total))
		})
		if err != nil {
			return fmt.Errorf("failed to rebuild search index: %w", err)
		}
		tc.Logf("reindexed %d pages", n)
	}
	if d.Nav != nil {
		if err := d.Nav.Invalidate(ctx, core.ScopeAll); err != nil {
			return fmt.Errorf("failed to invalidate navigation: %w", err)
		}
		if err := d.Nav.Warm(ctx); err != nil {
			return fmt.Errorf("failed to warm navigation: %w", err)
		}
	}
	return nil
}

func (d Deps) cacheWarm(tc *tasks.TaskContext) error {
	if d.Nav == nil {
		return nil
	}
	return d.Nav.Warm(tc.Context())
}

func (d Deps) reindex(tc *tasks.TaskContext) error {
	if d.Index == nil {
		return nil
	}
	var p core.ReindexPayload
	if err := tc.Bind(&p); err != nil {
		return err
	}
	if p.Path != "" {
		return d.Index.Reindex(tc.Context(), p.Path)
	}
	n, err := d.Index.Rebuild(tc.Context(), func(done, total int) {
		tc.SetProgress(float64(done) / float64(total))
	})
	if err != nil {
		return err
	}
	tc.Logf("reindexed %d pages", n)
	return nil
}

func (d Deps) notify(tc *tasks.TaskContext) error {
	var p core.NotifyPayload
	if err := tc.Bind(&p); err != nil {
		return err
	}
	return tc.Retry("notify", func(ctx context.Context) error {
		return d.Sink.Notify(ctx, p.Event)
	})
}
