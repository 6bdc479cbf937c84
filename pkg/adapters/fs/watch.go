package fs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 50 * time.Millisecond

// Watch starts a supervised watcher over pages/. onChange receives the
// document path of every page edited outside the store, once per burst.
// The returned function stops the watcher.
func (r *Repository) Watch(ctx context.Context, onChange func(path string)) (func(context.Context) error, error) {
	for _, pattern := range r.config.WatchIgnore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid watch ignore pattern %q", pattern)
		}
	}

	spec := supervisor.Spec{
		Name: "fs-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newWatchWorker(r, onChange), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     5,
			MaxDuration:     5 * time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("folio-watcher", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	return sup.Stop, nil
}

type watchWorker struct {
	*worker.BaseWorker
	repo      *Repository
	onChange  func(path string)
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
}

func newWatchWorker(repo *Repository, onChange func(path string)) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		repo:       repo,
		onChange:   onChange,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.addTree(watcher, w.repo.abs(PagesDir)); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(watchDebounce)
	w.repo.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

// addTree watches dir and every non-hidden directory below it.
func (w *watchWorker) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// docPath maps an event to the document it concerns, or "" when the
// event is not about a page.
func (w *watchWorker) docPath(name string) string {
	rel, err := filepath.Rel(w.repo.abs(PagesDir), name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, pageExt) {
		return ""
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return ""
		}
	}
	for _, pattern := range w.repo.config.WatchIgnore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return ""
		}
	}
	return strings.TrimSuffix(rel, pageExt)
}

// mutating reports whether a store mutation holds the writer lock.
func (w *watchWorker) mutating() bool {
	return fileExists(filepath.Join(w.repo.Path, w.repo.config.SystemDir, lockFileName))
}

// settle runs once a burst on p is quiet. While a mutation holds the lock
// it waits for another round; afterwards the page counts as changed only
// when it differs from HEAD, which filters out the store's own commits.
func (w *watchWorker) settle(p string) {
	if w.mutating() {
		w.debouncer.add(p, w.settle)
		return
	}
	logger := w.repo.config.Logger
	dirty, err := w.repo.git.Dirty(context.Background(), pageRel(p))
	if err != nil {
		logger.Warn("failed to check page status", "path", p, "error", err)
	} else if !dirty {
		logger.Debug("change already committed", "path", p)
		return
	}
	w.repo.recordExternalChange()
	logger.Info("external change detected", "path", p)
	w.onChange(p)
}

func (w *watchWorker) handle(event fsnotify.Event) {
	logger := w.repo.config.Logger
	logger.Debug("event received", "name", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Create) && dirExists(event.Name) {
		if err := w.addTree(w.watcher, event.Name); err != nil {
			logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
		}
		return
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}

	if p := w.docPath(event.Name); p != "" {
		w.debouncer.add(p, w.settle)
	}
}

func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if w.repo.config.Logger.Enabled(ctx, slog.LevelDebug) {
				w.repo.config.Logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.repo.config.Logger.Error("watcher panic", "error", err)
			}
		}
	}()
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.loop(ctx)
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchWorker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.repo.config.Logger.Error("fsnotify error", "error", wErr)
		}
	}
}
