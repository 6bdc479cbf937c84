package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/folio/pkg/adapters/fs"
	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/jobs"
	"github.com/aretw0/folio/pkg/nav"
	"github.com/aretw0/folio/pkg/notify"
	"github.com/aretw0/folio/pkg/search"
	"github.com/aretw0/folio/pkg/tasks"
)

const systemDir = ".folio"

// App holds the long-lived components of one process. They are built once
// by New and passed explicitly to whoever needs them.
type App struct {
	Config  Config
	Logger  *slog.Logger
	Repo    *fs.Repository
	Index   *search.Index
	Nav     *nav.Cache
	Tasks   *tasks.SQLStore
	Engine  *tasks.Engine
	Sink    notify.Sink
	Service *core.Service
}

// New builds and wires every component for cfg. The search index is
// rebuilt when its database did not exist yet, and the navigation cache
// is warmed.
//
//	app, err := platform.New(ctx, cfg, platform.WithAutoInit(true))
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	useTemp := o.forceTemp || (IsDevRun() && o.devSafety)
	path := ResolveRepoPath(cfg.RepoPath, useTemp)
	if path != cfg.RepoPath {
		logger.Warn("running in SAFE MODE (Dev/Test)", "original_path", cfg.RepoPath, "resolved_path", path)
	}
	cfg.RepoPath = path
	if cfg.TasksDSN == "" {
		cfg.TasksDSN = filepath.Join(path, systemDir, "tasks.db")
	}
	if cfg.SearchDB == "" {
		cfg.SearchDB = filepath.Join(path, systemDir, "search.db")
	}

	app := &App{Config: cfg, Logger: logger}
	if err := app.build(ctx, o); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, o *options) error {
	cfg := a.Config

	a.Repo = fs.NewRepository(fs.Config{
		Path:        cfg.RepoPath,
		RemoteURL:   cfg.RepoURL,
		Branch:      cfg.RepoBranch,
		AutoInit:    o.autoInit,
		SystemDir:   systemDir,
		LockTimeout: cfg.LockTimeout,
		Logger:      a.Logger.With("component", "repository"),
		WatchIgnore: o.watch,
	})
	if err := a.Repo.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}

	_, statErr := os.Stat(cfg.SearchDB)
	fresh := errors.Is(statErr, os.ErrNotExist)
	index, err := search.Open(search.Config{Path: cfg.SearchDB, Logger: a.Logger.With("component", "search")}, a.Repo)
	if err != nil {
		return err
	}
	a.Index = index
	if fresh {
		if _, err := index.RebuildAll(ctx); err != nil {
			return fmt.Errorf("failed to build search index: %w", err)
		}
	}

	var store nav.Store = nav.NewMemoryStore()
	if cfg.Cache == CacheFile {
		store = nav.NewFileStore(filepath.Join(cfg.RepoPath, systemDir, "nav.json"))
	}
	a.Nav, err = nav.New(nav.Config{
		Store:   store,
		Source:  a.Repo,
		TTL:     cfg.CacheTTL,
		Exclude: cfg.NavExclude,
		Logger:  a.Logger.With("component", "nav"),
	})
	if err != nil {
		return err
	}
	if err := a.Nav.Warm(ctx); err != nil {
		a.Logger.Warn("failed to warm navigation cache", "error", err)
	}

	a.Tasks, err = tasks.Open(cfg.TasksDSN)
	if err != nil {
		return err
	}

	a.Sink = o.sink
	if a.Sink == nil {
		a.Sink, err = newSink(cfg, o, a.Logger)
		if err != nil {
			return err
		}
	}

	registry := tasks.NewRegistry()
	err = jobs.Register(registry, jobs.Deps{Remote: a.Repo, Index: a.Index, Nav: a.Nav, Sink: a.Sink})
	if err != nil {
		return err
	}
	a.Engine, err = tasks.New(tasks.Config{
		Store:        a.Tasks,
		Registry:     registry,
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
		Logger:       a.Logger.With("component", "tasks"),
	})
	if err != nil {
		return err
	}

	svcOpts := []core.ServiceOption{
		core.WithIndexer(a.Index),
		core.WithNavigator(a.Nav),
		core.WithDispatcher(a.Engine),
		core.WithServiceLogger(a.Logger.With("component", "service")),
	}
	if cfg.SiteURL != "" {
		site := cfg.SiteURL
		svcOpts = append(svcOpts, core.WithLinker(func(p string) string { return notify.Link(site, p) }))
	}
	a.Service = core.NewService(a.Repo, svcOpts...)
	return nil
}

func newSink(cfg Config, o *options, logger *slog.Logger) (notify.Sink, error) {
	if cfg.WebhookURL == "" {
		return notify.NopSink{}, nil
	}
	return notify.NewWebhookSink(notify.WebhookConfig{
		URL:        cfg.WebhookURL,
		HTTPClient: o.httpClient,
		Logger:     logger.With("component", "notify"),
	})
}

// Watch reports edits made outside the App to the Service until the
// returned stop function is called.
func (a *App) Watch(ctx context.Context) (func(context.Context) error, error) {
	return a.Repo.Watch(ctx, func(p string) {
		a.Logger.Debug("external change", "path", p)
		a.Service.ExternalChange(ctx, p)
	})
}

// Close releases the databases.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Tasks != nil {
		errs = append(errs, a.Tasks.Close())
	}
	return errors.Join(errs...)
}
