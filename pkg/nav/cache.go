package nav

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/aretw0/folio/pkg/core"
)

// Cache keys.
const (
	KeyTitles     = "nav:titles"
	KeyStructure  = "nav:structure"
	KeyDates      = "nav:dates"
	keyGeneration = "nav:generation"
)

// DefaultTTL bounds how long an entry is served without a rebuild.
const DefaultTTL = 30 * time.Minute

// TitleSource lists every page with its display title.
type TitleSource interface {
	Titles(ctx context.Context) (map[string]string, error)
}

// DateSource lists pages with their content dates.
type DateSource interface {
	Dates(ctx context.Context) ([]core.PageDate, error)
}

// Config holds the cache configuration.
type Config struct {
	Store  Store
	Source TitleSource
	// Dates feeds the page widgets. Nil means Source, when it implements
	// DateSource.
	Dates   DateSource
	TTL     time.Duration
	Exclude []string
	Logger  *slog.Logger
}

// Cache serves the titles map and the navigation tree from a Store.
//
// Entries are tagged with the generation current when their rebuild
// started. Invalidation replaces the generation, so an entry built from
// a tree that changed meanwhile is never served.
type Cache struct {
	store   Store
	src     TitleSource
	dates   DateSource
	now     func() time.Time
	ttl     time.Duration
	exclude []string
	logger  *slog.Logger
	group   singleflight.Group

	mu       sync.Mutex
	hits     int
	misses   int
	rebuilds int
}

type envelope struct {
	Generation string          `json:"generation"`
	Data       json.RawMessage `json:"data"`
}

// New creates a Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("nav: a title source is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Exclude == nil {
		cfg.Exclude = DefaultExclude
	}
	for _, p := range cfg.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("nav: invalid exclude pattern %q", p)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Dates == nil {
		cfg.Dates, _ = cfg.Source.(DateSource)
	}
	return &Cache{
		store:   cfg.Store,
		src:     cfg.Source,
		dates:   cfg.Dates,
		now:     time.Now,
		ttl:     cfg.TTL,
		exclude: cfg.Exclude,
		logger:  cfg.Logger,
	}, nil
}

// Titles returns the cached path→title map, rebuilding it when needed.
func (c *Cache) Titles(ctx context.Context) (map[string]string, error) {
	return load(ctx, c, KeyTitles, c.src.Titles)
}

// Structure returns the cached navigation tree, rebuilding it when needed.
func (c *Cache) Structure(ctx context.Context) (*core.Tree, error) {
	return load(ctx, c, KeyStructure, func(ctx context.Context) (*core.Tree, error) {
		titles, err := c.Titles(ctx)
		if err != nil {
			return nil, err
		}
		tree := Build(titles, c.exclude)
		tree.Generated = time.Now().UTC()
		return tree, nil
	})
}

// Invalidate marks every cached entry stale. Scope All also drops them.
func (c *Cache) Invalidate(ctx context.Context, scope core.Scope) error {
	gen, err := json.Marshal(uuid.NewString())
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, keyGeneration, gen, 0); err != nil {
		return core.Storage("invalidate navigation", scope.Path, err)
	}
	if scope.All {
		if err := c.store.Delete(ctx, KeyTitles, KeyStructure, KeyDates); err != nil {
			return core.Storage("invalidate navigation", "", err)
		}
	}
	c.logger.Debug("navigation invalidated", "path", scope.Path, "all", scope.All)
	return nil
}

// Warm fills every entry.
func (c *Cache) Warm(ctx context.Context) error {
	if _, err := c.Titles(ctx); err != nil {
		return err
	}
	if _, err := c.Structure(ctx); err != nil {
		return err
	}
	if c.dates != nil {
		if _, err := c.pageDates(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) generation(ctx context.Context) string {
	raw, ok, err := c.store.Get(ctx, keyGeneration)
	if err != nil {
		c.logger.Warn("failed to read cache generation", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	var gen string
	if err := json.Unmarshal(raw, &gen); err != nil {
		return ""
	}
	return gen
}

// load serves key from the store when it belongs to the current
// generation, otherwise rebuilds it once for all concurrent callers.
func load[T any](ctx context.Context, c *Cache, key string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	gen := c.generation(ctx)

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("failed to read cache", "key", key, "error", err)
	} else if ok {
		var env envelope
		var v T
		if json.Unmarshal(raw, &env) == nil && env.Generation == gen && json.Unmarshal(env.Data, &v) == nil {
			c.count(&c.hits)
			return v, nil
		}
	}
	c.count(&c.misses)

	v, err, _ := c.group.Do(key+"@"+gen, func() (any, error) {
		v, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.count(&c.rebuilds)
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env, err := json.Marshal(envelope{Generation: gen, Data: data})
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, env, c.ttl); err != nil {
			c.logger.Warn("failed to store cache entry", "key", key, "error", err)
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache) count(n *int) {
	c.mu.Lock()
	*n++
	c.mu.Unlock()
}

var _ core.Navigator = (*Cache)(nil)
