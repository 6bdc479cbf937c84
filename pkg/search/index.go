// Package search maintains a full-text index of the pages of a repository.
//
// The index is derived state: it lives in a SQLite file inside the system
// directory, can be deleted at any time and is rebuilt from the store with
// RebuildAll.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/frontmatter"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Source is the read side of the store the index is derived from.
type Source interface {
	Get(ctx context.Context, path string) (core.Document, error)
	List(ctx context.Context) ([]string, error)
}

// Config holds the index configuration.
type Config struct {
	// Path of the SQLite database file.
	Path   string
	Logger *slog.Logger
}

// Index is a SQLite FTS5 index over page titles, bodies and text metadata.
type Index struct {
	db     *sql.DB
	src    Source
	path   string
	logger *slog.Logger

	// mu serializes writers; readers go straight to the WAL.
	mu    sync.Mutex
	group singleflight.Group

	stateMu     sync.RWMutex
	documents   int
	lastRebuild *time.Time
}

// Open opens or creates the index database.
func Open(cfg Config, src Source) (*Index, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	const schema = `CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
		path UNINDEXED,
		title,
		content,
		tokenize = 'porter unicode61'
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create search schema: %w", err)
	}

	return &Index{db: db, src: src, path: cfg.Path, logger: cfg.Logger}, nil
}

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Reindex replaces the rows of path with the current document, or drops
// them when the document no longer exists. The document is read under the
// index mutex so the last call to finish always indexes the newest content.
func (i *Index) Reindex(ctx context.Context, path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	doc, err := i.src.Get(ctx, path)
	missing := errors.Is(err, core.ErrNotFound)
	if err != nil && !missing {
		return err
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Storage("reindex", path, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages_fts WHERE path = ?`, path); err != nil {
		return core.Storage("reindex", path, err)
	}
	if !missing {
		if err := insert(ctx, tx, doc); err != nil {
			return core.Storage("reindex", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return core.Storage("reindex", path, err)
	}
	i.logger.Debug("reindexed", "path", path, "removed", missing)
	return nil
}

// RebuildAll drops every row and indexes every listed page again.
// Concurrent calls share one rebuild.
func (i *Index) RebuildAll(ctx context.Context) (int, error) {
	return i.Rebuild(ctx, nil)
}

// Rebuild is RebuildAll with a progress callback, called after each page.
func (i *Index) Rebuild(ctx context.Context, progress func(done, total int)) (int, error) {
	v, err, shared := i.group.Do("rebuild", func() (any, error) {
		return i.rebuild(ctx, progress)
	})
	if shared {
		i.logger.Debug("joined running rebuild")
	}
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (i *Index) rebuild(ctx context.Context, progress func(done, total int)) (int, error) {
	start := time.Now()

	i.mu.Lock()
	defer i.mu.Unlock()

	paths, err := i.src.List(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.Storage("rebuild index", "", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages_fts`); err != nil {
		return 0, core.Storage("rebuild index", "", err)
	}

	count := 0
	for n, p := range paths {
		doc, err := i.src.Get(ctx, p)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return 0, err
		}
		if err := insert(ctx, tx, doc); err != nil {
			return 0, core.Storage("rebuild index", p, err)
		}
		count++
		if progress != nil {
			progress(n+1, len(paths))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, core.Storage("rebuild index", "", err)
	}

	now := time.Now()
	i.stateMu.Lock()
	i.documents = count
	i.lastRebuild = &now
	i.stateMu.Unlock()

	i.logger.Info("search index rebuilt", "documents", count, "duration", time.Since(start))
	return count, nil
}

func insert(ctx context.Context, tx *sql.Tx, doc core.Document) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO pages_fts (path, title, content) VALUES (?, ?, ?)`,
		doc.Path, doc.Title(), indexable(doc))
	return err
}

// indexable returns the body followed by the textual metadata values.
func indexable(doc core.Document) string {
	var sb strings.Builder
	sb.WriteString(doc.Content)
	for _, k := range doc.Metadata.Keys() {
		if k == core.TitleKey || core.IsSystemManaged(k) {
			continue
		}
		v, _ := doc.Metadata.Get(k)
		switch v.Kind() {
		case frontmatter.KindString:
			s, _ := v.Str()
			sb.WriteString("\n")
			sb.WriteString(s)
		case frontmatter.KindStringList:
			items, _ := v.List()
			sb.WriteString("\n")
			sb.WriteString(strings.Join(items, " "))
		case frontmatter.KindNumber, frontmatter.KindBoolean, frontmatter.KindDate, frontmatter.KindDateTime:
		}
	}
	return sb.String()
}
