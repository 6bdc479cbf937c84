package core

import (
	"context"
	"io"

	"github.com/aretw0/folio/pkg/frontmatter"
)

// Repository is the document store over the versioned tree. Every
// mutating method produces exactly one commit or fails without side
// effects, and serializes against all other mutations of the same tree.
type Repository interface {
	// Initialize prepares the tree (clone or init, layout directories).
	Initialize(ctx context.Context) error

	Get(ctx context.Context, path string) (Document, error)

	// Save merges meta over the stored user metadata and writes body.
	// Nothing is committed when neither changed.
	Save(ctx context.Context, path, body string, meta *frontmatter.Metadata) (Commit, error)

	Move(ctx context.Context, from, to string) (Commit, error)
	Archive(ctx context.Context, path string) (Commit, error)
	Restore(ctx context.Context, archivedPath string) (Commit, error)

	// Delete removes the page only. Its attachments stay in place.
	Delete(ctx context.Context, path string) (Commit, error)

	// List returns every page path, archived ones included, sorted.
	List(ctx context.Context) ([]string, error)

	// Titles maps every page path to its display title.
	Titles(ctx context.Context) (map[string]string, error)

	History(ctx context.Context, limit int) ([]Change, error)

	SaveAttachment(ctx context.Context, page, filename string, data io.Reader) (Commit, error)
	ListAttachments(ctx context.Context, page string) ([]Attachment, error)
}

// Syncable is implemented by repositories mirrored to a remote.
type Syncable interface {
	// Push reports false when there is no remote to push to.
	Push(ctx context.Context) (bool, error)
	// Pull reports whether the local tree changed.
	Pull(ctx context.Context) (bool, error)
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score"`
}

// Indexer maintains the full-text index derived from the Repository.
type Indexer interface {
	Reindex(ctx context.Context, path string) error
	RebuildAll(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// Scope selects what a navigation invalidation covers.
type Scope struct {
	Path string
	All  bool
}

// ScopePath invalidates after a change to a single path.
func ScopePath(p string) Scope { return Scope{Path: p} }

// ScopeAll invalidates after arbitrary external changes.
var ScopeAll = Scope{All: true}

// Navigator serves the cached navigation tree.
type Navigator interface {
	Structure(ctx context.Context) (*Tree, error)
	Invalidate(ctx context.Context, scope Scope) error
}

// Widgets lists pages by content date. A Navigator may implement it.
type Widgets interface {
	RecentlyUpdated(ctx context.Context, limit int) ([]PageDate, error)
	Stale(ctx context.Context, limit int) ([]PageDate, error)
}

// Dispatcher enqueues background tasks.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskType string, payload any) (string, error)
}
