package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/folio/pkg/frontmatter"
)

// Service is the entry point for document mutations. After every local
// commit it reindexes the touched paths, invalidates navigation and
// queues a sync task. Failures past the commit are logged, never returned:
// the commit is the source of truth and the derived state catches up.
type Service struct {
	repo   Repository
	index  Indexer
	nav    Navigator
	tasks  Dispatcher
	logger *slog.Logger
	linker func(path string) string

	mu         sync.RWMutex
	dispatched int
	lastCommit string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithIndexer keeps a search index up to date.
func WithIndexer(i Indexer) ServiceOption {
	return func(s *Service) { s.index = i }
}

// WithNavigator invalidates the navigation cache after commits.
func WithNavigator(n Navigator) ServiceOption {
	return func(s *Service) { s.nav = n }
}

// WithDispatcher queues sync tasks after commits.
func WithDispatcher(d Dispatcher) ServiceOption {
	return func(s *Service) { s.tasks = d }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithLinker builds the optional link attached to notifications.
func WithLinker(fn func(path string) string) ServiceOption {
	return func(s *Service) { s.linker = fn }
}

// NewService creates a new Service.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Repository returns the underlying store.
func (s *Service) Repository() Repository { return s.repo }

// Read returns the document at path.
func (s *Service) Read(ctx context.Context, path string) (Document, error) {
	return s.repo.Get(ctx, path)
}

// Save writes a document. A save that changes nothing returns a NoOp
// commit and triggers no side effects.
func (s *Service) Save(ctx context.Context, path, body string, meta *frontmatter.Metadata) (Commit, error) {
	commit, err := s.repo.Save(ctx, path, body, meta)
	if err != nil || commit.NoOp {
		return commit, err
	}
	clean, _ := ValidatePath(path)
	kind := EventEdit
	if commit.Created {
		kind = EventCreate
	}
	s.afterCommit(ctx, commit, kind, clean, clean)
	return commit, nil
}

// Move relocates a document and its attachments.
func (s *Service) Move(ctx context.Context, from, to string) (Commit, error) {
	commit, err := s.repo.Move(ctx, from, to)
	if err != nil {
		return commit, err
	}
	src, _ := ValidatePath(from)
	dst, _ := ValidatePath(to)
	s.afterCommit(ctx, commit, EventMove, dst, src, dst)
	return commit, nil
}

// Archive moves a document under the archive root.
func (s *Service) Archive(ctx context.Context, path string) (Commit, error) {
	commit, err := s.repo.Archive(ctx, path)
	if err != nil {
		return commit, err
	}
	src, _ := ValidatePath(path)
	dst := ArchivePath(src)
	s.afterCommit(ctx, commit, EventArchive, dst, src, dst)
	return commit, nil
}

// Restore moves an archived document back to its original path.
func (s *Service) Restore(ctx context.Context, archivedPath string) (Commit, error) {
	commit, err := s.repo.Restore(ctx, archivedPath)
	if err != nil {
		return commit, err
	}
	src, _ := ValidatePath(archivedPath)
	dst := UnarchivePath(src)
	s.afterCommit(ctx, commit, EventMove, dst, src, dst)
	return commit, nil
}

// Delete removes a document, leaving its attachments in place.
func (s *Service) Delete(ctx context.Context, path string) (Commit, error) {
	clean, err := ValidatePath(path)
	if err != nil {
		return Commit{}, err
	}
	title := HumanizeSlug(clean)
	if doc, err := s.repo.Get(ctx, clean); err == nil {
		title = doc.Title()
	}

	commit, err := s.repo.Delete(ctx, clean)
	if err != nil {
		return commit, err
	}
	s.afterCommit(ctx, commit, EventDelete, "", clean)
	s.dispatchSync(ctx, fmt.Sprintf("Delete %s", clean), &Notification{Kind: EventDelete, Title: title})
	return commit, nil
}

// SaveAttachment stores a file next to a page and queues a sync.
func (s *Service) SaveAttachment(ctx context.Context, page, filename string, data io.Reader) (Commit, error) {
	commit, err := s.repo.SaveAttachment(ctx, page, filename, data)
	if err != nil {
		return commit, err
	}
	if commit.NoOp {
		return commit, nil
	}
	s.recordCommit(commit)
	s.dispatchSync(ctx, fmt.Sprintf("Attach %s to %s", filename, page), nil)
	return commit, nil
}

// Search queries the full-text index.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if s.index == nil {
		return nil, errors.New("search is not configured")
	}
	return s.index.Search(ctx, query, limit)
}

// Structure returns the navigation tree.
func (s *Service) Structure(ctx context.Context) (*Tree, error) {
	if s.nav == nil {
		return nil, errors.New("navigation is not configured")
	}
	return s.nav.Structure(ctx)
}

// RecentlyUpdated lists the pages with the newest content dates.
func (s *Service) RecentlyUpdated(ctx context.Context, limit int) ([]PageDate, error) {
	w, ok := s.nav.(Widgets)
	if !ok {
		return nil, errors.New("page widgets are not configured")
	}
	return w.RecentlyUpdated(ctx, limit)
}

// Stale lists the pages that are about to become outdated.
func (s *Service) Stale(ctx context.Context, limit int) ([]PageDate, error) {
	w, ok := s.nav.(Widgets)
	if !ok {
		return nil, errors.New("page widgets are not configured")
	}
	return w.Stale(ctx, limit)
}

// Titles maps every page path to its display title.
func (s *Service) Titles(ctx context.Context) (map[string]string, error) {
	return s.repo.Titles(ctx)
}

// History lists recent commits.
func (s *Service) History(ctx context.Context, limit int) ([]Change, error) {
	return s.repo.History(ctx, limit)
}

// ExternalChange refreshes derived state for a path edited outside the
// Service, for example by the filesystem watcher.
func (s *Service) ExternalChange(ctx context.Context, path string) {
	s.refresh(ctx, path)
}

// afterCommit refreshes derived state for paths and queues the sync task.
// eventPath names the document the notification is about; an empty
// eventPath means the caller dispatches on its own.
func (s *Service) afterCommit(ctx context.Context, commit Commit, kind EventKind, eventPath string, paths ...string) {
	s.recordCommit(commit)
	s.refresh(ctx, paths...)

	if eventPath == "" {
		return
	}
	n := &Notification{Kind: kind, Title: HumanizeSlug(eventPath)}
	if doc, err := s.repo.Get(ctx, eventPath); err == nil {
		n.Title = doc.Title()
	}
	if s.linker != nil {
		n.Link = s.linker(eventPath)
	}
	s.dispatchSync(ctx, fmt.Sprintf("%s %s", kind, eventPath), n)
}

func (s *Service) refresh(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if s.index != nil {
			if err := s.index.Reindex(ctx, p); err != nil {
				s.logger.Warn("failed to reindex", "path", p, "error", err)
			}
		}
		if s.nav != nil {
			if err := s.nav.Invalidate(ctx, ScopePath(p)); err != nil {
				s.logger.Warn("failed to invalidate navigation", "path", p, "error", err)
			}
		}
	}
}

func (s *Service) dispatchSync(ctx context.Context, message string, n *Notification) {
	if s.tasks == nil {
		return
	}
	id, err := s.tasks.Dispatch(ctx, TaskSync, SyncPayload{Message: message, Event: n})
	if err != nil {
		s.logger.Warn("failed to dispatch sync task", "error", err)
		return
	}
	s.mu.Lock()
	s.dispatched++
	s.mu.Unlock()
	s.logger.Debug("dispatched sync task", "task", id, "message", message)
}

func (s *Service) recordCommit(c Commit) {
	s.mu.Lock()
	s.lastCommit = c.ID
	s.mu.Unlock()
}
