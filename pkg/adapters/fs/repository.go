package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/frontmatter"
	"github.com/aretw0/folio/pkg/git"
)

// Tree layout, relative to the repository root.
const (
	PagesDir       = "pages"
	AttachmentsDir = "attachments"
	pageExt        = ".md"
)

const (
	defaultSystemDir   = ".folio"
	defaultLockTimeout = 10 * time.Second
	defaultRemote      = "origin"
	lockWaitThreshold  = 100 * time.Millisecond
	lockFileName       = "folio.lock"
)

// Repository implements core.Repository on a git working tree.
type Repository struct {
	Path   string
	git    *git.Client
	config Config

	mu                 sync.RWMutex
	watcherActive      bool
	lastCommit         string
	lastExternalChange *time.Time
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path string
	// RemoteURL is cloned on Initialize when Path is not a repository yet.
	RemoteURL string
	// Branch is pushed to and pulled from. Empty means the current branch.
	Branch string
	// AutoInit runs git init when Path is not a repository and no RemoteURL is set.
	AutoInit    bool
	SystemDir   string // e.g. ".folio"
	LockTimeout time.Duration
	Logger      *slog.Logger
	// Now overrides the clock used for last_updated.
	Now func() time.Time
	// WatchIgnore holds doublestar patterns, relative to pages/, that Watch skips.
	WatchIgnore []string
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = defaultSystemDir
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Repository{
		Path:   config.Path,
		git:    git.NewClient(config.Path, filepath.Join(config.SystemDir, lockFileName), config.Logger),
		config: config,
	}
}

// Initialize prepares the working tree: clone or init, layout directories,
// ignore rules and an initial commit.
func (r *Repository) Initialize(ctx context.Context) error {
	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}

	if !r.git.IsRepo() {
		switch {
		case r.config.RemoteURL != "":
			r.config.Logger.Info("cloning repository", "url", r.config.RemoteURL, "branch", r.config.Branch)
			if err := r.git.Clone(ctx, r.config.RemoteURL, r.config.Branch); err != nil {
				if git.IsNetworkError(err) {
					return core.Transient("clone", err)
				}
				return fmt.Errorf("failed to clone %s: %w", r.config.RemoteURL, err)
			}
		case r.config.AutoInit:
			branch := r.config.Branch
			if branch == "" {
				branch = "main"
			}
			if err := r.git.Init(ctx, branch); err != nil {
				return fmt.Errorf("failed to git init: %w", err)
			}
		default:
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
	}

	if err := r.git.EnsureIdentity(ctx, "Folio", "folio@localhost"); err != nil {
		return fmt.Errorf("failed to configure git identity: %w", err)
	}

	for _, dir := range []string{PagesDir, AttachmentsDir, r.config.SystemDir} {
		if err := os.MkdirAll(filepath.Join(r.Path, dir), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	mod, err := r.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}

	head, err := r.git.Head(ctx)
	if err != nil {
		return fmt.Errorf("failed to read HEAD: %w", err)
	}
	if mod || head == "" {
		if err := r.git.Add(ctx, ".gitignore"); err != nil {
			return fmt.Errorf("failed to add .gitignore: %w", err)
		}
		if head, err = r.git.Commit(ctx, fmt.Sprintf("chore: configure %s ignore", r.config.SystemDir)); err != nil {
			return fmt.Errorf("failed to commit .gitignore: %w", err)
		}
	}
	r.recordCommit(head)
	return nil
}

func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	ignoreEntry := r.config.SystemDir + "/"

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == ignoreEntry {
			return false, nil
		}
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	if _, err := f.WriteString(ignoreEntry + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

// pageRel returns the slash-separated repository path of a page file.
func pageRel(p string) string {
	return PagesDir + "/" + p + pageExt
}

// attachmentRel returns the repository path of a page's attachment directory.
func attachmentRel(p string) string {
	return AttachmentsDir + "/" + p
}

func (r *Repository) abs(rel string) string {
	return filepath.Join(r.Path, filepath.FromSlash(rel))
}

// Get reads the document at path. It never takes the writer lock.
func (r *Repository) Get(ctx context.Context, path string) (core.Document, error) {
	clean, err := core.ValidatePath(path)
	if err != nil {
		return core.Document{}, err
	}

	full := r.abs(pageRel(clean))
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Document{}, core.NotFound("read", clean)
		}
		return core.Document{}, core.Storage("read", clean, err)
	}

	meta, body := frontmatter.Decode(string(data))
	doc := core.Document{Path: clean, Content: body, Metadata: meta}
	if info, err := os.Stat(full); err == nil {
		doc.LastModified = info.ModTime()
	}
	return doc, nil
}

// List returns every page path under pages/, archived ones included.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	root := r.abs(PagesDir)
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), pageExt) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, strings.TrimSuffix(filepath.ToSlash(rel), pageExt))
		return nil
	})
	if err != nil {
		return nil, core.Storage("list", "", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Titles maps every page to its title, reading headers only.
func (r *Repository) Titles(ctx context.Context) (map[string]string, error) {
	paths, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(paths))
	for _, p := range paths {
		meta, err := readHeader(r.abs(pageRel(p)))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, core.Storage("titles", p, err)
		}
		titles[p] = core.TitleFor(p, meta)
	}
	return titles, nil
}

// Dates lists every page outside the archive with its content date: the
// first date entry of its header, or the file's modification time.
func (r *Repository) Dates(ctx context.Context) ([]core.PageDate, error) {
	paths, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.PageDate, 0, len(paths))
	for _, p := range paths {
		if core.IsArchived(p) {
			continue
		}
		file := r.abs(pageRel(p))
		meta, err := readHeader(file)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, core.Storage("dates", p, err)
		}
		date, ok := core.ContentDate(meta)
		if !ok {
			info, err := os.Stat(file)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, core.Storage("dates", p, err)
			}
			date = info.ModTime()
		}
		out = append(out, core.PageDate{Path: p, Title: core.TitleFor(p, meta), Date: date})
	}
	return out, nil
}

// History lists up to limit recent commits, newest first. Page files are
// reported by document path.
func (r *Repository) History(ctx context.Context, limit int) ([]core.Change, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	entries, err := r.git.Log(ctx, limit)
	if err != nil {
		return nil, core.Storage("history", "", err)
	}
	changes := make([]core.Change, 0, len(entries))
	for _, e := range entries {
		c := core.Change{Commit: e.Hash, Date: e.Date, Message: e.Subject}
		for _, f := range e.Files {
			if strings.HasPrefix(f, PagesDir+"/") && strings.HasSuffix(f, pageExt) {
				f = strings.TrimSuffix(strings.TrimPrefix(f, PagesDir+"/"), pageExt)
			}
			c.Paths = append(c.Paths, f)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// Head returns the current commit id.
func (r *Repository) Head(ctx context.Context) (string, error) {
	head, err := r.git.Head(ctx)
	if err != nil {
		return "", core.Storage("head", "", err)
	}
	return head, nil
}

func (r *Repository) recordCommit(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCommit = id
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// removeEmptyParents deletes empty directories between dir and stop.
func removeEmptyParents(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
