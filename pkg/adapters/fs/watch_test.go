package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/folio/pkg/adapters/fs"
)

type changeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (c *changeRecorder) record(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, p)
}

func (c *changeRecorder) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestWatchReportsExternalEdits(t *testing.T) {
	repo, path := setupRepo(t, func(c *fs.Config) {
		c.WatchIgnore = []string{"drafts/**"}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &changeRecorder{}
	stop, err := repo.Watch(ctx, rec.record)
	require.NoError(t, err)
	defer stop(context.Background())

	require.Eventually(t, func() bool {
		return repo.State().(fs.RepositoryState).WatcherActive
	}, 2*time.Second, 10*time.Millisecond)

	pages := filepath.Join(path, "pages")
	require.NoError(t, os.MkdirAll(filepath.Join(pages, "drafts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "drafts", "wip.md"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "notes.txt"), []byte("x"), 0644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(pages, "edited.md"), []byte("burst"), 0644))
	}

	require.Eventually(t, func() bool {
		return len(rec.seen()) > 0
	}, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, []string{"edited"}, rec.seen())
	assert.NotNil(t, repo.State().(fs.RepositoryState).LastExternalChange)
}

func TestWatchDefersEditsWhileLocked(t *testing.T) {
	repo, path := setupRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &changeRecorder{}
	stop, err := repo.Watch(ctx, rec.record)
	require.NoError(t, err)
	defer stop(context.Background())

	require.Eventually(t, func() bool {
		return repo.State().(fs.RepositoryState).WatcherActive
	}, 2*time.Second, 10*time.Millisecond)

	_, err = repo.Save(ctx, "own", "written by the store\n", nil)
	require.NoError(t, err)

	lock := filepath.Join(path, ".folio", "folio.lock")
	require.NoError(t, os.WriteFile(lock, []byte("held"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "pages", "held.md"), []byte("edited during a commit"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.seen(), "nothing is reported while the lock is held")

	require.NoError(t, os.Remove(lock))
	require.Eventually(t, func() bool {
		return len(rec.seen()) > 0
	}, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, []string{"held"}, rec.seen())
}

func TestWatchRejectsBadPattern(t *testing.T) {
	repo, _ := setupRepo(t, func(c *fs.Config) {
		c.WatchIgnore = []string{"[unclosed"}
	})
	_, err := repo.Watch(context.Background(), func(string) {})
	assert.Error(t, err)
}
