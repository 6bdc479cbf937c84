package fs_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/folio/pkg/adapters/fs"
	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/git"
)

// holdLock takes the writer lock from a second client, as another
// process working on the same tree would.
func holdLock(t *testing.T, path string) func() {
	t.Helper()
	client := git.NewClient(path, filepath.Join(".folio", "folio.lock"), nil)
	unlock, _, err := client.Lock(context.Background(), time.Second)
	require.NoError(t, err)
	return unlock
}

func TestLockTimeout(t *testing.T) {
	repo, path := setupRepo(t, func(c *fs.Config) {
		c.LockTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	unlock := holdLock(t, path)
	_, err := repo.Save(ctx, "blocked", "x\n", nil)
	unlock()

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLockTimeout), "got %v", err)

	_, err = repo.Get(ctx, "blocked")
	assert.True(t, errors.Is(err, core.ErrNotFound), "timed out save must not write, got %v", err)

	_, err = repo.Save(ctx, "blocked", "x\n", nil)
	assert.NoError(t, err, "lock must be usable once released")
}

func TestLockWaitIsObserved(t *testing.T) {
	repo, path := setupRepo(t)

	unlock := holdLock(t, path)
	time.AfterFunc(200*time.Millisecond, unlock)

	var waited time.Duration
	ctx := core.WithLockObserver(context.Background(), func(d time.Duration) { waited = d })
	_, err := repo.Save(ctx, "patient", "x\n", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, waited, 100*time.Millisecond)
}

func TestConcurrentSavesProduceOneCommitEach(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Save(ctx, fmt.Sprintf("pages-%d", i), fmt.Sprintf("writer %d\n", i), nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	changes, err := repo.History(ctx, 100)
	require.NoError(t, err)
	// One commit per save plus the initial ignore commit.
	assert.Len(t, changes, writers+1)
	for _, c := range changes[:writers] {
		assert.Len(t, c.Paths, 1, "commit %s mixes changes", c.Commit)
	}
}

func TestConcurrentWritesToSamePage(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Save(ctx, "hot", fmt.Sprintf("rev %d\n", i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	doc, err := repo.Get(ctx, "hot")
	require.NoError(t, err)
	assert.Regexp(t, `^rev \d\n$`, doc.Content)
}

func TestDeleteRacesSaveInSameDirectory(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := repo.Save(ctx, "shared/old", "x\n", nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var delErr, saveErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, delErr = repo.Delete(ctx, "shared/old")
		}()
		go func() {
			defer wg.Done()
			_, saveErr = repo.Save(ctx, fmt.Sprintf("shared/new-%d", i), "y\n", nil)
		}()
		wg.Wait()

		require.NoError(t, delErr)
		require.NoError(t, saveErr)
		_, err = repo.Get(ctx, fmt.Sprintf("shared/new-%d", i))
		require.NoError(t, err, "round %d", i)
	}
}
