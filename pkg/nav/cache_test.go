package nav

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/folio/pkg/core"
)

type fakeSource struct {
	mu     sync.Mutex
	titles map[string]string
	calls  atomic.Int32
	delay  time.Duration
}

func (f *fakeSource) Titles(context.Context) (map[string]string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.titles))
	for k, v := range f.titles {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) set(p, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles[p] = title
}

func newCache(t *testing.T, store Store, src TitleSource) *Cache {
	t.Helper()
	c, err := New(Config{Store: store, Source: src})
	require.NoError(t, err)
	return c
}

func TestStructureIsCached(t *testing.T) {
	src := &fakeSource{titles: map[string]string{"home": "Home"}}
	c := newCache(t, NewMemoryStore(), src)
	ctx := context.Background()

	first, err := c.Structure(ctx)
	require.NoError(t, err)
	second, err := c.Structure(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, first.Categories, second.Categories)
	assert.Equal(t, 2, c.State().(CacheState).Rebuilds, "titles and structure")
}

func TestInvalidatePathRebuildsOnNextRead(t *testing.T) {
	src := &fakeSource{titles: map[string]string{"home": "Home"}}
	c := newCache(t, NewMemoryStore(), src)
	ctx := context.Background()

	_, err := c.Structure(ctx)
	require.NoError(t, err)

	src.set("guides/setup", "Setup")
	require.NoError(t, c.Invalidate(ctx, core.ScopePath("guides/setup")))

	tree, err := c.Structure(ctx)
	require.NoError(t, err)
	assert.Equal(t, Build(src.titles, DefaultExclude).Categories, tree.Categories)
}

func TestInvalidateAllDropsEntries(t *testing.T) {
	store := NewMemoryStore()
	src := &fakeSource{titles: map[string]string{"home": "Home"}}
	c := newCache(t, store, src)
	ctx := context.Background()

	require.NoError(t, c.Warm(ctx))
	_, ok, _ := store.Get(ctx, KeyStructure)
	require.True(t, ok)

	require.NoError(t, c.Invalidate(ctx, core.ScopeAll))
	_, ok, _ = store.Get(ctx, KeyStructure)
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, KeyTitles)
	assert.False(t, ok)
}

func TestConcurrentRebuildsCollapse(t *testing.T) {
	src := &fakeSource{titles: map[string]string{"home": "Home"}, delay: 50 * time.Millisecond}
	c := newCache(t, NewMemoryStore(), src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Titles(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestStaleGenerationIsNotServed(t *testing.T) {
	store := NewMemoryStore()
	src := &fakeSource{titles: map[string]string{"home": "Home"}}
	c := newCache(t, store, src)
	ctx := context.Background()

	_, err := c.Titles(ctx)
	require.NoError(t, err)

	// A second process invalidates through the shared store.
	other := newCache(t, store, src)
	src.set("new", "New")
	require.NoError(t, other.Invalidate(ctx, core.ScopePath("new")))

	titles, err := c.Titles(ctx)
	require.NoError(t, err)
	assert.Contains(t, titles, "new")
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	src := &fakeSource{titles: map[string]string{"home": "Home"}}
	c := newCache(t, store, src)
	ctx := context.Background()

	_, err := c.Titles(ctx)
	require.NoError(t, err)
	now = now.Add(DefaultTTL + time.Second)
	_, err = c.Titles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestMemoryStoreKeepsValueSetDuringExpiry(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	store := NewMemoryStore()
	store.now = func() time.Time { return start }
	require.NoError(t, store.Set(ctx, "k", []byte("old"), time.Second))

	// The writer lands between the expiry check and the delete.
	refreshed := false
	store.now = func() time.Time {
		if !refreshed {
			refreshed = true
			require.NoError(t, store.Set(ctx, "k", []byte("fresh"), 0))
		}
		return start.Add(time.Minute)
	}

	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", string(v))

	v, ok, _ = store.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "fresh", string(v))
}

func TestFileStoreSharedBetweenCaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".folio", "nav.json")
	src := &fakeSource{titles: map[string]string{"home": "Home", "guides/setup": "Setup"}}
	ctx := context.Background()

	writer := newCache(t, NewFileStore(path), src)
	require.NoError(t, writer.Warm(ctx))
	calls := src.calls.Load()

	reader := newCache(t, NewFileStore(path), src)
	tree, err := reader.Structure(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, src.calls.Load(), "second process must read the shared snapshot")
	assert.Equal(t, 2, tree.Len())
}

func TestNewRejectsBadExclude(t *testing.T) {
	_, err := New(Config{Source: &fakeSource{}, Exclude: []string{"[oops"}})
	assert.Error(t, err)
	_, err = New(Config{})
	assert.Error(t, err)
}
