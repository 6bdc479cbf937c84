package nav

import (
	"context"
	"sync"
	"time"
)

// Store is the key/value backend of the cache. Values are JSON documents.
// A zero ttl means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type memItem struct {
	value   []byte
	expires time.Time
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memItem), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !s.expired(item) {
		return item.value, true, nil
	}

	// A writer may have replaced the entry since the read lock was dropped.
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok = s.items[key]
	if !ok {
		return nil, false, nil
	}
	if s.expired(item) {
		delete(s.items, key)
		return nil, false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) expired(item memItem) bool {
	return !item.expires.IsZero() && !s.now().Before(item.expires)
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
