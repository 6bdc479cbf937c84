package nav

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/aretw0/folio/pkg/core"
)

const (
	fileLockTimeout = 5 * time.Second
	fileLockStale   = 30 * time.Second
)

// fileEntry is one persisted cache entry.
type fileEntry struct {
	Value   json.RawMessage `json:"value"`
	Expires *time.Time      `json:"expires,omitempty"`
}

// fileIndex is the on-disk snapshot.
type fileIndex struct {
	Version int                   `json:"version"`
	Entries map[string]*fileEntry `json:"entries"`
}

// FileStore persists entries as one JSON file, usually .folio/nav.json,
// so every process working on the tree shares the same cache. Writes go
// through a temp file and a rename, and read-modify-write cycles hold
// <Path>.lock so writers in other processes never drop each other's keys.
type FileStore struct {
	Path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore creates a FileStore at path. The file is created lazily.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, now: time.Now}
}

// load reads the snapshot. A missing or corrupted file reads as empty so
// the cache heals itself on the next write.
func (s *FileStore) load() (*fileIndex, error) {
	idx := &fileIndex{Version: 1, Entries: make(map[string]*fileEntry)}
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	if err := json.Unmarshal(data, idx); err != nil || idx.Entries == nil {
		return &fileIndex{Version: 1, Entries: make(map[string]*fileEntry)}, nil
	}
	return idx, nil
}

func (s *FileStore) save(idx *fileIndex) error {
	now := s.now()
	for k, e := range idx.Entries {
		if e.Expires != nil && !now.Before(*e.Expires) {
			delete(idx.Entries, k)
		}
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return err
	}
	if err := atomic.WriteFile(s.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// lock takes the cross-process lock file, blocking up to fileLockTimeout.
// A lock older than fileLockStale is left over from a crashed process and
// is removed.
func (s *FileStore) lock(ctx context.Context) (func(), error) {
	lockPath := s.Path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(fileLockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to lock cache: %w", err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > fileLockStale {
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, core.E(core.KindLockTimeout, "cache", s.Path, fmt.Errorf("%s held for %s", lockPath, fileLockTimeout))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return nil, false, err
	}
	e, ok := idx.Entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.Expires != nil && !s.now().Before(*e.Expires) {
		return nil, false, nil
	}
	return []byte(e.Value), true, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !json.Valid(value) {
		return fmt.Errorf("cache value for %q is not valid JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	idx, err := s.load()
	if err != nil {
		return err
	}
	e := &fileEntry{Value: append(json.RawMessage(nil), value...)}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		e.Expires = &exp
	}
	idx.Entries[key] = e
	return s.save(idx)
}

func (s *FileStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	idx, err := s.load()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := idx.Entries[k]; ok {
			delete(idx.Entries, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(idx)
}

var _ Store = (*FileStore)(nil)
