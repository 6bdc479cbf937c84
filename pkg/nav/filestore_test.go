package nav

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Starts Empty if File Missing", func(t *testing.T) {
		s := NewFileStore(filepath.Join(t.TempDir(), "nav.json"))
		if _, ok, err := s.Get(ctx, "k"); ok || err != nil {
			t.Errorf("expected miss, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Round Trips Values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", "nav.json")
		s := NewFileStore(path)
		if err := s.Set(ctx, "k", []byte(`{"a":1}`), 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, ok, err := NewFileStore(path).Get(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
		}
		if string(got) != `{"a":1}` {
			t.Errorf("unexpected value %s", got)
		}
	})

	t.Run("Resets on Corrupted JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nav.json")
		if err := os.WriteFile(path, []byte("{invalid json"), 0644); err != nil {
			t.Fatal(err)
		}
		s := NewFileStore(path)
		if _, ok, err := s.Get(ctx, "k"); ok || err != nil {
			t.Errorf("expected miss on corrupted file, got ok=%v err=%v", ok, err)
		}
		if err := s.Set(ctx, "k", []byte(`1`), 0); err != nil {
			t.Errorf("expected write to heal the file: %v", err)
		}
	})

	t.Run("Rejects Non JSON", func(t *testing.T) {
		s := NewFileStore(filepath.Join(t.TempDir(), "nav.json"))
		if err := s.Set(ctx, "k", []byte("not json"), 0); err == nil {
			t.Error("expected error for invalid JSON value")
		}
	})

	t.Run("Expires Entries", func(t *testing.T) {
		now := time.Now()
		s := NewFileStore(filepath.Join(t.TempDir(), "nav.json"))
		s.now = func() time.Time { return now }
		if err := s.Set(ctx, "k", []byte(`true`), time.Minute); err != nil {
			t.Fatal(err)
		}
		now = now.Add(2 * time.Minute)
		if _, ok, _ := s.Get(ctx, "k"); ok {
			t.Error("expected expired entry to miss")
		}
	})

	t.Run("Deletes Keys", func(t *testing.T) {
		s := NewFileStore(filepath.Join(t.TempDir(), "nav.json"))
		_ = s.Set(ctx, "a", []byte(`1`), 0)
		_ = s.Set(ctx, "b", []byte(`2`), 0)
		if err := s.Delete(ctx, "a", "missing"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := s.Get(ctx, "a"); ok {
			t.Error("expected a deleted")
		}
		if _, ok, _ := s.Get(ctx, "b"); !ok {
			t.Error("expected b kept")
		}
	})

	t.Run("Stores Values Compactly", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nav.json")
		s := NewFileStore(path)
		if err := s.Set(ctx, "k", []byte("{\n  \"a\": 1\n}"), 0); err != nil {
			t.Fatal(err)
		}
		got, _, _ := s.Get(ctx, "k")
		if string(got) != `{"a":1}` {
			t.Errorf("unexpected value %s", got)
		}
	})

	t.Run("Leaves No Lock Behind", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nav.json")
		s := NewFileStore(path)
		_ = s.Set(ctx, "a", []byte(`1`), 0)
		_ = s.Delete(ctx, "a")
		if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
			t.Errorf("expected lock file removed, got %v", err)
		}
	})

	t.Run("Times Out on Held Lock", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nav.json")
		if err := os.WriteFile(path+".lock", nil, 0644); err != nil {
			t.Fatal(err)
		}
		s := NewFileStore(path)
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if err := s.Set(cctx, "k", []byte(`1`), 0); err == nil {
			t.Error("expected error while another process holds the lock")
		}
	})
}

// Two FileStores on one path stand in for two processes sharing nav.json.
func TestFileStoreConcurrentWritersKeepEachOthersKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nav.json")
	a := NewFileStore(path)
	b := NewFileStore(path)

	const rounds = 150
	var wg sync.WaitGroup
	wg.Add(2)
	lost := 0
	go func() {
		defer wg.Done()
		for i := 1; i <= rounds; i++ {
			if err := a.Set(ctx, keyGeneration, []byte(strconv.Itoa(i)), 0); err != nil {
				t.Error(err)
				return
			}
			got, ok, err := a.Get(ctx, keyGeneration)
			if err != nil || !ok {
				lost++
				continue
			}
			if n, _ := strconv.Atoi(string(got)); n < i {
				lost++
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := b.Set(ctx, KeyStructure, []byte(`{"categories":[]}`), 0); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	if lost != 0 {
		t.Errorf("generation writes lost to a concurrent writer: %d/%d", lost, rounds)
	}
	got, ok, _ := NewFileStore(path).Get(ctx, keyGeneration)
	if !ok || string(got) != strconv.Itoa(rounds) {
		t.Errorf("expected final generation %d, got %s", rounds, got)
	}
	if _, ok, _ := NewFileStore(path).Get(ctx, KeyStructure); !ok {
		t.Error("expected structure kept")
	}
}
