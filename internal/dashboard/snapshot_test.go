package dashboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/rs/zerolog"
)

func newTestSnapshot(t *testing.T) (*Snapshot, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity_data.json")
	s := NewSnapshot(path, zerolog.Nop())
	s.retryPause = time.Millisecond
	return s, path
}

func writeDocument(t *testing.T, path string, data storage.UsageData) {
	t.Helper()
	payload, err := jsonfile.Encode(data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSnapshotMissingFile(t *testing.T) {
	s, _ := newTestSnapshot(t)

	_, err := s.Get(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSnapshotCorruptWithoutHistory(t *testing.T) {
	s, path := newTestSnapshot(t)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := s.Get(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSnapshotKeepsLastGood(t *testing.T) {
	s, path := newTestSnapshot(t)
	writeDocument(t, path, storage.UsageData{"a.exe": storage.NewAppUsage()})

	if _, err := s.Get(context.Background()); err != nil {
		t.Fatalf("first get: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s.Invalidate()

	data, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("get after removal: %v", err)
	}
	if _, ok := data["a.exe"]; !ok {
		t.Fatalf("expected last good snapshot, got %v", data)
	}
}

func TestSnapshotWatchInvalidates(t *testing.T) {
	s, path := newTestSnapshot(t)
	writeDocument(t, path, storage.UsageData{"a.exe": storage.NewAppUsage()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watch: %v", err)
		}
	}()

	// Wait for the watcher to be installed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		watching := s.watching
		s.mu.Unlock()
		if watching {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := s.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}

	writeDocument(t, path, storage.UsageData{"a.exe": storage.NewAppUsage(), "b.exe": storage.NewAppUsage()})

	deadline = time.Now().Add(2 * time.Second)
	for {
		data, err := s.Get(ctx)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if _, ok := data["b.exe"]; ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never refreshed: %v", data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
