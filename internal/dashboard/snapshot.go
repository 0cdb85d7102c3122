package dashboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goodtune/trackit/internal/metrics"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/rs/zerolog"
)

// ErrNoSnapshot is returned when the usage document has never been read
// successfully.
var ErrNoSnapshot = errors.New("dashboard: no usage snapshot available")

const (
	defaultReadAttempts = 3
	defaultRetryPause   = 50 * time.Millisecond
)

// Snapshot caches the last good copy of the usage document. The tracker
// rewrites the file every tick, so reads may observe a missing or partial
// file; those are retried and then answered from the cache.
type Snapshot struct {
	path       string
	attempts   int
	retryPause time.Duration
	logger     zerolog.Logger

	mu       sync.Mutex
	data     storage.UsageData
	loaded   bool
	dirty    bool
	watching bool
	modTime  time.Time
	size     int64
}

// NewSnapshot creates a cache for the document at path.
func NewSnapshot(path string, logger zerolog.Logger) *Snapshot {
	return &Snapshot{
		path:       path,
		attempts:   defaultReadAttempts,
		retryPause: defaultRetryPause,
		logger:     logger.With().Str("component", "snapshot").Logger(),
		dirty:      true,
	}
}

// Path returns the watched document path.
func (s *Snapshot) Path() string {
	return s.path
}

// Invalidate forces the next Get to re-read the document.
func (s *Snapshot) Invalidate() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Get returns the current document, re-reading it when it has changed.
func (s *Snapshot) Get(ctx context.Context) (storage.UsageData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded && !s.changedLocked() {
		return s.data, nil
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return s.fallbackLocked(ctx.Err())
			case <-time.After(s.retryPause):
			}
		}

		info, statErr := os.Stat(s.path)
		data, err := jsonfile.ReadSnapshot(s.path)
		if err == nil {
			s.data = data
			s.loaded = true
			s.dirty = false
			if statErr == nil {
				s.modTime = info.ModTime()
				s.size = info.Size()
			}
			metrics.SnapshotReloads.WithLabelValues("ok").Inc()
			return s.data, nil
		}
		lastErr = err
		s.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Usage document not readable")
	}

	return s.fallbackLocked(lastErr)
}

func (s *Snapshot) fallbackLocked(err error) (storage.UsageData, error) {
	if s.loaded {
		metrics.SnapshotReloads.WithLabelValues("stale").Inc()
		s.logger.Warn().Err(err).Msg("Serving previous usage snapshot")
		return s.data, nil
	}
	metrics.SnapshotReloads.WithLabelValues("unavailable").Inc()
	if errors.Is(err, storage.ErrNotFound) || jsonfile.IsParseError(err) {
		return nil, ErrNoSnapshot
	}
	return nil, errors.Join(ErrNoSnapshot, err)
}

// changedLocked reports whether the cached copy may be out of date. With a
// watcher running the dirty flag is authoritative; otherwise the file's
// size and modification time are compared.
func (s *Snapshot) changedLocked() bool {
	if s.dirty {
		return true
	}
	if s.watching {
		return false
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return true
	}
	return !info.ModTime().Equal(s.modTime) || info.Size() != s.size
}

// Watch invalidates the cache whenever the document changes, until ctx is
// cancelled. The containing directory is watched so atomic renames are
// seen.
func (s *Snapshot) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	name := filepath.Base(s.path)

	s.mu.Lock()
	s.watching = true
	s.dirty = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watching = false
		s.mu.Unlock()
	}()

	s.logger.Debug().Str("dir", dir).Msg("Watching usage document")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) == name {
				s.Invalidate()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("Watcher error")
			s.Invalidate()
		}
	}
}
