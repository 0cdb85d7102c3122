package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record or document is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrBusy is returned when another process holds the storage lock. It is
// transient; callers may retry.
var ErrBusy = errors.New("storage: locked by another process")

// DocumentStore persists the whole usage document.
type DocumentStore interface {
	// Load returns the persisted document, or an empty one when nothing
	// usable is on disk.
	Load(ctx context.Context) (UsageData, error)
	// Save replaces the persisted document.
	Save(ctx context.Context, data UsageData) error
}

// JournalStore keeps closed sessions indexed by start time.
type JournalStore interface {
	Append(ctx context.Context, entry JournalEntry) error
	Range(ctx context.Context, from, to time.Time) ([]JournalEntry, error)
}
