package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goodtune/trackit/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketSessions = "sessions"

	// keyTimeLayout sorts lexically in time order for UTC times.
	keyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Journal implements storage.JournalStore using bbolt. The database is
// opened for each operation so the writer and readers in other processes
// only contend for the file lock briefly.
type Journal struct {
	path        string
	lockTimeout time.Duration
}

// Open returns a journal backed by the database at path.
func Open(path string) (*Journal, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &Journal{path: path, lockTimeout: time.Second}, nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	return j.path
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (j *Journal) open(readOnly bool) (*bbolt.DB, error) {
	db, err := bbolt.Open(j.path, 0o600, &bbolt.Options{
		Timeout:  j.lockTimeout,
		ReadOnly: readOnly,
	})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, storage.ErrBusy
		}
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	return db, nil
}

// Append records a closed session.
func (j *Journal) Append(ctx context.Context, entry storage.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := marshal(entry)
	if err != nil {
		return err
	}

	db, err := j.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketSessions, err)
		}
		return bucket.Put(entryKey(entry), value)
	})
}

// Range returns entries whose start time falls in [from, to], oldest first,
// plus the entry just before from if it was still open at from.
func (j *Journal) Range(ctx context.Context, from, to time.Time) ([]storage.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(j.path); errors.Is(err, os.ErrNotExist) {
		return []storage.JournalEntry{}, nil
	}

	db, err := j.open(true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	entries := []storage.JournalEntry{}
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketSessions))
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		min := []byte(from.UTC().Format(keyTimeLayout))
		max := []byte(to.UTC().Format(keyTimeLayout) + "\xff")

		k, v := c.Seek(min)
		// Include the previous session if it ended inside the range.
		if pk, pv := c.Prev(); pk != nil {
			var prev storage.JournalEntry
			if err := unmarshal(pv, &prev); err != nil {
				return err
			}
			if prev.EndTime.After(from) {
				k, v = pk, pv
			} else {
				k, v = c.Next()
			}
		} else {
			k, v = c.Seek(min)
		}

		for ; k != nil && bytes.Compare(k, max) <= 0; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry storage.JournalEntry
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func entryKey(entry storage.JournalEntry) []byte {
	return []byte(entry.StartTime.UTC().Format(keyTimeLayout) + "/" + entry.App)
}

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}
