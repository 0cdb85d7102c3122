// Package jsonfile stores the usage document as a single indented JSON file.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goodtune/trackit/internal/storage"
	"github.com/rs/zerolog"
)

// Options controls how the document is written.
type Options struct {
	// AtomicWrite writes to a temp file and renames it over the target.
	// When false the target is truncated and rewritten in place.
	AtomicWrite bool
}

// Store implements storage.DocumentStore on top of one JSON file.
type Store struct {
	path   string
	opts   Options
	logger zerolog.Logger
}

// Open returns a Store for path, creating the parent directory if needed.
// The file itself is created on first Save.
func Open(path string, opts Options, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	return &Store{
		path:   path,
		opts:   opts,
		logger: logger.With().Str("component", "jsonfile").Str("path", path).Logger(),
	}, nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document. A missing file yields an empty document. A file
// that cannot be parsed is discarded and also yields an empty document.
func (s *Store) Load(ctx context.Context) (storage.UsageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := ReadSnapshot(s.path)
	switch {
	case err == nil:
		s.logger.Debug().Int("apps", len(data)).Msg("Loaded usage document")
		return data, nil
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Debug().Msg("No usage document yet, starting empty")
		return storage.UsageData{}, nil
	case IsParseError(err):
		s.logger.Warn().Err(err).Msg("Usage document is unreadable, starting empty")
		return storage.UsageData{}, nil
	default:
		return nil, err
	}
}

// Save writes the whole document, indented with four spaces.
func (s *Store) Save(ctx context.Context, data storage.UsageData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := Encode(data)
	if err != nil {
		return err
	}

	if !s.opts.AtomicWrite {
		if err := os.WriteFile(s.path, payload, 0o644); err != nil {
			return fmt.Errorf("write usage document: %w", err)
		}
		return nil
	}

	return writeAtomic(s.path, payload)
}

// Encode renders data in the on-disk format.
func Encode(data storage.UsageData) ([]byte, error) {
	if data == nil {
		data = storage.UsageData{}
	}
	data.Normalize()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("encode usage document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ReadSnapshot strictly reads the document at path. It returns
// storage.ErrNotFound when the file is missing and a *ParseError when the
// content is partial or corrupt, so readers can retry.
func ReadSnapshot(path string) (storage.UsageData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read usage document: %w", err)
	}

	var data storage.UsageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if data == nil {
		// A literal "null" document.
		data = storage.UsageData{}
	}
	data.Normalize()
	return data, nil
}

// ParseError reports a document that exists but does not decode.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse usage document %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err came from an undecodable document.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func writeAtomic(path string, payload []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write usage document: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write usage document: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write usage document: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("write usage document: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write usage document: %w", err)
	}
	return nil
}
