package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is what the inspector learns about a pid.
type ProcessInfo struct {
	Name          string
	Path          string
	CPUPercent    float64
	MemoryPercent float64
}

type identityKey struct {
	pid       int32
	createdAt int64
}

type identity struct {
	name string
	path string
}

// Inspector resolves pids to process name, executable path and resource
// usage. Name and path are cached per (pid, create time); resource usage is
// read from a fresh handle every call, so CPU percent is the non-blocking
// baseline reading and does not measure an interval.
type Inspector struct {
	cache  *lru.Cache[identityKey, identity]
	logger zerolog.Logger
}

// NewInspector creates an inspector with a bounded identity cache.
func NewInspector(cacheSize int, logger zerolog.Logger) (*Inspector, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[identityKey, identity](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create process cache: %w", err)
	}
	return &Inspector{
		cache:  cache,
		logger: logger.With().Str("component", "inspector").Logger(),
	}, nil
}

// Inspect returns information about pid. Processes that have exited or that
// cannot be opened yield ErrUnavailable.
func (i *Inspector) Inspect(ctx context.Context, pid int32) (*ProcessInfo, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, classify(err)
	}

	createdAt, err := proc.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, classify(err)
	}

	key := identityKey{pid: pid, createdAt: createdAt}
	id, ok := i.cache.Get(key)
	if !ok {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			return nil, classify(err)
		}
		path, err := proc.ExeWithContext(ctx)
		if err != nil {
			return nil, classify(err)
		}
		id = identity{name: name, path: path}
		i.cache.Add(key, id)
		i.logger.Debug().Int32("pid", pid).Str("name", name).Msg("Cached process identity")
	}

	cpu, err := proc.PercentWithContext(ctx, 0)
	if err != nil {
		return nil, classify(err)
	}
	mem, err := proc.MemoryPercentWithContext(ctx)
	if err != nil {
		return nil, classify(err)
	}

	return &ProcessInfo{
		Name:          id.name,
		Path:          id.path,
		CPUPercent:    cpu,
		MemoryPercent: float64(mem),
	}, nil
}

// Len returns the number of cached identities.
func (i *Inspector) Len() int {
	return i.cache.Len()
}

// classify maps expected process races and permission failures to
// ErrUnavailable and leaves everything else alone.
func classify(err error) error {
	switch {
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, os.ErrPermission),
		errors.Is(err, syscall.ESRCH):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case isAccessDenied(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
