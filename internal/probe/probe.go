// Package probe reports which application window currently has focus,
// together with resource usage of its owning process.
package probe

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means no usable sample could be taken this time: there
	// is no foreground window, its process exited, or access was denied.
	ErrUnavailable = errors.New("probe: foreground window unavailable")

	// ErrUnsupportedPlatform is returned by NewSystemProbe where no
	// foreground window API is implemented.
	ErrUnsupportedPlatform = errors.New("probe: foreground window detection is not supported on this platform")
)

// Sample is one observation of the foreground window.
type Sample struct {
	WindowTitle   string  `json:"window_title"`
	AppName       string  `json:"app_name"`
	AppPath       string  `json:"app_path"`
	PID           int32   `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Probe takes samples of the foreground window.
type Probe interface {
	// Sample returns the current foreground window, ErrUnavailable when
	// there is nothing to report, or another error for unexpected faults.
	Sample(ctx context.Context) (*Sample, error)
}

// Config holds probe settings.
type Config struct {
	// CacheSize bounds the process identity cache.
	CacheSize int
}

// DefaultCacheSize is used when Config.CacheSize is not positive.
const DefaultCacheSize = 256

// Func adapts a function to the Probe interface.
type Func func(ctx context.Context) (*Sample, error)

// Sample calls f.
func (f Func) Sample(ctx context.Context) (*Sample, error) {
	return f(ctx)
}
