//go:build !windows

package probe

import (
	"github.com/rs/zerolog"
)

// NewSystemProbe returns ErrUnsupportedPlatform: foreground window lookup
// is only implemented for Windows.
func NewSystemProbe(cfg Config, logger zerolog.Logger) (Probe, error) {
	return nil, ErrUnsupportedPlatform
}

func isAccessDenied(err error) bool {
	return false
}
