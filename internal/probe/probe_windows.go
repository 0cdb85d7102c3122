//go:build windows

package probe

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

var (
	modUser32 = windows.NewLazySystemDLL("user32.dll")

	procGetForegroundWindow      = modUser32.NewProc("GetForegroundWindow")
	procGetWindowTextLengthW     = modUser32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW           = modUser32.NewProc("GetWindowTextW")
	procGetWindowThreadProcessId = modUser32.NewProc("GetWindowThreadProcessId")
)

// SystemProbe samples the foreground window through user32.
type SystemProbe struct {
	inspector *Inspector
	logger    zerolog.Logger
}

// NewSystemProbe returns the probe for this platform.
func NewSystemProbe(cfg Config, logger zerolog.Logger) (Probe, error) {
	inspector, err := NewInspector(cfg.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	return &SystemProbe{
		inspector: inspector,
		logger:    logger.With().Str("component", "probe").Logger(),
	}, nil
}

// Sample implements Probe.
func (p *SystemProbe) Sample(ctx context.Context) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return nil, fmt.Errorf("%w: no foreground window", ErrUnavailable)
	}

	title := windowText(hwnd)

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return nil, fmt.Errorf("%w: window has no owning process", ErrUnavailable)
	}

	info, err := p.inspector.Inspect(ctx, int32(pid))
	if err != nil {
		return nil, err
	}

	return &Sample{
		WindowTitle:   title,
		AppName:       info.Name,
		AppPath:       info.Path,
		PID:           int32(pid),
		CPUPercent:    info.CPUPercent,
		MemoryPercent: info.MemoryPercent,
	}, nil
}

func windowText(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return syscall.UTF16ToString(buf)
}

func isAccessDenied(err error) bool {
	return errors.Is(err, windows.ERROR_ACCESS_DENIED)
}
