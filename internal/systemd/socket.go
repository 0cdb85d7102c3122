// Package systemd wires the dashboard and metrics servers to systemd socket
// activation and readiness notification.
package systemd

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Socket names, set with FileDescriptorName= in trackit.socket.
const (
	DashboardSocket = "dashboard"
	MetricsSocket   = "metrics"
)

// Listeners holds the sockets systemd passed in. Unset fields mean the
// server binds its configured address itself.
type Listeners struct {
	Dashboard net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners collects socket-activated listeners by name. Outside socket
// activation it returns an empty Listeners.
func GetListeners() (*Listeners, error) {
	if len(activation.Files(false)) == 0 {
		return &Listeners{}, nil
	}

	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	return &Listeners{
		Dashboard: first(named[DashboardSocket]),
		Metrics:   first(named[MetricsSocket]),
		Activated: true,
	}, nil
}

func first(lns []net.Listener) net.Listener {
	if len(lns) == 0 {
		return nil
	}
	return lns[0]
}

// NotifyReady tells systemd the server is accepting connections.
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyStopping tells systemd shutdown has begun.
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

// notify is a no-op when not running under systemd.
func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("failed to send sd_notify %s: %w", state, err)
	}
	return nil
}
