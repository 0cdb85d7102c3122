package shell

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

// Server is a startable HTTP server, such as *dashboard.Server.
type Server interface {
	Start() error
	Stop(ctx context.Context) error
}

// DashboardToggleConfig describes how to run the dashboard in process.
type DashboardToggleConfig struct {
	// NewServer builds a fresh server for every start.
	NewServer func() (Server, error)
	// URL is opened in the browser after a start when OpenBrowser is set.
	URL         string
	OpenBrowser bool
	StopTimeout time.Duration
	// OpenURL defaults to browser.OpenURL.
	OpenURL func(url string) error
}

// DashboardToggle starts and stops the dashboard server.
type DashboardToggle struct {
	config DashboardToggleConfig
	logger zerolog.Logger

	mu     sync.Mutex
	server Server
}

// NewDashboardToggle creates a stopped dashboard toggle.
func NewDashboardToggle(cfg DashboardToggleConfig, logger zerolog.Logger) *DashboardToggle {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.OpenURL == nil {
		cfg.OpenURL = browser.OpenURL
	}
	return &DashboardToggle{
		config: cfg,
		logger: logger.With().Str("component", "dashboard-toggle").Logger(),
	}
}

// Start serves the dashboard and opens it in the browser.
func (d *DashboardToggle) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server != nil {
		return nil
	}
	if d.config.NewServer == nil {
		return errors.New("dashboard server factory not configured")
	}

	server, err := d.config.NewServer()
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	d.server = server

	if d.config.OpenBrowser && d.config.URL != "" {
		if err := d.config.OpenURL(d.config.URL); err != nil {
			// The server is up; the user can still browse to it by hand.
			d.logger.Warn().Err(err).Str("url", d.config.URL).Msg("Failed to open browser")
		}
	}
	return nil
}

// Stop shuts the dashboard down.
func (d *DashboardToggle) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.config.StopTimeout)
	defer cancel()

	err := d.server.Stop(ctx)
	d.server = nil
	return err
}

// Running reports whether the dashboard is being served.
func (d *DashboardToggle) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.server != nil
}
