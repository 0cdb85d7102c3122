package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/trackit/internal/config"
	"github.com/goodtune/trackit/internal/dashboard"
	"github.com/goodtune/trackit/internal/insights"
	"github.com/goodtune/trackit/internal/logging"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/bolt"
	"github.com/goodtune/trackit/internal/systemd"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveOpen bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the usage dashboard",
	Long: `Serve the data directory, the usage API and Prometheus metrics over HTTP
until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "Open the dashboard page in the browser")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging, cmd.ErrOrStderr())

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting TrackIt dashboard")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	server, err := newDashboardServer(cfg, logger)
	if err != nil {
		return err
	}
	if sdListeners.Dashboard != nil {
		server.SetListener(sdListeners.Dashboard)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start dashboard: %w", err)
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Debug().Err(err).Msg("sd_notify ready not delivered")
	}

	logger.Info().Str("url", cfg.DashboardURL()).Msg("Dashboard ready")

	if serveOpen {
		if err := browser.OpenURL(cfg.DashboardURL()); err != nil {
			logger.Warn().Err(err).Msg("Failed to open browser")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	if err := systemd.NotifyStopping(); err != nil {
		logger.Debug().Err(err).Msg("sd_notify stopping not delivered")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// newDashboardServer builds a dashboard for the configured data directory.
func newDashboardServer(cfg *config.Config, logger zerolog.Logger) (*dashboard.Server, error) {
	var journal storage.JournalStore
	if path := cfg.JournalPath(); path != "" {
		j, err := bolt.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session journal: %w", err)
		}
		journal = j
	}

	server, err := dashboard.NewServer(dashboard.Config{
		ListenAddr: cfg.DashboardAddr(),
		DataDir:    cfg.Tracker.DataDir,
		Page:       cfg.Dashboard.Page,
		DataFile:   cfg.DataFilePath(),
		Journal:    journal,
		Location:   time.Local,
	}, insights.FromConfig(cfg.Insights), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dashboard: %w", err)
	}
	return server, nil
}
