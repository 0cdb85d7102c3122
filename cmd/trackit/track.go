package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/trackit/internal/config"
	"github.com/goodtune/trackit/internal/logging"
	"github.com/goodtune/trackit/internal/metrics"
	"github.com/goodtune/trackit/internal/probe"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/bolt"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/goodtune/trackit/internal/systemd"
	"github.com/goodtune/trackit/internal/usage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var trackStdinStop bool

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Record foreground application usage",
	Long: `Sample the foreground window once per poll interval and keep the usage
document up to date until interrupted. With --stdin-stop the tracker also
stops gracefully when its standard input is closed.`,
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().BoolVar(&trackStdinStop, "stdin-stop", false, "Stop gracefully when stdin is closed")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging, cmd.ErrOrStderr()).
		With().Str("run_id", uuid.NewString()).Logger()

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("data_file", cfg.DataFilePath()).
		Msg("Starting TrackIt tracker")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if trackStdinStop {
		var cancel context.CancelFunc
		ctx, cancel = stopOnEOF(ctx, cmd.InOrStdin(), logger)
		defer cancel()
	}

	p, err := probe.NewSystemProbe(probe.Config{CacheSize: cfg.Probe.CacheSize}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize probe: %w", err)
	}

	return runTracker(ctx, cfg, p, logger)
}

// stopOnEOF cancels the returned context once r is closed by the parent.
func stopOnEOF(parent context.Context, r io.Reader, logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		_, _ = io.Copy(io.Discard, r)
		logger.Info().Msg("Stdin closed, stopping")
		cancel()
	}()
	return ctx, cancel
}

// runTracker wires stores, metrics and the poll loop around p and runs
// until ctx is done.
func runTracker(ctx context.Context, cfg *config.Config, p probe.Probe, logger zerolog.Logger) error {
	store, err := jsonfile.Open(cfg.DataFilePath(), jsonfile.Options{AtomicWrite: cfg.Tracker.AtomicWrite}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var journal storage.JournalStore
	if path := cfg.JournalPath(); path != "" {
		j, err := bolt.Open(path)
		if err != nil {
			return fmt.Errorf("failed to initialize session journal: %w", err)
		}
		journal = j
		logger.Info().Str("path", path).Msg("Session journal enabled")
	}

	data, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load usage data: %w", err)
	}
	logger.Info().Int("apps", len(data)).Msg("Usage data loaded")

	if cfg.Tracker.MetricsAddr != "" {
		metricsServer := metrics.NewServer(cfg.Tracker.MetricsAddr, logger)

		sdListeners, err := systemd.GetListeners()
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to get systemd listeners")
		} else if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}()
	}

	tracker := usage.NewTracker(data, usage.RealClock{}, logger)
	runner := usage.NewRunner(
		tracker,
		p,
		store,
		journal,
		usage.RunnerConfig{PollInterval: cfg.PollInterval()},
		logger,
	)

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("tracker stopped: %w", err)
	}
	return nil
}
