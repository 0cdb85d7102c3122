package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/trackit/internal/metrics"
	"github.com/goodtune/trackit/internal/probe"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the pause between two ticks.
const DefaultPollInterval = time.Second

// RunnerConfig holds poll loop settings.
type RunnerConfig struct {
	PollInterval time.Duration
}

// Runner drives a Tracker from a Probe and persists the result after every
// tick.
type Runner struct {
	tracker  *Tracker
	probe    probe.Probe
	store    storage.DocumentStore
	journal  storage.JournalStore
	interval time.Duration
	logger   zerolog.Logger
}

// NewRunner creates a poll loop. journal may be nil.
func NewRunner(
	tracker *Tracker,
	p probe.Probe,
	store storage.DocumentStore,
	journal storage.JournalStore,
	config RunnerConfig,
	logger zerolog.Logger,
) *Runner {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Runner{
		tracker:  tracker,
		probe:    p,
		store:    store,
		journal:  journal,
		interval: config.PollInterval,
		logger:   logger.With().Str("component", "runner").Logger(),
	}
}

// Run polls until ctx is canceled, then shuts down gracefully. It returns
// early with an error on an unexpected probe fault or a failed save; the
// last successful save stays on disk.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("Tracker loop started")

	for {
		if err := r.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			r.logger.Error().Err(err).Msg("Tracker loop aborted")
			return err
		}

		// A fresh sleep after each tick; the cadence drifts by tick cost.
		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
			continue
		}
		break
	}

	return r.Shutdown(context.WithoutCancel(ctx))
}

// Tick takes one sample, applies it and saves the document.
func (r *Runner) Tick(ctx context.Context) error {
	metrics.TicksTotal.Inc()

	sample, err := r.probe.Sample(ctx)
	if err != nil {
		if !errors.Is(err, probe.ErrUnavailable) {
			return fmt.Errorf("sample foreground window: %w", err)
		}
		metrics.SamplesUnavailable.Inc()
		r.logger.Debug().Err(err).Msg("No foreground sample this tick")
		sample = nil
	}

	if closed := r.tracker.Observe(sample); closed != nil {
		r.record(ctx, closed)
	}

	return r.save(ctx)
}

// Shutdown takes a best-effort final sample, closes the open session and
// saves. Failures are logged and returned but nothing is retried.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.logger.Info().Msg("Stopping tracker, closing open session")

	sample, err := r.probe.Sample(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Final sample unavailable")
		sample = nil
	}
	if closed := r.tracker.Observe(sample); closed != nil {
		r.record(ctx, closed)
	}
	if closed := r.tracker.Close(); closed != nil {
		r.record(ctx, closed)
	}

	if err := r.save(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Final save failed")
		return err
	}

	r.logger.Info().Int("apps", r.tracker.Apps()).Msg("Tracker stopped")
	return nil
}

func (r *Runner) record(ctx context.Context, closed *ClosedSession) {
	metrics.SessionsClosed.WithLabelValues(closed.App).Inc()
	metrics.SessionDuration.Observe(closed.Session.Duration)

	r.logger.Info().
		Str("app", closed.App).
		Float64("duration", closed.Session.Duration).
		Msg("Session closed")

	if r.journal == nil {
		return
	}

	entry := storage.JournalEntry{
		App:       closed.App,
		StartTime: closed.Start,
		EndTime:   closed.End,
		Duration:  closed.Session.Duration,
	}
	if err := r.journal.Append(ctx, entry); err != nil {
		metrics.JournalErrors.Inc()
		r.logger.Warn().Err(err).Str("app", closed.App).Msg("Failed to journal session")
	}
}

func (r *Runner) save(ctx context.Context) error {
	start := time.Now()
	err := r.tracker.SaveTo(ctx, r.store)
	metrics.SaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SaveErrors.Inc()
		return fmt.Errorf("save usage document: %w", err)
	}
	metrics.TrackedApps.Set(float64(r.tracker.Apps()))
	return nil
}
