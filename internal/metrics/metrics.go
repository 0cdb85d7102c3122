// Package metrics holds the Prometheus collectors of the tracker and the
// dashboard.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracker metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackit_ticks_total",
			Help: "Total poll iterations run by the tracker",
		},
	)

	SamplesUnavailable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackit_samples_unavailable_total",
			Help: "Ticks skipped because no foreground window could be sampled",
		},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackit_sessions_closed_total",
			Help: "Total focus sessions closed",
		},
		[]string{"app"},
	)

	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackit_session_duration_seconds",
			Help:    "Length of closed focus sessions",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	TrackedApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackit_tracked_apps",
			Help: "Number of applications in the usage document",
		},
	)

	// Storage metrics
	SaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackit_store_save_duration_seconds",
			Help:    "Time spent writing the usage document",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	SaveErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackit_store_save_errors_total",
			Help: "Failed writes of the usage document",
		},
	)

	JournalErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackit_journal_errors_total",
			Help: "Failed session journal appends",
		},
	)

	// Dashboard metrics
	DashboardRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackit_dashboard_requests_total",
			Help: "Dashboard HTTP requests",
		},
		[]string{"route", "code"},
	)

	SnapshotReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackit_dashboard_snapshot_reloads_total",
			Help: "Usage document reloads by the dashboard",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		SamplesUnavailable,
		SessionsClosed,
		SessionDuration,
		TrackedApps,
		SaveDuration,
		SaveErrors,
		JournalErrors,
		DashboardRequests,
		SnapshotReloads,
	)
}

// Server exposes /metrics and /health for the tracker process.
type Server struct {
	addr     string
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a metrics server for addr.
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", HealthHandler)

	return &Server{
		addr: addr,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
		}
		s.listener = ln
	} else {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
	}

	s.logger.Info().Str("addr", s.Addr()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop waits for in-flight scrapes until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
