// Package dashboard serves the usage document, derived insights and the
// session journal over HTTP, alongside the static dashboard page.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goodtune/trackit/internal/insights"
	"github.com/goodtune/trackit/internal/metrics"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/goodtune/trackit/web"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// defaultRangeDays is the span of /api/sessions when no range is given.
const defaultRangeDays = 7

// Config holds the dashboard server configuration.
type Config struct {
	ListenAddr string
	// DataDir is served as static files.
	DataDir string
	// Page is the dashboard page name; the built-in page stands in when
	// DataDir has none.
	Page string
	// DataFile is the usage document path.
	DataFile string
	// Journal is optional; /api/sessions answers 404 without it.
	Journal storage.JournalStore
	// Location interprets stored timestamps; defaults to time.Local.
	Location *time.Location
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Server represents the dashboard HTTP server.
type Server struct {
	config   Config
	insights insights.Config
	snapshot *Snapshot
	router   *mux.Router
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger

	mu          sync.Mutex
	stopWatcher context.CancelFunc
	watcherDone chan struct{}
}

// NewServer creates a new dashboard server.
func NewServer(cfg Config, insightsCfg insights.Config, logger zerolog.Logger) (*Server, error) {
	if cfg.DataFile == "" {
		return nil, errors.New("dashboard: data file is required")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	logger = logger.With().Str("component", "dashboard").Logger()
	s := &Server{
		config:   cfg,
		insights: insightsCfg,
		snapshot: NewSnapshot(cfg.DataFile, logger),
		router:   mux.NewRouter(),
		logger:   logger,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/api/usage", s.handleUsage).Methods("GET").Name("usage")
	s.router.HandleFunc("/api/insights", s.handleInsights).Methods("GET").Name("insights")
	s.router.HandleFunc("/api/sessions", s.handleSessions).Methods("GET").Name("sessions")
	s.router.HandleFunc("/health", metrics.HealthHandler).Methods("GET").Name("health")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET").Name("metrics")

	s.router.PathPrefix("/").Handler(web.Handler(s.config.DataDir, s.config.Page)).Name("static")
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Snapshot returns the server's document cache.
func (s *Server) Snapshot() *Snapshot {
	return s.snapshot
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
	return s.config.ListenAddr
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("dashboard listen on %s: %w", s.config.ListenAddr, err)
		}
		s.listener = ln
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.stopWatcher = cancel
	s.watcherDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.snapshot.Watch(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("File watcher unavailable; falling back to polling")
		}
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("Starting dashboard server")
	ln := s.listener
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Dashboard server error")
		}
	}()

	return nil
}

// Stop gracefully stops the dashboard server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping dashboard server")

	s.mu.Lock()
	cancel, done := s.stopWatcher, s.watcherDone
	s.stopWatcher, s.watcherDone = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	data, ok := s.currentData(w, r)
	if !ok {
		return
	}

	payload, err := jsonfile.Encode(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode usage document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	data, ok := s.currentData(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, insights.Build(data, s.insights, s.config.Location))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.config.Journal == nil {
		writeError(w, http.StatusNotFound, "session journal is disabled")
		return
	}

	from, to, err := parseRange(r, time.Now().In(s.config.Location), s.config.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.config.Journal.Range(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, storage.ErrBusy) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "session journal is busy")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to read session journal")
		writeError(w, http.StatusInternalServerError, "failed to read session journal")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// currentData fetches the snapshot, answering 503 when none is available.
func (s *Server) currentData(w http.ResponseWriter, r *http.Request) (storage.UsageData, bool) {
	data, err := s.snapshot.Get(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "usage data not available yet")
			return nil, false
		}
		s.logger.Error().Err(err).Msg("Failed to read usage document")
		writeError(w, http.StatusInternalServerError, "failed to read usage document")
		return nil, false
	}
	return data, true
}

// parseRange reads from/to dates; to is inclusive of its whole day.
func parseRange(r *http.Request, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	to := today
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", v)
		}
		to = t
	}

	from := to.AddDate(0, 0, -(defaultRangeDays - 1))
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", v)
		}
		from = t
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from %s is after to %s", from.Format(dateLayout), to.Format(dateLayout))
	}
	return from, to.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}
