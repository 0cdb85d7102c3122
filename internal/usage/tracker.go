package usage

import (
	"context"
	"sync"
	"time"

	"github.com/goodtune/trackit/internal/probe"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/rs/zerolog"
)

// State is the session lifecycle state. The zero value is Idle.
type State struct {
	Tracking bool
	App      string
	Start    time.Time
}

// ClosedSession is returned whenever a session ends.
type ClosedSession struct {
	App     string
	Start   time.Time
	End     time.Time
	Session storage.Session
}

// Tracker applies foreground samples to the usage document. It holds at
// most one open session, which lives only in memory until it is closed.
type Tracker struct {
	data   storage.UsageData
	state  State
	clock  Clock
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewTracker creates a tracker over data, which it mutates in place.
func NewTracker(data storage.UsageData, clock Clock, logger zerolog.Logger) *Tracker {
	if data == nil {
		data = storage.UsageData{}
	}
	data.Normalize()
	if clock == nil {
		clock = RealClock{}
	}

	return &Tracker{
		data:   data,
		clock:  clock,
		logger: logger.With().Str("component", "usage-tracker").Logger(),
	}
}

// Observe applies one sample. A nil sample means nothing could be observed
// and leaves everything unchanged. When the sample moves focus to another
// application the previous session is closed and returned.
func (t *Tracker) Observe(sample *probe.Sample) *ClosedSession {
	if sample == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()

	app, ok := t.data[sample.AppName]
	if !ok || app == nil {
		app = storage.NewAppUsage()
		app.LastPath = sample.AppPath
		t.data[sample.AppName] = app
	}

	if !app.HasTitle(sample.WindowTitle) {
		app.WindowTitles = append(app.WindowTitles, sample.WindowTitle)
	}

	var closed *ClosedSession
	if !t.state.Tracking || t.state.App != sample.AppName {
		closed = t.closeLocked(now)

		t.state = State{Tracking: true, App: sample.AppName, Start: now}
		app.TotalSessions++
		app.LastPath = sample.AppPath

		t.logger.Debug().
			Str("app", sample.AppName).
			Str("title", sample.WindowTitle).
			Msg("Started focus session")
	}

	// Exponential smoothing with weight 1/2, not a true mean.
	app.AvgCPUUsage = (app.AvgCPUUsage + sample.CPUPercent) / 2
	app.AvgMemoryUsage = (app.AvgMemoryUsage + sample.MemoryPercent) / 2

	return closed
}

// Close ends the open session, if any, and returns the tracker to Idle.
func (t *Tracker) Close() *ClosedSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closeLocked(t.clock.Now())
}

func (t *Tracker) closeLocked(now time.Time) *ClosedSession {
	if !t.state.Tracking {
		return nil
	}

	prev := t.state
	t.state = State{}

	app, ok := t.data[prev.App]
	if !ok || app == nil {
		app = storage.NewAppUsage()
		t.data[prev.App] = app
	}

	session := storage.NewSession(prev.Start, now)
	app.Sessions = append(app.Sessions, session)
	app.TotalTime += session.Duration

	t.logger.Debug().
		Str("app", prev.App).
		Float64("duration", session.Duration).
		Msg("Closed focus session")

	return &ClosedSession{
		App:     prev.App,
		Start:   prev.Start,
		End:     now,
		Session: session,
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Data returns the live usage document without locking. It must only be
// called from the goroutine that calls Observe; other goroutines use SaveTo.
func (t *Tracker) Data() storage.UsageData {
	return t.data
}

// SaveTo writes the usage document to store while holding the tracker lock,
// so no sample is applied mid-encode.
func (t *Tracker) SaveTo(ctx context.Context, store storage.DocumentStore) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return store.Save(ctx, t.data)
}

// Apps returns the number of applications seen so far.
func (t *Tracker) Apps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}
