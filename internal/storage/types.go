package storage

import (
	"fmt"
	"time"
)

// timestampLayout is local wall-clock time without an offset. Microseconds
// are appended only when non-zero.
const timestampLayout = "2006-01-02T15:04:05"

// UsageData is the persisted document: application name to usage record.
type UsageData map[string]*AppUsage

// AppUsage holds the accumulated statistics for one application.
// Field order is the on-disk key order.
type AppUsage struct {
	TotalSessions  int       `json:"total_sessions"`
	TotalTime      float64   `json:"total_time"`
	Sessions       []Session `json:"sessions"`
	LastPath       string    `json:"last_path"`
	WindowTitles   []string  `json:"window_titles"`
	AvgCPUUsage    float64   `json:"avg_cpu_usage"`
	AvgMemoryUsage float64   `json:"avg_memory_usage"`
}

// Session is a closed interval of foreground time for one application.
type Session struct {
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Duration  float64 `json:"duration"`
}

// JournalEntry is a closed session tagged with its application, as kept in
// the session journal.
type JournalEntry struct {
	App       string    `json:"app"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"`
}

// NewAppUsage returns a zeroed record with empty, non-nil slices.
func NewAppUsage() *AppUsage {
	return &AppUsage{
		Sessions:     []Session{},
		WindowTitles: []string{},
	}
}

// Normalize replaces nil records and slices so the document always encodes
// lists as [] rather than null.
func (d UsageData) Normalize() {
	for name, app := range d {
		if app == nil {
			d[name] = NewAppUsage()
			continue
		}
		if app.Sessions == nil {
			app.Sessions = []Session{}
		}
		if app.WindowTitles == nil {
			app.WindowTitles = []string{}
		}
	}
}

// HasTitle reports whether title was already recorded for the application.
func (a *AppUsage) HasTitle(title string) bool {
	for _, t := range a.WindowTitles {
		if t == title {
			return true
		}
	}
	return false
}

// NewSession builds a session record for the interval [start, end].
func NewSession(start, end time.Time) Session {
	return Session{
		StartTime: FormatTimestamp(start),
		EndTime:   FormatTimestamp(end),
		Duration:  end.Sub(start).Seconds(),
	}
}

// Start parses the session start time in loc.
func (s Session) Start(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(s.StartTime, loc)
}

// End parses the session end time in loc.
func (s Session) End(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(s.EndTime, loc)
}

// FormatTimestamp renders t in local time, e.g. 2024-03-01T09:15:02.123456.
func FormatTimestamp(t time.Time) string {
	t = t.Local()
	if micro := t.Nanosecond() / int(time.Microsecond); micro != 0 {
		return fmt.Sprintf("%s.%06d", t.Format(timestampLayout), micro)
	}
	return t.Format(timestampLayout)
}

// ParseTimestamp accepts the naive local form written by FormatTimestamp
// (with or without fraction) as well as RFC 3339.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(timestampLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.In(loc), nil
}
