// Package insights derives summary statistics and scores from a usage
// document.
package insights

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/goodtune/trackit/internal/config"
	"github.com/goodtune/trackit/internal/storage"
)

const (
	// focusSessionSeconds is the length above which a session counts as focused.
	focusSessionSeconds = 300
	// breakMinutes is the gap above which idle time counts as a break.
	breakMinutes = 5
	// productiveWindowHours is the width of the reported productive window.
	productiveWindowHours = 3
)

// Category ranks an application by how productive its use is.
type Category int

const (
	HighlyDistracting Category = -2
	Distracting       Category = -1
	Neutral           Category = 0
	Productive        Category = 1
	HighlyProductive  Category = 2
)

func (c Category) String() string {
	switch c {
	case HighlyProductive:
		return "highly_productive"
	case Productive:
		return "productive"
	case Distracting:
		return "distracting"
	case HighlyDistracting:
		return "highly_distracting"
	default:
		return "neutral"
	}
}

// Config lists the lower-case name fragments used to categorise apps.
type Config struct {
	HighlyProductive  []string
	Productive        []string
	Neutral           []string
	Distracting       []string
	HighlyDistracting []string
	WorkApps          []string
	ProductiveApps    []string
	WorkStartHour     int
	WorkEndHour       int
	WorkDays          []time.Weekday
}

// FromConfig converts the configuration section.
func FromConfig(c config.InsightsConfig) Config {
	days := make([]time.Weekday, 0, len(c.WorkDays))
	for _, d := range c.WorkDays {
		days = append(days, time.Weekday(d))
	}
	return Config{
		HighlyProductive:  c.HighlyProductive,
		Productive:        c.Productive,
		Neutral:           c.Neutral,
		Distracting:       c.Distracting,
		HighlyDistracting: c.HighlyDistracting,
		WorkApps:          c.WorkApps,
		ProductiveApps:    c.ProductiveApps,
		WorkStartHour:     c.WorkStartHour,
		WorkEndHour:       c.WorkEndHour,
		WorkDays:          days,
	}
}

// DefaultConfig returns the built-in categorisation.
func DefaultConfig() Config {
	return FromConfig(config.Defaults().Insights)
}

// Categorize returns the category of the first list containing a fragment
// of name, checked from most productive to most distracting.
func (c Config) Categorize(name string) Category {
	lower := strings.ToLower(name)
	switch {
	case matchesAny(lower, c.HighlyProductive):
		return HighlyProductive
	case matchesAny(lower, c.Productive):
		return Productive
	case matchesAny(lower, c.Neutral):
		return Neutral
	case matchesAny(lower, c.Distracting):
		return Distracting
	case matchesAny(lower, c.HighlyDistracting):
		return HighlyDistracting
	}
	return Neutral
}

func (c Config) isWorkApp(name string) bool {
	return matchesAny(strings.ToLower(name), c.WorkApps)
}

func (c Config) isProductiveApp(name string) bool {
	return matchesAny(strings.ToLower(name), c.ProductiveApps)
}

func (c Config) isWorkTime(t time.Time) bool {
	workDay := false
	for _, d := range c.WorkDays {
		if d == t.Weekday() {
			workDay = true
			break
		}
	}
	return workDay && t.Hour() >= c.WorkStartHour && t.Hour() < c.WorkEndHour
}

func matchesAny(name string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(name, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// AppSummary is the per-application line of a report.
type AppSummary struct {
	Name             string  `json:"name"`
	Path             string  `json:"path"`
	Category         string  `json:"category"`
	TotalTime        float64 `json:"total_time"`
	Sessions         int     `json:"sessions"`
	AvgSessionLength float64 `json:"avg_session_length"`
	AvgCPUUsage      float64 `json:"avg_cpu_usage"`
	AvgMemoryUsage   float64 `json:"avg_memory_usage"`
	WindowTitles     int     `json:"window_titles"`
}

// WorkLife splits tracked time into work and personal time.
type WorkLife struct {
	WorkSeconds        float64 `json:"work_seconds"`
	PersonalSeconds    float64 `json:"personal_seconds"`
	WorkPercentage     int     `json:"work_percentage"`
	PersonalPercentage int     `json:"personal_percentage"`
	Status             string  `json:"status"`
	Message            string  `json:"message"`
}

// HourRange is a window of hours of the day; End may wrap past midnight.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Breaks summarises idle gaps between sessions.
type Breaks struct {
	Count          int     `json:"count"`
	AverageMinutes float64 `json:"average_minutes"`
}

// Report is the full set of derived statistics.
type Report struct {
	TotalTime         float64      `json:"total_time"`
	TotalSessions     int          `json:"total_sessions"`
	Apps              []AppSummary `json:"apps"`
	ProductivityScore int          `json:"productivity_score"`
	FocusScore        int          `json:"focus_score"`
	WorkLife          WorkLife     `json:"work_life"`
	ProductiveHours   HourRange    `json:"productive_hours"`
	SwitchingRate     int          `json:"switching_rate"`
	Breaks            Breaks       `json:"breaks"`
	HourlyUsage       [24]float64  `json:"hourly_usage"`
}

type timedSession struct {
	app      string
	start    time.Time
	end      time.Time
	duration float64
}

// Build computes a report. Session timestamps are interpreted in loc;
// sessions whose timestamps cannot be parsed are left out of the
// time-of-day statistics but still count towards totals.
func Build(data storage.UsageData, cfg Config, loc *time.Location) Report {
	if loc == nil {
		loc = time.Local
	}

	report := Report{Apps: []AppSummary{}}
	var sessions []timedSession
	longSessions := 0

	for name, app := range data {
		if app == nil {
			continue
		}

		summary := AppSummary{
			Name:           name,
			Path:           app.LastPath,
			Category:       cfg.Categorize(name).String(),
			TotalTime:      app.TotalTime,
			Sessions:       app.TotalSessions,
			AvgCPUUsage:    app.AvgCPUUsage,
			AvgMemoryUsage: app.AvgMemoryUsage,
			WindowTitles:   len(app.WindowTitles),
		}
		if app.TotalSessions > 0 {
			summary.AvgSessionLength = app.TotalTime / float64(app.TotalSessions)
		}
		report.Apps = append(report.Apps, summary)
		report.TotalTime += app.TotalTime
		report.TotalSessions += app.TotalSessions

		for _, s := range app.Sessions {
			if s.Duration > focusSessionSeconds {
				longSessions++
			}
			start, err := s.Start(loc)
			if err != nil {
				continue
			}
			end, err := s.End(loc)
			if err != nil {
				continue
			}
			sessions = append(sessions, timedSession{app: name, start: start, end: end, duration: s.Duration})
		}
	}

	sort.Slice(report.Apps, func(i, j int) bool {
		if report.Apps[i].TotalTime != report.Apps[j].TotalTime {
			return report.Apps[i].TotalTime > report.Apps[j].TotalTime
		}
		return report.Apps[i].Name < report.Apps[j].Name
	})
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].start.Before(sessions[j].start)
	})

	report.ProductivityScore = productivityScore(sessions, cfg)
	if report.TotalSessions > 0 {
		report.FocusScore = round(100 * float64(longSessions) / float64(report.TotalSessions))
	}
	report.WorkLife = workLife(sessions, cfg)
	report.ProductiveHours = productiveHours(sessions, cfg)
	if hours := report.TotalTime / 3600; hours > 0 {
		report.SwitchingRate = round(float64(report.TotalSessions) / hours)
	}
	report.Breaks = breaks(sessions)
	for _, s := range sessions {
		report.HourlyUsage[s.start.Hour()] += s.duration
	}

	return report
}

// hourWeight favours working hours and discounts late nights.
func hourWeight(hour int) float64 {
	switch {
	case hour >= 9 && hour <= 17:
		return 1.5
	case hour == 23 || hour <= 4:
		return 0.5
	}
	return 1
}

func productivityScore(sessions []timedSession, cfg Config) int {
	score := 0.0
	for _, s := range sessions {
		multiplier := float64(cfg.Categorize(s.app))
		score += s.duration / 3600 * multiplier * hourWeight(s.start.Hour())
	}
	return max(0, round(score*10))
}

func workLife(sessions []timedSession, cfg Config) WorkLife {
	var wl WorkLife
	for _, s := range sessions {
		if cfg.isWorkTime(s.start) && cfg.isWorkApp(s.app) {
			wl.WorkSeconds += s.duration
		} else {
			wl.PersonalSeconds += s.duration
		}
	}

	total := wl.WorkSeconds + wl.PersonalSeconds
	workPct := 0.0
	if total > 0 {
		workPct = 100 * wl.WorkSeconds / total
		wl.WorkPercentage = round(workPct)
		wl.PersonalPercentage = round(100 * wl.PersonalSeconds / total)
	}
	wl.Status, wl.Message = balance(workPct)
	return wl
}

func balance(workPct float64) (status, message string) {
	switch {
	case workPct > 80:
		return "Overworked", "Consider taking more breaks and personal time"
	case workPct > 65:
		return "Work-Heavy", "Slightly work-heavy, but within reasonable limits"
	case workPct > 35:
		return "Balanced", "Good balance between work and personal activities"
	case workPct > 20:
		return "Life-Heavy", "More personal time than work time"
	}
	return "Mostly Personal", "Mostly personal activities"
}

func productiveHours(sessions []timedSession, cfg Config) HourRange {
	var hourly [24]float64
	for _, s := range sessions {
		if cfg.isProductiveApp(s.app) {
			hourly[s.start.Hour()] += s.duration
		}
	}

	best := 0
	for h := 1; h < 24; h++ {
		if hourly[h] > hourly[best] {
			best = h
		}
	}
	return HourRange{Start: best, End: (best + productiveWindowHours) % 24}
}

func breaks(sessions []timedSession) Breaks {
	var b Breaks
	total := 0
	for i := 1; i < len(sessions); i++ {
		gap := int(sessions[i].start.Sub(sessions[i-1].end).Minutes())
		if gap > breakMinutes {
			b.Count++
			total += gap
		}
	}
	if b.Count > 0 {
		b.AverageMinutes = float64(total) / float64(b.Count)
	}
	return b
}

// round rounds half up, like JavaScript's Math.round.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}

// FormatDuration renders seconds as "2h 5m" or "5m".
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0m"
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
