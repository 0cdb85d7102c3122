package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.PollInterval() != time.Second {
		t.Errorf("poll interval = %s, want 1s", cfg.PollInterval())
	}
	if cfg.DataFilePath() != "activity_data.json" {
		t.Errorf("data file path = %q", cfg.DataFilePath())
	}
	if cfg.DashboardURL() != "http://127.0.0.1:8000/analysis.html" {
		t.Errorf("dashboard url = %q", cfg.DashboardURL())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
tracker:
  data_dir: /var/lib/trackit
  poll_interval: 2s
dashboard:
  port: 9000
`)
	t.Setenv("TRACKIT_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Errorf("poll interval = %s", cfg.PollInterval())
	}
	if cfg.Dashboard.Port != 9000 {
		t.Errorf("port = %d", cfg.Dashboard.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env override not applied: level = %q", cfg.Logging.Level)
	}
	if got := cfg.DataFilePath(); got != filepath.Join("/var/lib/trackit", "activity_data.json") {
		t.Errorf("data file path = %q", got)
	}
	if got := cfg.JournalPath(); got != filepath.Join("/var/lib/trackit", "activity_journal.db") {
		t.Errorf("journal path = %q", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero interval", "tracker:\n  poll_interval: 0s\n", "poll interval"},
		{"bad interval", "tracker:\n  poll_interval: soon\n", "poll interval"},
		{"bad port", "dashboard:\n  port: 70000\n", "dashboard port"},
		{"bad level", "logging:\n  level: loud\n", "logging level"},
		{"bad format", "logging:\n  format: xml\n", "logging format"},
		{"bad hours", "insights:\n  work_start_hour: 18\n  work_end_hour: 9\n", "work hours"},
		{"bad day", "insights:\n  work_days: [7]\n", "work day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestJournalDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, "tracker:\n  journal_file: \"\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JournalPath() != "" {
		t.Fatalf("expected journal to be disabled, got %q", cfg.JournalPath())
	}
}

func TestFindUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
tracker:
  poll_interval: 1s
  pol_interval: 2s
dashbord:
  port: 1
`)
	unknown, err := FindUnknownKeys(path)
	if err != nil {
		t.Fatalf("find unknown keys: %v", err)
	}
	want := []string{"dashbord.port", "tracker.pol_interval"}
	if diff := cmp.Diff(want, unknown); diff != "" {
		t.Fatalf("unknown keys mismatch (-want +got):\n%s", diff)
	}
}
