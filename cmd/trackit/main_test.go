package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/trackit/internal/config"
	"github.com/goodtune/trackit/internal/insights"
	"github.com/goodtune/trackit/internal/probe"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/bolt"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// writeConfig writes a config file pointing the tracker at a temp data dir.
func writeConfig(t *testing.T, extra string) (cfgPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	cfgPath = filepath.Join(dir, "config.yaml")
	content := "tracker:\n  data_dir: " + dataDir + "\n" + extra
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, dataDir
}

func writeUsage(t *testing.T, dataDir string, data storage.UsageData) {
	t.Helper()
	store, err := jsonfile.Open(filepath.Join(dataDir, "activity_data.json"), jsonfile.Options{AtomicWrite: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Save(context.Background(), data); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func sampleUsage() storage.UsageData {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local)
	app := storage.NewAppUsage()
	app.TotalSessions = 1
	app.TotalTime = 5400
	app.LastPath = `C:\Program Files\Code\Code.exe`
	app.Sessions = []storage.Session{storage.NewSession(start, start.Add(90*time.Minute))}
	return storage.UsageData{"Code.exe": app}
}

func TestValidateReportsUnknownKeys(t *testing.T) {
	cfgPath, _ := writeConfig(t, "tracker_typo: true\n")

	out, err := executeCommand(rootCmd, "validate", "--config", cfgPath, "--dump=false")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Errorf("expected valid message, got:\n%s", out)
	}
	if !strings.Contains(out, "tracker_typo") {
		t.Errorf("expected unknown key to be reported, got:\n%s", out)
	}
	if !strings.Contains(out, "No usage data yet") {
		t.Errorf("expected missing data notice, got:\n%s", out)
	}
}

func TestValidateDump(t *testing.T) {
	cfgPath, _ := writeConfig(t, "dashboard:\n  port: 9000\n")

	out, err := executeCommand(rootCmd, "validate", "--config", cfgPath, "--dump")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "port = 9000  (modified from default: 8000)") {
		t.Errorf("expected modified port in dump, got:\n%s", out)
	}
	if !strings.Contains(out, "[insights]") {
		t.Errorf("expected insights section in dump, got:\n%s", out)
	}
}

func TestValidateRejectsInvalidConfig(t *testing.T) {
	cfgPath, _ := writeConfig(t, "dashboard:\n  port: 70000\n")

	if _, err := executeCommand(rootCmd, "validate", "--config", cfgPath, "--dump=false"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateCorruptData(t *testing.T) {
	cfgPath, dataDir := writeConfig(t, "")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "activity_data.json"), []byte("{oops"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := executeCommand(rootCmd, "validate", "--config", cfgPath, "--dump=false")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "corrupt") {
		t.Errorf("expected corrupt data warning, got:\n%s", out)
	}
}

func TestReportJSON(t *testing.T) {
	cfgPath, dataDir := writeConfig(t, "")
	writeUsage(t, dataDir, sampleUsage())

	out, err := executeCommand(rootCmd, "report", "--config", cfgPath, "--json")
	if err != nil {
		t.Fatalf("report: %v\n%s", err, out)
	}

	var report insights.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.TotalTime != 5400 || len(report.Apps) != 1 || report.Apps[0].Name != "Code.exe" {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.FocusScore != 100 {
		t.Errorf("focus score = %d, want 100", report.FocusScore)
	}
}

func TestReportText(t *testing.T) {
	cfgPath, dataDir := writeConfig(t, "")
	writeUsage(t, dataDir, sampleUsage())

	out, err := executeCommand(rootCmd, "report", "--config", cfgPath, "--json=false")
	if err != nil {
		t.Fatalf("report: %v\n%s", err, out)
	}
	for _, want := range []string{"USAGE REPORT", "Code.exe", "1h 30m", "highly_productive"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in report, got:\n%s", want, out)
		}
	}
}

func TestReportWithoutData(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	_, err := executeCommand(rootCmd, "report", "--config", cfgPath, "--json=false")
	if err == nil || !strings.Contains(err.Error(), "no usage data") {
		t.Fatalf("expected missing data error, got %v", err)
	}
}

func TestRunTrackerRecordsSessions(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Tracker.DataDir = dir
	cfg.Tracker.PollInterval = "10ms"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	p := probe.Func(func(context.Context) (*probe.Sample, error) {
		calls++
		switch {
		case calls <= 3:
			return &probe.Sample{AppName: "Code.exe", AppPath: `C:\Code.exe`, WindowTitle: "main.go", CPUPercent: 2, MemoryPercent: 1}, nil
		case calls <= 6:
			return &probe.Sample{AppName: "Slack.exe", AppPath: `C:\Slack.exe`, WindowTitle: "general"}, nil
		default:
			cancel()
			return nil, probe.ErrUnavailable
		}
	})

	if err := runTracker(ctx, cfg, p, zerolog.Nop()); err != nil {
		t.Fatalf("runTracker: %v", err)
	}

	data, err := jsonfile.ReadSnapshot(cfg.DataFilePath())
	if err != nil {
		t.Fatalf("read usage: %v", err)
	}
	for _, app := range []string{"Code.exe", "Slack.exe"} {
		usage := data[app]
		if usage == nil {
			t.Fatalf("missing %s in %v", app, data)
		}
		if usage.TotalSessions != 1 || len(usage.Sessions) != 1 {
			t.Errorf("%s: sessions = %d/%d, want 1/1", app, usage.TotalSessions, len(usage.Sessions))
		}
	}

	journal, err := bolt.Open(cfg.JournalPath())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	entries, err := journal.Range(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d: %+v", len(entries), entries)
	}
}

func TestRunTrackerFatalProbeError(t *testing.T) {
	cfg := config.Defaults()
	cfg.Tracker.DataDir = t.TempDir()
	cfg.Tracker.JournalFile = ""

	boom := errors.New("window API failed")
	p := probe.Func(func(context.Context) (*probe.Sample, error) { return nil, boom })

	err := runTracker(context.Background(), cfg, p, zerolog.Nop())
	if !errors.Is(err, boom) {
		t.Fatalf("expected probe error, got %v", err)
	}
}

func TestStopOnEOF(t *testing.T) {
	r, w := io.Pipe()
	ctx, cancel := stopOnEOF(context.Background(), r, zerolog.Nop())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context canceled before stdin closed")
	case <-time.After(20 * time.Millisecond):
	}

	_ = w.Close()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after stdin closed")
	}
}
