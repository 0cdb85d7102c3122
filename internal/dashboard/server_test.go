package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/trackit/internal/insights"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/bolt"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/rs/zerolog"
)

type testEnv struct {
	dir      string
	dataFile string
	journal  *bolt.Journal
	server   *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	journal, err := bolt.Open(filepath.Join(dir, "activity_journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}

	env := &testEnv{
		dir:      dir,
		dataFile: filepath.Join(dir, "activity_data.json"),
		journal:  journal,
	}
	env.server, err = NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		DataDir:    dir,
		Page:       "analysis.html",
		DataFile:   env.dataFile,
		Journal:    journal,
		Location:   time.UTC,
	}, insights.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.server.Snapshot().retryPause = time.Millisecond
	return env
}

func (e *testEnv) writeData(t *testing.T, data storage.UsageData) {
	t.Helper()
	store, err := jsonfile.Open(e.dataFile, jsonfile.Options{AtomicWrite: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Save(context.Background(), data); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Keep the stat-based change check reliable on coarse-mtime filesystems.
	e.server.Snapshot().Invalidate()
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleData() storage.UsageData {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	app := storage.NewAppUsage()
	app.TotalSessions = 1
	app.TotalTime = 3600
	app.LastPath = `C:\Code\Code.exe`
	app.WindowTitles = []string{"main.go - trackit"}
	app.Sessions = []storage.Session{storage.NewSession(start, start.Add(time.Hour))}
	return storage.UsageData{"Code.exe": app}
}

func TestUsageNotAvailable(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/usage")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestUsageServesDocument(t *testing.T) {
	env := newTestEnv(t)
	env.writeData(t, sampleData())

	rec := env.get(t, "/api/usage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got storage.UsageData
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["Code.exe"] == nil || got["Code.exe"].TotalTime != 3600 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestUsageServesLastGoodSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.writeData(t, sampleData())

	if rec := env.get(t, "/api/usage"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Simulate a reader catching a half-written file.
	if err := os.WriteFile(env.dataFile, []byte(`{"Code.exe": {"total_ses`), 0644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	env.server.Snapshot().Invalidate()

	rec := env.get(t, "/api/usage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stale snapshot with 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Code.exe") {
		t.Fatalf("expected previous data, got %s", rec.Body.String())
	}
}

func TestUsageReflectsUpdates(t *testing.T) {
	env := newTestEnv(t)
	env.writeData(t, sampleData())
	_ = env.get(t, "/api/usage")

	data := sampleData()
	data["Spotify.exe"] = storage.NewAppUsage()
	env.writeData(t, data)

	rec := env.get(t, "/api/usage")
	if !strings.Contains(rec.Body.String(), "Spotify.exe") {
		t.Fatalf("expected updated data, got %s", rec.Body.String())
	}
}

func TestInsights(t *testing.T) {
	env := newTestEnv(t)
	env.writeData(t, sampleData())

	rec := env.get(t, "/api/insights")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var report insights.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.TotalTime != 3600 || report.ProductivityScore != 30 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Apps) != 1 || report.Apps[0].Category != "highly_productive" {
		t.Fatalf("unexpected apps %+v", report.Apps)
	}
}

func TestSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	day := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }
	for _, e := range []storage.JournalEntry{
		{App: "Code.exe", StartTime: day(1, 9), EndTime: day(1, 10), Duration: 3600},
		{App: "Code.exe", StartTime: day(4, 9), EndTime: day(4, 10), Duration: 3600},
		{App: "Slack.exe", StartTime: day(5, 23), EndTime: day(5, 23).Add(time.Minute), Duration: 60},
		{App: "Code.exe", StartTime: day(9, 9), EndTime: day(9, 10), Duration: 3600},
	} {
		if err := env.journal.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec := env.get(t, "/api/sessions?from=2024-03-04&to=2024-03-05")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entries []storage.JournalEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].App != "Slack.exe" {
		t.Fatalf("expected inclusive end day, got %+v", entries)
	}
}

func TestSessionsBadRange(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/sessions?from=yesterday",
		"/api/sessions?to=2024-13-01",
		"/api/sessions?from=2024-03-05&to=2024-03-04",
	} {
		if rec := env.get(t, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestSessionsWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	server, err := NewServer(Config{DataDir: dir, DataFile: filepath.Join(dir, "activity_data.json")}, insights.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t)
	page := "<html><body>dashboard</body></html>"
	if err := os.WriteFile(filepath.Join(env.dir, "analysis.html"), []byte(page), 0644); err != nil {
		t.Fatalf("write page: %v", err)
	}

	rec := env.get(t, "/analysis.html")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dashboard") {
		t.Fatalf("unexpected static response %d: %s", rec.Code, rec.Body.String())
	}

	if rec := env.get(t, "/missing.html"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBuiltinPage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/analysis.html")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "TrackIt") {
		t.Fatalf("expected built-in page, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.get(t, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}

	rec := env.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "trackit_dashboard_requests_total") {
		t.Fatalf("expected dashboard request counter in metrics output")
	}
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)
	env.writeData(t, sampleData())

	if err := env.server.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := env.server.Stop(ctx); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	resp, err := http.Get("http://" + env.server.Addr() + "/api/usage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
