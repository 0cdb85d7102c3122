package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const helperEnv = "TRACKIT_SHELL_HELPER"

// TestHelperProcess stands in for the tracker child. It is a no-op unless
// started by the tests below.
func TestHelperProcess(t *testing.T) {
	switch os.Getenv(helperEnv) {
	case "graceful":
		_, _ = io.Copy(io.Discard, os.Stdin)
		os.Exit(0)
	case "stubborn":
		time.Sleep(time.Minute)
		os.Exit(0)
	case "crash":
		os.Exit(3)
	}
}

func newHelperProcess(t *testing.T, mode string, timeout time.Duration) *TrackerProcess {
	t.Helper()
	t.Setenv(helperEnv, mode)
	return NewTrackerProcess(TrackerProcessConfig{
		Executable:  os.Args[0],
		Args:        []string{"-test.run=^TestHelperProcess$"},
		Dir:         t.TempDir(),
		StopTimeout: timeout,
	}, zerolog.Nop())
}

func waitStopped(t *testing.T, p *TrackerProcess) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for p.Running() {
		if time.Now().After(deadline) {
			t.Fatal("process still running")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTrackerProcessGracefulStop(t *testing.T) {
	p := newHelperProcess(t, "graceful", 5*time.Second)

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Running() {
		t.Fatal("expected running process")
	}
	// Starting twice is a no-op.
	if err := p.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	start := time.Now()
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Running() {
		t.Fatal("expected stopped process")
	}
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Fatalf("graceful stop took %v", elapsed)
	}
}

func TestTrackerProcessKilledAfterTimeout(t *testing.T) {
	p := newHelperProcess(t, "stubborn", 200*time.Millisecond)

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Running() {
		t.Fatal("expected killed process")
	}
}

func TestTrackerProcessCrash(t *testing.T) {
	p := newHelperProcess(t, "crash", time.Second)

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStopped(t, p)
	if p.Err() == nil {
		t.Fatal("expected exit error after crash")
	}
	// Stopping a dead process is a no-op.
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestTrackerProcessMissingExecutable(t *testing.T) {
	p := NewTrackerProcess(TrackerProcessConfig{Executable: "/nonexistent/trackit"}, zerolog.Nop())
	if err := p.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if p.Running() {
		t.Fatal("expected not running")
	}
}

type fakeServer struct {
	started, stopped int
	startErr         error
}

func (s *fakeServer) Start() error {
	s.started++
	return s.startErr
}

func (s *fakeServer) Stop(ctx context.Context) error {
	s.stopped++
	return nil
}

func TestDashboardToggle(t *testing.T) {
	var servers []*fakeServer
	var opened []string

	d := NewDashboardToggle(DashboardToggleConfig{
		NewServer: func() (Server, error) {
			s := &fakeServer{}
			servers = append(servers, s)
			return s, nil
		},
		URL:         "http://localhost:8000/analysis.html",
		OpenBrowser: true,
		OpenURL: func(url string) error {
			opened = append(opened, url)
			return errors.New("no browser")
		},
	}, zerolog.Nop())

	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.Running() || len(opened) != 1 {
		t.Fatalf("expected running with browser opened, running=%v opened=%v", d.Running(), opened)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if d.Running() || servers[0].stopped != 1 {
		t.Fatal("expected stopped dashboard")
	}

	// Each start gets a fresh server.
	if err := d.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected a new server per start, got %d", len(servers))
	}
}

func TestDashboardToggleStartError(t *testing.T) {
	d := NewDashboardToggle(DashboardToggleConfig{
		NewServer: func() (Server, error) {
			return &fakeServer{startErr: errors.New("address in use")}, nil
		},
		OpenURL: func(string) error { t.Fatal("browser opened after failed start"); return nil },
	}, zerolog.Nop())

	if err := d.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if d.Running() {
		t.Fatal("expected not running")
	}
}
