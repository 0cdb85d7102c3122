// Package shell implements the interactive control panel that starts and
// stops the tracker and the dashboard.
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStopTimeout bounds how long Stop waits for a graceful exit.
const DefaultStopTimeout = 5 * time.Second

// Toggle is a component the shell can switch on and off.
type Toggle interface {
	Start() error
	Stop() error
	Running() bool
}

// TrackerProcessConfig describes how to launch the tracker.
type TrackerProcessConfig struct {
	// Executable and Args form the tracker command line. Args must make the
	// tracker exit when its stdin closes.
	Executable string
	Args       []string
	// Dir is the working directory of the child.
	Dir string
	// Env is appended to the inherited environment.
	Env         []string
	StopTimeout time.Duration
	// Output receives the child's stdout and stderr; discarded when nil.
	Output io.Writer
}

// TrackerProcess runs the tracker as a child process. The child's stdin is
// held open for its lifetime; closing it asks the child to stop, and it is
// also closed when the shell exits for any reason.
type TrackerProcess struct {
	config TrackerProcessConfig
	logger zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}
	exitErr error
}

// NewTrackerProcess creates a stopped tracker process.
func NewTrackerProcess(cfg TrackerProcessConfig, logger zerolog.Logger) *TrackerProcess {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	return &TrackerProcess{
		config: cfg,
		logger: logger.With().Str("component", "tracker-process").Logger(),
	}
}

// Start launches the tracker unless it is already running.
func (p *TrackerProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runningLocked() {
		return nil
	}

	cmd := exec.Command(p.config.Executable, p.config.Args...)
	cmd.Dir = p.config.Dir
	if len(p.config.Env) > 0 {
		cmd.Env = append(os.Environ(), p.config.Env...)
	}
	cmd.Stdout = p.config.Output
	cmd.Stderr = p.config.Output

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("tracker stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start tracker: %w", err)
	}

	done := make(chan struct{})
	p.cmd = cmd
	p.stdin = stdin
	p.done = done
	p.exitErr = nil

	p.logger.Info().Int("pid", cmd.Process.Pid).Msg("Tracker started")

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(done)

		if err != nil {
			p.logger.Warn().Err(err).Msg("Tracker exited")
		} else {
			p.logger.Info().Msg("Tracker exited")
		}
	}()

	return nil
}

// Stop asks the tracker to exit and kills it if it has not done so
// within the stop timeout.
func (p *TrackerProcess) Stop() error {
	p.mu.Lock()
	if !p.runningLocked() {
		p.mu.Unlock()
		return nil
	}
	cmd, stdin, done := p.cmd, p.stdin, p.done
	p.mu.Unlock()

	_ = stdin.Close()

	select {
	case <-done:
		return p.stopResult()
	case <-time.After(p.config.StopTimeout):
	}

	p.logger.Warn().Dur("timeout", p.config.StopTimeout).Msg("Tracker did not stop in time; killing")
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill tracker: %w", err)
	}
	<-done
	return nil
}

// stopResult reports a non-zero exit after a graceful stop request.
func (p *TrackerProcess) stopResult() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var exitErr *exec.ExitError
	if errors.As(p.exitErr, &exitErr) {
		return fmt.Errorf("tracker exited with status %d", exitErr.ExitCode())
	}
	return nil
}

// Running reports whether the child is alive.
func (p *TrackerProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

// Err returns the exit error of the last run, if any.
func (p *TrackerProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *TrackerProcess) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
