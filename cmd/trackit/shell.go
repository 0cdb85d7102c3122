package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goodtune/trackit/internal/config"
	"github.com/goodtune/trackit/internal/logging"
	"github.com/goodtune/trackit/internal/shell"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open the interactive control panel",
	Long: `Open a terminal control panel with two buttons: one starts and stops the
tracker in a child process, the other starts and stops the dashboard.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The panel owns the terminal; only a configured log file gets output.
	logger := logging.Setup(cfg.Logging, io.Discard)

	tracker, err := newTrackerProcess(cfg, logger)
	if err != nil {
		return err
	}
	dash := shell.NewDashboardToggle(shell.DashboardToggleConfig{
		NewServer: func() (shell.Server, error) {
			server, err := newDashboardServer(cfg, logger)
			if err != nil {
				return nil, err
			}
			return server, nil
		},
		URL:         cfg.DashboardURL(),
		OpenBrowser: cfg.Dashboard.OpenBrowser,
		StopTimeout: cfg.StopTimeout(),
	}, logger)

	// Whatever happens to the program, leave nothing running.
	defer func() {
		if err := errors.Join(tracker.Stop(), dash.Stop()); err != nil {
			logger.Error().Err(err).Msg("Error stopping components")
		}
	}()

	program := tea.NewProgram(
		shell.NewModel(tracker, dash),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("control panel: %w", err)
	}
	if m, ok := final.(shell.Model); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}

// newTrackerProcess re-runs this executable as the tracker. Paths are made
// absolute because the child runs inside the data directory.
func newTrackerProcess(cfg *config.Config, logger zerolog.Logger) (*shell.TrackerProcess, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	dataDir, err := filepath.Abs(cfg.Tracker.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := storage.EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	return shell.NewTrackerProcess(shell.TrackerProcessConfig{
		Executable:  exe,
		Args:        []string{"track", "--stdin-stop", "--config", absConfig},
		Dir:         dataDir,
		Env:         []string{"TRACKIT_TRACKER_DATA_DIR=" + dataDir},
		StopTimeout: cfg.StopTimeout(),
	}, logger), nil
}
