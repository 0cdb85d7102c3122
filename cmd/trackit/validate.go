package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/trackit/internal/config"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/spf13/cobra"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the TrackIt configuration file and check that the usage document is readable.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys when there is a file to check
	var unknownKeys []string
	if _, statErr := os.Stat(configPath); statErr == nil {
		unknownKeys, err = config.FindUnknownKeys(configPath)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
		}
		_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", configPath)
	} else {
		_, _ = fmt.Fprintf(out, "✅ No configuration file at %s, using defaults\n", configPath)
	}

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(out)
		_, _ = red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "   - %s\n", key)
		}
		fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	checkDataFile(out, cfg.DataFilePath())

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// checkDataFile reports whether the usage document can be read. A corrupt
// document is not an error: the tracker starts over from an empty one.
func checkDataFile(w io.Writer, path string) {
	data, err := jsonfile.ReadSnapshot(path)
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(w, "✅ Usage data is readable: %s (%d apps)\n", path, len(data))
	case errors.Is(err, storage.ErrNotFound):
		_, _ = fmt.Fprintf(w, "ℹ️  No usage data yet: %s\n", path)
	case jsonfile.IsParseError(err):
		yellow := color.New(color.FgYellow, color.Bold)
		_, _ = yellow.Fprintf(w, "⚠️  Usage data is corrupt and will be replaced on the next tracker start: %v\n", err)
	default:
		_, _ = fmt.Fprintf(w, "⚠️  Could not read usage data: %v\n", err)
	}
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(w io.Writer, cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	field := func(name string, value, defaultValue any) {
		dumpField(w, name, value, defaultValue, yellow, green)
	}

	// Tracker
	_, _ = cyan.Fprintln(w, "\n[tracker]")
	field("  data_dir", cfg.Tracker.DataDir, defaultCfg.Tracker.DataDir)
	field("  data_file", cfg.Tracker.DataFile, defaultCfg.Tracker.DataFile)
	field("  journal_file", cfg.Tracker.JournalFile, defaultCfg.Tracker.JournalFile)
	field("  poll_interval", cfg.Tracker.PollInterval, defaultCfg.Tracker.PollInterval)
	field("  atomic_write", cfg.Tracker.AtomicWrite, defaultCfg.Tracker.AtomicWrite)
	field("  metrics_addr", cfg.Tracker.MetricsAddr, defaultCfg.Tracker.MetricsAddr)

	// Probe
	_, _ = cyan.Fprintln(w, "\n[probe]")
	field("  cache_size", cfg.Probe.CacheSize, defaultCfg.Probe.CacheSize)

	// Dashboard
	_, _ = cyan.Fprintln(w, "\n[dashboard]")
	field("  bind_address", cfg.Dashboard.BindAddress, defaultCfg.Dashboard.BindAddress)
	field("  port", cfg.Dashboard.Port, defaultCfg.Dashboard.Port)
	field("  page", cfg.Dashboard.Page, defaultCfg.Dashboard.Page)
	field("  open_browser", cfg.Dashboard.OpenBrowser, defaultCfg.Dashboard.OpenBrowser)

	// Shell
	_, _ = cyan.Fprintln(w, "\n[shell]")
	field("  stop_timeout", cfg.Shell.StopTimeout, defaultCfg.Shell.StopTimeout)

	// Logging
	_, _ = cyan.Fprintln(w, "\n[logging]")
	field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)
	field("  file", cfg.Logging.File, defaultCfg.Logging.File)
	field("  max_size_mb", cfg.Logging.MaxSizeMB, defaultCfg.Logging.MaxSizeMB)
	field("  max_backups", cfg.Logging.MaxBackups, defaultCfg.Logging.MaxBackups)
	field("  max_age_days", cfg.Logging.MaxAgeDays, defaultCfg.Logging.MaxAgeDays)
	field("  compress", cfg.Logging.Compress, defaultCfg.Logging.Compress)

	// Insights
	_, _ = cyan.Fprintln(w, "\n[insights]")
	field("  highly_productive", cfg.Insights.HighlyProductive, defaultCfg.Insights.HighlyProductive)
	field("  productive", cfg.Insights.Productive, defaultCfg.Insights.Productive)
	field("  neutral", cfg.Insights.Neutral, defaultCfg.Insights.Neutral)
	field("  distracting", cfg.Insights.Distracting, defaultCfg.Insights.Distracting)
	field("  highly_distracting", cfg.Insights.HighlyDistracting, defaultCfg.Insights.HighlyDistracting)
	field("  work_apps", cfg.Insights.WorkApps, defaultCfg.Insights.WorkApps)
	field("  productive_apps", cfg.Insights.ProductiveApps, defaultCfg.Insights.ProductiveApps)
	field("  work_start_hour", cfg.Insights.WorkStartHour, defaultCfg.Insights.WorkStartHour)
	field("  work_end_hour", cfg.Insights.WorkEndHour, defaultCfg.Insights.WorkEndHour)
	field("  work_days", cfg.Insights.WorkDays, defaultCfg.Insights.WorkDays)

	// Display unknown keys if any
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		_, _ = cyan.Fprintln(w, "\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(w, "  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(w io.Writer, name string, value, defaultValue any, modifiedColor, defaultColor *color.Color) {
	// Deep equal comparison
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Fprintf(w, "%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Fprintf(w, "%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}
