package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/trackit/internal/insights"
	"github.com/goodtune/trackit/internal/storage"
	"github.com/goodtune/trackit/internal/storage/jsonfile"
	"github.com/spf13/cobra"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise recorded usage",
	Long:  `Print per-application totals and productivity insights for the usage document.`,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := jsonfile.ReadSnapshot(cfg.DataFilePath())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no usage data at %s yet; run 'trackit track' first", cfg.DataFilePath())
		}
		return fmt.Errorf("failed to read usage data: %w", err)
	}

	report := insights.Build(data, insights.FromConfig(cfg.Insights), time.Local)

	out := cmd.OutOrStdout()
	if reportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "    ")
		return enc.Encode(report)
	}

	printReport(out, cfg.DataFilePath(), report)
	return nil
}

// printReport prints the report with colors
func printReport(w io.Writer, path string, report insights.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	rule := strings.Repeat("━", 50)

	fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, rule)
	_, _ = cyan.Fprintln(w, "USAGE REPORT")
	_, _ = cyan.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Data file:       %s\n", path)
	fmt.Fprintf(w, "Total time:      %s\n", insights.FormatDuration(report.TotalTime))
	fmt.Fprintf(w, "Total sessions:  %d\n", report.TotalSessions)
	fmt.Fprintln(w)

	if len(report.Apps) == 0 {
		fmt.Fprintln(w, "No applications recorded yet.")
	} else {
		_, _ = cyan.Fprintln(w, "Applications:")
		for _, app := range report.Apps {
			fmt.Fprintf(w, "  %-32s %10s  %4d sessions  avg %-8s %s\n",
				app.Name,
				insights.FormatDuration(app.TotalTime),
				app.Sessions,
				insights.FormatDuration(app.AvgSessionLength),
				app.Category,
			)
		}
	}
	fmt.Fprintln(w)

	_, _ = cyan.Fprint(w, "Productivity:    ")
	scoreColor := red
	switch {
	case report.ProductivityScore >= 50:
		scoreColor = green
	case report.ProductivityScore >= 20:
		scoreColor = yellow
	}
	_, _ = scoreColor.Fprintf(w, "%d\n", report.ProductivityScore)
	fmt.Fprintf(w, "Focus score:     %d%%\n", report.FocusScore)
	fmt.Fprintf(w, "Switching rate:  %d per hour\n", report.SwitchingRate)
	fmt.Fprintf(w, "Productive hours: %02d:00-%02d:00\n", report.ProductiveHours.Start, report.ProductiveHours.End)
	fmt.Fprintf(w, "Breaks:          %d (avg %.0f min)\n", report.Breaks.Count, report.Breaks.AverageMinutes)
	fmt.Fprintln(w)

	_, _ = cyan.Fprint(w, "Work-life:       ")
	_, _ = yellow.Fprintf(w, "%s", report.WorkLife.Status)
	fmt.Fprintf(w, " (%d%% work, %d%% personal)\n", report.WorkLife.WorkPercentage, report.WorkLife.PersonalPercentage)
	fmt.Fprintf(w, "                 → %s\n", report.WorkLife.Message)

	fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, rule)
	fmt.Fprintln(w)
}
