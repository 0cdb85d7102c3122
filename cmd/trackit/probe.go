package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/goodtune/trackit/internal/logging"
	"github.com/goodtune/trackit/internal/probe"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Sample the foreground window once",
	Long:  `Take a single foreground window sample and print what the tracker would record.`,
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := probe.NewSystemProbe(probe.Config{CacheSize: cfg.Probe.CacheSize}, logging.Quiet())
	if err != nil {
		return err
	}

	sample, err := p.Sample(cmd.Context())
	if err != nil && !errors.Is(err, probe.ErrUnavailable) {
		return fmt.Errorf("probe failed: %w", err)
	}
	printSample(cmd.OutOrStdout(), sample, err)
	return nil
}

// printSample prints a probe result with colors
func printSample(w io.Writer, sample *probe.Sample, sampleErr error) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Fprintln(w)
	_, _ = cyan.Fprint(w, "Foreground: ")
	if sample == nil {
		_, _ = yellow.Fprintln(w, "UNAVAILABLE")
		if sampleErr != nil {
			fmt.Fprintf(w, "            → %v\n", sampleErr)
		}
		fmt.Fprintln(w, "            → The tracker would skip this tick")
		fmt.Fprintln(w)
		return
	}

	_, _ = green.Fprintln(w, sample.AppName)
	fmt.Fprintf(w, "Title:      %s\n", sample.WindowTitle)
	fmt.Fprintf(w, "Path:       %s\n", sample.AppPath)
	fmt.Fprintf(w, "PID:        %d\n", sample.PID)
	fmt.Fprintf(w, "CPU:        %.1f%%\n", sample.CPUPercent)
	fmt.Fprintf(w, "Memory:     %.2f%%\n", sample.MemoryPercent)
	fmt.Fprintln(w)
}
