package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HarinGuptha/FlowBit-Harin/internal/config"
	"github.com/HarinGuptha/FlowBit-Harin/internal/doctor"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (config, data dir, session DB, lexicons, triggers)",
	Long:  "Verifies configuration values are in range, the data directory is writable, the session database is usable, all lexicons parse, and any configured trigger file is valid.",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "emit the full report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	report := doctor.Run(ctx, doctor.Options{Config: cfg})
	out := cmd.OutOrStdout()

	if doctorJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		for _, c := range report.Checks {
			symbol := "✓"
			switch c.Status {
			case "warn":
				symbol = "⚠"
			case "fail":
				symbol = "✗"
			}
			fmt.Fprintf(out, "%s %s: %s\n", symbol, c.Name, c.Message)
			if c.Fix != "" && c.Status != "pass" {
				fmt.Fprintf(out, "  fix: %s\n", c.Fix)
			}
		}
		fmt.Fprintf(out, "\n%d passed, %d warnings, %d failed\n",
			report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
	}

	if report.Status == "fail" {
		return fmt.Errorf("doctor checks failed")
	}
	return nil
}
