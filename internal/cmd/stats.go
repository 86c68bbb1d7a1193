package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HarinGuptha/FlowBit-Harin/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate pipeline counters as JSON",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	app, cleanup, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	counters, err := app.store.Counters(cmd.Context())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding counters: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
