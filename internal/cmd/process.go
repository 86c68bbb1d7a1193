package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/config"
)

var processContentType string

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Run one input through the pipeline and print the session",
	Long: `Reads content from the given file (or stdin when omitted or "-"),
processes it through classification, analysis, and action routing, and
prints the resulting session record as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processContentType, "content-type", "", "declared format hint (email, json, pdf)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "cmd.process",
		trace.WithAttributes(attribute.String("content_type", processContentType)))
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var content []byte
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(io.LimitReader(os.Stdin, int64(cfg.MaxInputKB)*1024+1))
	} else {
		content, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	if len(content) == 0 {
		return fmt.Errorf("no content to process")
	}
	if len(content) > cfg.MaxInputKB*1024 {
		return fmt.Errorf("content exceeds %d KB limit", cfg.MaxInputKB)
	}

	hint := classify.FormatType(processContentType)
	switch hint {
	case "", classify.FormatEmail, classify.FormatJSON, classify.FormatPDF:
	default:
		return fmt.Errorf("unknown content type %q (email, json, pdf)", processContentType)
	}

	app, cleanup, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := app.orch.Process(ctx, content, hint)
	if err != nil {
		return fmt.Errorf("processing content: %w", err)
	}

	out, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
