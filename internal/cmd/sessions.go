package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HarinGuptha/FlowBit-Harin/internal/config"
)

var (
	sessionsLimit int
	sessionsJSON  bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "List recent processing sessions or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "print raw JSON")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	app, cleanup, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	if len(args) == 1 {
		sess, err := app.store.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	sessions, err := app.store.ListRecent(ctx, sessionsLimit)
	if err != nil {
		return err
	}

	if sessionsJSON {
		out, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding sessions: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tFORMAT\tINTENT\tACTIONS\tSTATUS")
	for _, sess := range sessions {
		format, intent := "?", "?"
		if sess.Classification != nil {
			format = string(sess.Classification.FormatType)
			intent = string(sess.Classification.BusinessIntent)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			sess.ID, sess.CreatedAt.Format("2006-01-02 15:04:05"),
			format, intent, len(sess.Actions), sess.FinalStatus)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return nil
}
