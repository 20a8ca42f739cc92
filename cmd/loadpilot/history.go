package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadpilot/loadpilot/internal/config"
	"github.com/loadpilot/loadpilot/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List runs recorded in the artifacts directory",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 10, "Entries to show, oldest first (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	setupLogging(cfg.Run.DebugLog)

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	store := history.NewStore(filepath.Join(cfg.Run.ArtifactsDir, history.DefaultFileName), 0)
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "No recorded runs.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(os.Stdout, formatHistoryEntry(e))
	}
	return nil
}

func formatHistoryEntry(e history.Entry) string {
	when := "unknown time"
	if !e.EndedAt.IsZero() {
		when = e.EndedAt.Format(time.RFC3339)
	}
	name := fmt.Sprintf("test %d", e.TestID)
	if e.TestName != "" {
		name = e.TestName
	}
	line := fmt.Sprintf("%s  run %d (%s) %s", when, e.RunID, name, e.Status)
	if e.Reason != "" {
		line += ": " + e.Reason
	}
	if e.HasReport {
		line += " [report]"
	}
	return line
}
