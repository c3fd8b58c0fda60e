package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabulark/tabulark/pkg/history"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the attempt log",
		Long: `Inspect the SQLite-backed attempt log. History must be enabled in
the configuration (history: enabled: true) for these commands to have
anything to show.`,
	}

	cmd.AddCommand(newHistoryBatchesCommand())
	cmd.AddCommand(newHistoryAttemptsCommand())
	cmd.AddCommand(newHistoryStatsCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryBatchesCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recorded batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cleanup, err := requireHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			batches, err := store.ListBatches(ctx, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(batches)
			}

			for _, b := range batches {
				fmt.Printf("%-36s %-16s steps=%-3d chained=%-5v started=%s\n",
					b.ID, b.Status, b.StepCount, b.Chained,
					b.StartedAt.Format(time.RFC3339))
			}
			fmt.Printf("%d batch(es)\n", len(batches))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum batches to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "batches to skip")

	return cmd
}

func newHistoryAttemptsCommand() *cobra.Command {
	var (
		batchID string
		status  string
		failed  bool
		limit   int
		offset  int
	)

	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List recorded attempts",
		Example: `  # Attempts of one batch
  tabulark history attempts --batch 2f1c...

  # Failed attempts across all batches
  tabulark history attempts --failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cleanup, err := requireHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			filter := history.AttemptFilter{BatchID: batchID, Status: status}
			if failed {
				success := false
				filter.Success = &success
			}

			attempts, err := store.ListAttempts(ctx, filter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(attempts)
			}

			for _, a := range attempts {
				shape := "-"
				if a.Shape != nil {
					shape = *a.Shape
				}
				fmt.Printf("%-36s #%-3d %-10s shape=%-8s %4dms  %s\n",
					a.BatchID, a.StepIndex, a.Status, shape, a.ElapsedMS, a.Query)
			}
			fmt.Printf("%d attempt(s)\n", len(attempts))
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "filter by batch ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by step status")
	cmd.Flags().BoolVar(&failed, "failed", false, "only unsuccessful attempts")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum attempts to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "attempts to skip")

	return cmd
}

func newHistoryStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the attempt log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cleanup, err := requireHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(stats)
			}

			fmt.Printf("batches:   %d\n", stats.TotalBatches)
			fmt.Printf("attempts:  %d\n", stats.TotalAttempts)
			fmt.Printf("truncated: %d\n", stats.TruncatedCount)
			for status, n := range stats.ByStatus {
				fmt.Printf("  %-12s %d\n", status, n)
			}
			if len(stats.ByShape) > 0 {
				fmt.Println("shapes:")
				for shape, n := range stats.ByShape {
					fmt.Printf("  %-12s %d\n", shape, n)
				}
			}
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete attempts older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if days == 0 {
				days = cfg.History.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("no retention window: pass --days or set history.retention_days")
			}

			store, cleanup, err := requireHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			n, err := store.PruneAttemptsBefore(ctx, cutoff)
			if err != nil {
				return err
			}

			fmt.Printf("pruned %d attempt(s) older than %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "prune attempts older than this many days")

	return cmd
}

// requireHistoryStore opens the configured store or fails when history
// is disabled.
func requireHistoryStore(ctx context.Context) (*history.SQLiteStore, func(), error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil, fmt.Errorf("history is disabled: enable it in the configuration")
	}
	return openHistoryStore(ctx, cfg)
}
