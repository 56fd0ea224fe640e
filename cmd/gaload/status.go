package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store row counts and recent load runs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("runs", 10, "number of recent runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("runs")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	sessions, err := store.CountSessions(ctx)
	if err != nil {
		return err
	}
	hits, err := store.CountHits(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("sessions: %d\nhits:     %d\n", sessions, hits)

	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	fmt.Println("\nrecent runs:")
	for _, r := range runs {
		fmt.Printf("  %s  %-11s  %s  sessions=%d synthesized=%d hits=%d\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Source, r.RunID,
			r.TotalSessions, r.SynthesizedSessions, r.TotalHits)
	}
	return nil
}
