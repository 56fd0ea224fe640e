package main

import (
	"context"
	"fmt"

	"github.com/dataside/gaload/internal/config"
	"github.com/dataside/gaload/internal/pipeline"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Load the bulk snapshot datasets into the store",
	Long: `Load the tabular snapshot datasets (ga_sessions.csv, ga_hits.csv) from the
snapshot directory. Existing sessions are never overwritten by this source;
re-running over the same snapshot is a no-op.

Examples:
  gaload snapshot
  gaload snapshot --dir /data/ga/2024-10-10`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().String("dir", "", "snapshot directory (default from config)")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Data.SnapshotDir
	}

	vcfg, err := config.LoadValidation(cfg.Data.ValidationPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := pipeline.New(store, vcfg, logger).RunSnapshot(ctx, dir)
	if err != nil {
		return fmt.Errorf("snapshot load failed: %w", err)
	}

	printStats(stats)
	return nil
}
