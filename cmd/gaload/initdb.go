package main

import (
	"context"

	"github.com/dataside/gaload/internal/storage"
	"github.com/spf13/cobra"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the target database and schema if they do not exist",
	RunE:  runInitDB,
}

func runInitDB(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if cfg.Storage.Type == "postgres" {
		// CREATE DATABASE needs a connection to the maintenance database.
		adminDSN := cfg.PostgresDSN("postgres")
		if err := storage.EnsureDatabase(ctx, adminDSN, cfg.Storage.PostgresDB, logger); err != nil {
			return err
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	logger.Info("database and schema ready")
	return nil
}
