package main

import (
	"fmt"

	"github.com/dataside/gaload/internal/config"
	"github.com/dataside/gaload/internal/storage"
)

// openStore builds the configured store backend. Callers own Close.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return storage.NewPostgresStore(
			cfg.PostgresDSN(cfg.Storage.PostgresDB),
			cfg.Load.BatchSize,
			cfg.Load.RowsPerSec,
			logger,
		)
	case "sqlite":
		return storage.NewSQLiteStore(
			cfg.Storage.SQLitePath,
			cfg.Load.BatchSize,
			cfg.Load.RowsPerSec,
			logger,
		)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
