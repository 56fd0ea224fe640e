package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// pgMaxParams is the Postgres wire-protocol bind-parameter limit per statement.
const pgMaxParams = 65535

const pgSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id VARCHAR PRIMARY KEY,
		utm_source VARCHAR NOT NULL DEFAULT 'unknown',
		utm_medium VARCHAR NOT NULL DEFAULT 'unknown',
		visit_date DATE NOT NULL,
		visit_number INTEGER NOT NULL CHECK (visit_number > 0),
		device_os VARCHAR NOT NULL DEFAULT 'unknown',
		device_brand VARCHAR NOT NULL DEFAULT 'unknown',
		device_model VARCHAR NOT NULL DEFAULT 'unknown'
	);

	CREATE TABLE IF NOT EXISTS hits (
		session_id VARCHAR NOT NULL,
		hit_date DATE NOT NULL,
		hit_number INTEGER NOT NULL CHECK (hit_number > 0),
		event_label VARCHAR NOT NULL,
		PRIMARY KEY (session_id, hit_number),
		FOREIGN KEY (session_id)
			REFERENCES sessions (session_id)
			ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_visit_date ON sessions (visit_date);
	CREATE INDEX IF NOT EXISTS idx_hits_hit_date ON hits (hit_date);

	CREATE TABLE IF NOT EXISTS load_runs (
		run_id VARCHAR PRIMARY KEY,
		source VARCHAR NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		total_sessions INTEGER NOT NULL,
		synthesized_sessions INTEGER NOT NULL,
		total_hits INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rejected_records (
		id VARCHAR PRIMARY KEY,
		run_id VARCHAR NOT NULL,
		dataset VARCHAR NOT NULL,
		reason VARCHAR NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
`

// PostgresStore implements Store on PostgreSQL via sqlx over the pgx driver.
type PostgresStore struct {
	loader
}

// NewPostgresStore connects to PostgreSQL and verifies connectivity.
func NewPostgresStore(dsn string, batchSize int, rowsPerSec float64, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{loader{
		db:        db,
		logger:    logger,
		batchSize: batchSize,
		maxParams: pgMaxParams,
		limiter:   newLimiter(rowsPerSec, batchSize),
	}}, nil
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.logger.Debug("postgres schema ensured")
	return nil
}

// EnsureDatabase creates the target database if it does not exist, connecting
// through the maintenance database. CREATE DATABASE cannot run inside a
// transaction, so this uses a plain autocommit connection.
func EnsureDatabase(ctx context.Context, adminDSN, name string, logger *logrus.Logger) error {
	db, err := sql.Open("pgx", adminDSN)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}

	if exists {
		logger.WithField("database", name).Debug("database already exists")
		return nil
	}

	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}

	logger.WithField("database", name).Info("database created")
	return nil
}
