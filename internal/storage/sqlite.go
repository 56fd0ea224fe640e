package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// sqliteMaxParams is SQLITE_MAX_VARIABLE_NUMBER in the default build of the
// bundled driver; per-statement row counts are clamped under it.
const sqliteMaxParams = 999

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		utm_source TEXT NOT NULL DEFAULT 'unknown',
		utm_medium TEXT NOT NULL DEFAULT 'unknown',
		visit_date DATE NOT NULL,
		visit_number INTEGER NOT NULL CHECK (visit_number > 0),
		device_os TEXT NOT NULL DEFAULT 'unknown',
		device_brand TEXT NOT NULL DEFAULT 'unknown',
		device_model TEXT NOT NULL DEFAULT 'unknown'
	);

	CREATE TABLE IF NOT EXISTS hits (
		session_id TEXT NOT NULL,
		hit_date DATE NOT NULL,
		hit_number INTEGER NOT NULL CHECK (hit_number > 0),
		event_label TEXT NOT NULL,
		PRIMARY KEY (session_id, hit_number),
		FOREIGN KEY (session_id)
			REFERENCES sessions (session_id)
			ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_visit_date ON sessions (visit_date);
	CREATE INDEX IF NOT EXISTS idx_hits_hit_date ON hits (hit_date);

	CREATE TABLE IF NOT EXISTS load_runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		total_sessions INTEGER NOT NULL,
		synthesized_sessions INTEGER NOT NULL,
		total_hits INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rejected_records (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		dataset TEXT NOT NULL,
		reason TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
`

// SQLiteStore implements Store on SQLite, for local runs and tests.
type SQLiteStore struct {
	loader
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path.
func NewSQLiteStore(path string, batchSize int, rowsPerSec float64, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Foreign keys are off by default in SQLite and per-connection; setting
	// them in the DSN covers every pooled connection. The hits FK depends on
	// this.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	return &SQLiteStore{loader{
		db:        db,
		logger:    logger,
		batchSize: batchSize,
		maxParams: sqliteMaxParams,
		limiter:   newLimiter(rowsPerSec, batchSize),
	}}, nil
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.logger.Debug("sqlite schema ensured")
	return nil
}
