package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dataside/gaload/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// sessionColumns is the widest column count of any loaded table; it bounds how
// many rows fit in one statement under the driver's bind-parameter limit.
const sessionColumns = 8

const (
	insertSessions = `
		INSERT INTO sessions (
			session_id, utm_source, utm_medium, visit_date,
			visit_number, device_os, device_brand, device_model
		) VALUES (
			:session_id, :utm_source, :utm_medium, :visit_date,
			:visit_number, :device_os, :device_brand, :device_model
		)`

	overwriteSessions = ` ON CONFLICT (session_id) DO UPDATE SET
			utm_source = EXCLUDED.utm_source,
			utm_medium = EXCLUDED.utm_medium,
			visit_date = EXCLUDED.visit_date,
			visit_number = EXCLUDED.visit_number,
			device_os = EXCLUDED.device_os,
			device_brand = EXCLUDED.device_brand,
			device_model = EXCLUDED.device_model`

	ignoreSessions = ` ON CONFLICT (session_id) DO NOTHING`

	insertHits = `
		INSERT INTO hits (session_id, hit_date, hit_number, event_label)
		VALUES (:session_id, :hit_date, :hit_number, :event_label)`

	overwriteHits = ` ON CONFLICT (session_id, hit_number) DO UPDATE SET
			hit_date = EXCLUDED.hit_date,
			event_label = EXCLUDED.event_label`

	ignoreHits = ` ON CONFLICT (session_id, hit_number) DO NOTHING`
)

// loader implements the batched, conflict-aware upsert core shared by the
// Postgres and SQLite backends. The dialects agree on ON CONFLICT syntax; the
// backends differ only in DDL and in the bind-parameter limit.
type loader struct {
	db        *sqlx.DB
	logger    *logrus.Logger
	batchSize int
	maxParams int
	limiter   *rate.Limiter // nil = unthrottled
}

// chunkRows bounds one statement by the configured batch size and by the
// driver's bind-parameter limit.
func (l *loader) chunkRows(columns int) int {
	n := l.batchSize
	if byParams := l.maxParams / columns; byParams < n {
		n = byParams
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (l *loader) wait(ctx context.Context, rows int) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.WaitN(ctx, rows)
}

// UpsertSessions loads sessions in bounded batches. The whole call is one
// transaction: it either commits completely or leaves the store untouched.
func (l *loader) UpsertSessions(ctx context.Context, sessions []models.Session, policy ConflictPolicy) error {
	if len(sessions) == 0 {
		return nil
	}

	query := insertSessions
	switch policy {
	case InsertOrOverwrite:
		query += overwriteSessions
	default:
		query += ignoreSessions
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunk := l.chunkRows(sessionColumns)
	for i := 0; i < len(sessions); i += chunk {
		end := i + chunk
		if end > len(sessions) {
			end = len(sessions)
		}
		if err := l.wait(ctx, end-i); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		if _, err := tx.NamedExecContext(ctx, query, sessions[i:end]); err != nil {
			return fmt.Errorf("upsert sessions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sessions: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"rows":   len(sessions),
		"policy": policy.String(),
	}).Debug("sessions loaded")
	return nil
}

// UpsertHits loads hits in bounded batches within one transaction.
func (l *loader) UpsertHits(ctx context.Context, hits []models.Hit, policy ConflictPolicy) error {
	if len(hits) == 0 {
		return nil
	}

	query := insertHits
	switch policy {
	case InsertOrOverwrite:
		query += overwriteHits
	default:
		query += ignoreHits
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunk := l.chunkRows(4)
	for i := 0; i < len(hits); i += chunk {
		end := i + chunk
		if end > len(hits) {
			end = len(hits)
		}
		if err := l.wait(ctx, end-i); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		if _, err := tx.NamedExecContext(ctx, query, hits[i:end]); err != nil {
			return fmt.Errorf("upsert hits: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hits: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"rows":   len(hits),
		"policy": policy.String(),
	}).Debug("hits loaded")
	return nil
}

// SessionIDs returns every session_id currently in the store.
func (l *loader) SessionIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT session_id FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (l *loader) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := l.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM sessions`); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (l *loader) CountHits(ctx context.Context) (int, error) {
	var n int
	if err := l.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM hits`); err != nil {
		return 0, fmt.Errorf("count hits: %w", err)
	}
	return n, nil
}

// RecordLoadRun appends a run to the load_runs audit table.
func (l *loader) RecordLoadRun(ctx context.Context, run models.LoadRun) error {
	query := `
		INSERT INTO load_runs (
			run_id, source, started_at, finished_at,
			total_sessions, synthesized_sessions, total_hits
		) VALUES (
			:run_id, :source, :started_at, :finished_at,
			:total_sessions, :synthesized_sessions, :total_hits
		)`

	if _, err := l.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("record load run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent load runs, newest first.
func (l *loader) RecentRuns(ctx context.Context, limit int) ([]models.LoadRun, error) {
	var runs []models.LoadRun
	query := l.db.Rebind(`
		SELECT run_id, source, started_at, finished_at,
		       total_sessions, synthesized_sessions, total_hits
		FROM load_runs ORDER BY started_at DESC LIMIT ?`)

	if err := l.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}

type rejectRow struct {
	ID        string    `db:"id"`
	RunID     string    `db:"run_id"`
	Dataset   string    `db:"dataset"`
	Reason    string    `db:"reason"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveRejects persists dropped records for inspection. Rejects are diagnostic:
// failures here are reported but must not fail the run.
func (l *loader) SaveRejects(ctx context.Context, runID string, rejects []models.Reject) error {
	if len(rejects) == 0 {
		return nil
	}

	rows := make([]rejectRow, 0, len(rejects))
	now := time.Now().UTC()
	for _, r := range rejects {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			l.logger.WithError(err).Warn("failed to marshal reject payload")
			payload = []byte("{}")
		}
		rows = append(rows, rejectRow{
			ID:        uuid.NewString(),
			RunID:     runID,
			Dataset:   r.Dataset,
			Reason:    r.Reason,
			Payload:   payload,
			CreatedAt: now,
		})
	}

	query := `
		INSERT INTO rejected_records (id, run_id, dataset, reason, payload, created_at)
		VALUES (:id, :run_id, :dataset, :reason, :payload, :created_at)`

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunk := l.chunkRows(6)
	for i := 0; i < len(rows); i += chunk {
		end := i + chunk
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := tx.NamedExecContext(ctx, query, rows[i:end]); err != nil {
			return fmt.Errorf("save rejects: %w", err)
		}
	}

	return tx.Commit()
}

func (l *loader) Close() error {
	return l.db.Close()
}

// newLimiter builds the optional row-rate throttle for the loader.
func newLimiter(rowsPerSec float64, burst int) *rate.Limiter {
	if rowsPerSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rowsPerSec), burst)
}
