package storage

import (
	"context"

	"github.com/dataside/gaload/internal/models"
)

// ConflictPolicy selects what a bulk upsert does on a primary-key conflict.
type ConflictPolicy int

const (
	// InsertIfAbsent leaves the existing row untouched on conflict. Used for
	// the snapshot session load and for synthesized placeholder sessions.
	InsertIfAbsent ConflictPolicy = iota
	// InsertOrOverwrite replaces all non-key columns with the incoming values.
	// Used for incremental loads, which are treated as authoritative.
	InsertOrOverwrite
)

func (p ConflictPolicy) String() string {
	switch p {
	case InsertIfAbsent:
		return "insert_if_absent"
	case InsertOrOverwrite:
		return "insert_or_overwrite"
	default:
		return "unknown"
	}
}

// Store defines the relational store interface the pipeline needs. Each write
// method runs in its own transaction and commits before returning, so a later
// stage failure leaves earlier stages durable (the pipeline is a multi-stage
// saga, not one atomic transaction).
type Store interface {
	// EnsureSchema creates tables and indexes if they do not exist.
	EnsureSchema(ctx context.Context) error

	// UpsertSessions loads sessions in bounded batches under the given policy.
	UpsertSessions(ctx context.Context, sessions []models.Session, policy ConflictPolicy) error

	// UpsertHits loads hits in bounded batches under the given policy. Every
	// hit's session must already exist in the store.
	UpsertHits(ctx context.Context, hits []models.Hit, policy ConflictPolicy) error

	// SessionIDs returns the authoritative set of session_ids in the store.
	SessionIDs(ctx context.Context) (map[string]struct{}, error)

	CountSessions(ctx context.Context) (int, error)
	CountHits(ctx context.Context) (int, error)

	// RecordLoadRun appends a run to the load_runs audit table.
	RecordLoadRun(ctx context.Context, run models.LoadRun) error

	// RecentRuns returns the most recent load runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]models.LoadRun, error)

	// SaveRejects persists records dropped during normalization for inspection.
	SaveRejects(ctx context.Context, runID string, rejects []models.Reject) error

	// Close releases the underlying connections.
	Close() error
}
