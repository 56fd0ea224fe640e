// Package pipeline sequences normalization, integrity filtering, gap
// reconciliation and loading for the two ingestion sources. Stages run
// strictly in order because later stages depend on the committed state of
// earlier ones; a failed run may be partially applied (earlier stage commits
// stay durable) and is always safe to replay.
package pipeline

import (
	"context"
	"time"

	"github.com/dataside/gaload/internal/config"
	"github.com/dataside/gaload/internal/filter"
	"github.com/dataside/gaload/internal/models"
	"github.com/dataside/gaload/internal/reconcile"
	"github.com/dataside/gaload/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Pipeline holds the collaborators shared by both orchestrator variants.
type Pipeline struct {
	store  storage.Store
	vcfg   *config.ValidationConfig
	logger *logrus.Logger
}

// New creates a pipeline bound to a store and validation config.
func New(store storage.Store, vcfg *config.ValidationConfig, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		vcfg:   vcfg,
		logger: logger,
	}
}

// newStats starts the bookkeeping for one run.
func newStats(source string) *models.LoadStats {
	return &models.LoadStats{
		RunID:  uuid.NewString(),
		Source: source,
	}
}

// loadHits performs the hit-side stages shared by both orchestrators:
// reconcile gaps against the authoritative store view, load synthesized
// sessions insert-if-absent, re-query, drop hits whose session still does not
// exist, and load the rest under the source's conflict policy.
func (p *Pipeline) loadHits(ctx context.Context, hits []models.Hit, policy storage.ConflictPolicy, stats *models.LoadStats) error {
	if len(hits) == 0 {
		return nil
	}

	existing, err := p.store.SessionIDs(ctx)
	if err != nil {
		return err
	}

	synthesized := reconcile.MissingSessions(hits, existing, p.logger)
	if len(synthesized) > 0 {
		// Placeholders never overwrite a real session.
		if err := p.store.UpsertSessions(ctx, synthesized, storage.InsertIfAbsent); err != nil {
			return err
		}
		stats.SynthesizedSessions += len(synthesized)

		// Re-query: the store is authoritative, not the in-memory batch.
		existing, err = p.store.SessionIDs(ctx)
		if err != nil {
			return err
		}
	}

	hits = filter.OrphanHits(hits, existing, p.logger)
	if err := p.store.UpsertHits(ctx, hits, policy); err != nil {
		return err
	}
	stats.HitsProcessed += len(hits)

	return nil
}

// finish fills in store totals, records the run in the audit table and logs
// the outcome.
func (p *Pipeline) finish(ctx context.Context, stats *models.LoadStats, started time.Time) error {
	var err error
	if stats.TotalSessions, err = p.store.CountSessions(ctx); err != nil {
		return err
	}
	if stats.TotalHits, err = p.store.CountHits(ctx); err != nil {
		return err
	}
	stats.Duration = time.Since(started)

	run := models.LoadRun{
		RunID:               stats.RunID,
		Source:              stats.Source,
		StartedAt:           started.UTC(),
		FinishedAt:          time.Now().UTC(),
		TotalSessions:       stats.TotalSessions,
		SynthesizedSessions: stats.SynthesizedSessions,
		TotalHits:           stats.TotalHits,
	}
	if err := p.store.RecordLoadRun(ctx, run); err != nil {
		// Audit is best-effort; the data load already committed.
		p.logger.WithError(err).Warn("failed to record load run")
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":               stats.RunID,
		"source":               stats.Source,
		"total_sessions":       stats.TotalSessions,
		"synthesized_sessions": stats.SynthesizedSessions,
		"total_hits":           stats.TotalHits,
		"duration":             stats.Duration.String(),
	}).Info("load completed")

	return nil
}

// saveRejects persists dropped records; failures are logged, never fatal.
func (p *Pipeline) saveRejects(ctx context.Context, runID string, rejects []models.Reject) {
	if err := p.store.SaveRejects(ctx, runID, rejects); err != nil {
		p.logger.WithError(err).Warn("failed to save rejected records")
	}
}
