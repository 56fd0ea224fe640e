package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/dataside/gaload/internal/filter"
	"github.com/dataside/gaload/internal/models"
	"github.com/dataside/gaload/internal/normalize"
	"github.com/dataside/gaload/internal/source"
	"github.com/dataside/gaload/internal/storage"
	"golang.org/x/sync/errgroup"
)

// RunSnapshot executes the bulk-snapshot load: both tabular datasets from dir
// are normalized and filtered (concurrently — rows have no cross-dataset
// ordering dependency), sessions load insert-if-absent, gaps are reconciled,
// and hits load insert-or-overwrite.
func (p *Pipeline) RunSnapshot(ctx context.Context, dir string) (*models.LoadStats, error) {
	started := time.Now()
	stats := newStats("snapshot")
	logger := p.logger.WithField("run_id", stats.RunID)

	logger.WithField("dir", dir).Info("starting snapshot load")

	if err := p.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	rawSessions, rawHits, err := source.ReadSnapshot(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WithError(err).Error("snapshot source missing, nothing loaded")
			return stats, nil
		}
		return nil, err
	}

	var (
		sessions []models.Session
		hits     []models.Hit
		batchIDs map[string]struct{}
		rejects  struct {
			sessions []models.Reject
			hits     []models.Reject
		}
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, rejects.sessions, err = normalize.Sessions(rawSessions, p.vcfg, p.logger)
		if err != nil {
			return err
		}
		sessions = filter.DedupeSessions(sessions)
		sessions = filter.KnownMediums(sessions, p.logger)
		// Captured before outlier removal: hits of an outlier-dropped session
		// stay in the batch and get a synthesized parent from the reconciler.
		batchIDs = filter.SessionIDSet(sessions)
		sessions = filter.SessionOutliers(sessions, p.logger)
		return nil
	})
	g.Go(func() error {
		var err error
		hits, rejects.hits, err = normalize.Hits(rawHits, p.vcfg, p.logger)
		if err != nil {
			return err
		}
		hits = filter.DedupeHits(hits)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.SessionsRejected = len(rejects.sessions)
	stats.HitsRejected = len(rejects.hits)

	// Hits referencing sessions absent from this batch (whitelist failures,
	// bad rows, foreign ids) are removed before the outlier pass so they
	// cannot shift the batch-relative bounds; hits whose parent was dropped
	// only by outlier removal go through the gap reconciler instead.
	hits = filter.OrphanHits(hits, batchIDs, p.logger)
	hits = filter.HitOutliers(hits, p.logger)

	if err := p.store.UpsertSessions(ctx, sessions, storage.InsertIfAbsent); err != nil {
		return nil, err
	}
	stats.SessionsProcessed = len(sessions)

	if err := p.loadHits(ctx, hits, storage.InsertOrOverwrite, stats); err != nil {
		return nil, err
	}

	p.saveRejects(ctx, stats.RunID, append(rejects.sessions, rejects.hits...))

	if err := p.finish(ctx, stats, started); err != nil {
		return nil, err
	}
	return stats, nil
}
