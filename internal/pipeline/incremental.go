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
)

// RunIncremental executes the incremental load: every JSON batch file in dir
// is classified by name, session files are processed before hit files so
// same-batch parents exist when their hits load, and both datasets load
// insert-or-overwrite since incremental data is authoritative.
func (p *Pipeline) RunIncremental(ctx context.Context, dir string) (*models.LoadStats, error) {
	started := time.Now()
	stats := newStats("incremental")
	logger := p.logger.WithField("run_id", stats.RunID)

	logger.WithField("dir", dir).Info("starting incremental load")

	if err := p.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	files, err := source.ListBatchFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WithError(err).Error("batch directory missing, nothing loaded")
			return stats, nil
		}
		return nil, err
	}

	var sessionFiles, hitFiles []string
	for _, f := range files {
		switch source.Classify(f) {
		case source.KindSessions:
			sessionFiles = append(sessionFiles, f)
		case source.KindHits:
			hitFiles = append(hitFiles, f)
		default:
			logger.WithField("file", f).Warn("skipping unclassifiable batch file")
		}
	}

	var allRejects []models.Reject

	for _, f := range sessionFiles {
		logger.WithField("file", f).Info("processing session batch")

		raws, err := source.ReadBatchFile(f)
		if err != nil {
			return nil, err
		}

		sessions, rejects, err := normalize.Sessions(raws, p.vcfg, p.logger)
		if err != nil {
			return nil, err
		}
		allRejects = append(allRejects, rejects...)
		stats.SessionsRejected += len(rejects)

		sessions = filter.DedupeSessions(sessions)
		sessions = filter.KnownMediums(sessions, p.logger)
		sessions = filter.SessionOutliers(sessions, p.logger)

		if err := p.store.UpsertSessions(ctx, sessions, storage.InsertOrOverwrite); err != nil {
			return nil, err
		}
		stats.SessionsProcessed += len(sessions)
	}

	for _, f := range hitFiles {
		logger.WithField("file", f).Info("processing hit batch")

		raws, err := source.ReadBatchFile(f)
		if err != nil {
			return nil, err
		}

		hits, rejects, err := normalize.Hits(raws, p.vcfg, p.logger)
		if err != nil {
			return nil, err
		}
		allRejects = append(allRejects, rejects...)
		stats.HitsRejected += len(rejects)

		hits = filter.DedupeHits(hits)
		hits = filter.HitOutliers(hits, p.logger)

		if err := p.loadHits(ctx, hits, storage.InsertOrOverwrite, stats); err != nil {
			return nil, err
		}
	}

	p.saveRejects(ctx, stats.RunID, allRejects)

	if err := p.finish(ctx, stats, started); err != nil {
		return nil, err
	}
	return stats, nil
}
