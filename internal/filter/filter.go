// Package filter enforces batch-level integrity: duplicate collapse, channel
// whitelist membership, orphaned-hit removal and IQR outlier exclusion.
package filter

import (
	"sort"

	"github.com/dataside/gaload/internal/models"
	"github.com/sirupsen/logrus"
)

// knownMediums is the fixed whitelist of acquisition channel categories.
// Sessions with any other utm_medium are dropped entirely.
var knownMediums = map[string]struct{}{
	"organic":         {},
	"blogger_channel": {},
	"blogger_stories": {},
	"banner":          {},
	"cpc":             {},
	"referral":        {},
	"cpm":             {},
	"(none)":          {},
	"app":             {},
	"email":           {},
	"smm":             {},
	"vk_smm":          {},
	"push":            {},
	"stories":         {},
	"tg":              {},
	"smartbanner":     {},
}

// DedupeSessions collapses duplicate session_ids, last-seen wins. Duplicates
// are assumed to be data-entry echoes, not conflicting updates.
func DedupeSessions(sessions []models.Session) []models.Session {
	seen := make(map[string]int, len(sessions))
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if i, ok := seen[s.SessionID]; ok {
			out[i] = s
			continue
		}
		seen[s.SessionID] = len(out)
		out = append(out, s)
	}
	return out
}

// DedupeHits collapses duplicate (session_id, hit_number) pairs, last-seen wins.
func DedupeHits(hits []models.Hit) []models.Hit {
	type key struct {
		sessionID string
		hitNumber int
	}
	seen := make(map[key]int, len(hits))
	out := make([]models.Hit, 0, len(hits))
	for _, h := range hits {
		k := key{h.SessionID, h.HitNumber}
		if i, ok := seen[k]; ok {
			out[i] = h
			continue
		}
		seen[k] = len(out)
		out = append(out, h)
	}
	return out
}

// KnownMediums removes sessions whose utm_medium is not in the channel
// whitelist.
func KnownMediums(sessions []models.Session, logger *logrus.Logger) []models.Session {
	out := make([]models.Session, 0, len(sessions))
	dropped := 0
	for _, s := range sessions {
		if _, ok := knownMediums[s.UTMMedium]; ok {
			out = append(out, s)
			continue
		}
		dropped++
	}
	if dropped > 0 {
		logger.WithField("dropped", dropped).Info("removed sessions with unknown utm_medium")
	}
	return out
}

// OrphanHits removes hits whose session_id is absent from the given session
// ID set. The set may be the surviving sessions of the same batch or the
// authoritative IDs from the store, depending on the pipeline stage.
func OrphanHits(hits []models.Hit, sessionIDs map[string]struct{}, logger *logrus.Logger) []models.Hit {
	out := make([]models.Hit, 0, len(hits))
	dropped := 0
	for _, h := range hits {
		if _, ok := sessionIDs[h.SessionID]; ok {
			out = append(out, h)
			continue
		}
		dropped++
	}
	if dropped > 0 {
		logger.WithField("dropped", dropped).Info("removed hits without a matching session")
	}
	return out
}

// SessionIDSet collects the session_ids of a batch.
func SessionIDSet(sessions []models.Session) map[string]struct{} {
	ids := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		ids[s.SessionID] = struct{}{}
	}
	return ids
}

// SessionOutliers removes sessions whose visit_number falls outside the
// 1.5*IQR bound for this batch. The bound is batch-relative: partitioning the
// same data differently can include or exclude different rows.
func SessionOutliers(sessions []models.Session, logger *logrus.Logger) []models.Session {
	values := make([]float64, len(sessions))
	for i, s := range sessions {
		values[i] = float64(s.VisitNumber)
	}
	lo, hi := iqrBounds(values)

	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		v := float64(s.VisitNumber)
		if v >= lo && v <= hi {
			out = append(out, s)
		}
	}
	if n := len(sessions) - len(out); n > 0 {
		logger.WithFields(logrus.Fields{"dropped": n, "column": "visit_number"}).Info("removed outliers")
	}
	return out
}

// HitOutliers removes hits whose hit_number falls outside the 1.5*IQR bound
// for this batch.
func HitOutliers(hits []models.Hit, logger *logrus.Logger) []models.Hit {
	values := make([]float64, len(hits))
	for i, h := range hits {
		values[i] = float64(h.HitNumber)
	}
	lo, hi := iqrBounds(values)

	out := make([]models.Hit, 0, len(hits))
	for _, h := range hits {
		v := float64(h.HitNumber)
		if v >= lo && v <= hi {
			out = append(out, h)
		}
	}
	if n := len(hits) - len(out); n > 0 {
		logger.WithFields(logrus.Fields{"dropped": n, "column": "hit_number"}).Info("removed outliers")
	}
	return out
}

// iqrBounds computes [Q1 - 1.5*IQR, Q3 + 1.5*IQR] over the batch.
func iqrBounds(values []float64) (lo, hi float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

// quantile linearly interpolates over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := q * float64(len(sorted)-1)
	i := int(idx)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(i)
	return sorted[i]*(1-frac) + sorted[i+1]*frac
}
