// Package reconcile restores referential integrity for hits that reference
// sessions absent from both the current batch and the store, by synthesizing
// minimal placeholder sessions. Synthesized sessions are always loaded
// insert-if-absent so a real session row is never overwritten.
package reconcile

import (
	"time"

	"github.com/dataside/gaload/internal/models"
	"github.com/sirupsen/logrus"
)

// MissingSessions returns placeholder sessions for every session_id referenced
// by hits but absent from existingIDs. existingIDs must be the authoritative
// set freshly queried from the store, not the batch's local view: gap
// reconciliation and prior runs may have changed store state the batch cannot
// see.
//
// Each placeholder carries visit_date = the minimum hit_date observed for that
// session (earliest activity is the best available proxy for visit start),
// visit_number = 1 and "unknown" for every other text field.
func MissingSessions(hits []models.Hit, existingIDs map[string]struct{}, logger *logrus.Logger) []models.Session {
	minDates := make(map[string]time.Time)
	for _, h := range hits {
		if _, ok := existingIDs[h.SessionID]; ok {
			continue
		}
		if cur, ok := minDates[h.SessionID]; !ok || h.HitDate.Before(cur) {
			minDates[h.SessionID] = h.HitDate
		}
	}

	if len(minDates) == 0 {
		return nil
	}

	sessions := make([]models.Session, 0, len(minDates))
	for id, date := range minDates {
		if date.IsZero() {
			// Hits with unparseable dates never survive normalization, so this
			// is unreachable in practice; visit_date is NOT NULL, so fall back
			// to today rather than fail the whole stage.
			date = time.Now().UTC().Truncate(24 * time.Hour)
			logger.WithField("session_id", id).Warn("synthesizing session without an observed hit date")
		}
		sessions = append(sessions, models.Session{
			SessionID:   id,
			UTMSource:   models.Unknown,
			UTMMedium:   models.Unknown,
			VisitDate:   date,
			VisitNumber: 1,
			DeviceOS:    models.Unknown,
			DeviceBrand: models.Unknown,
			DeviceModel: models.Unknown,
		})
	}

	logger.WithField("count", len(sessions)).Info("synthesizing missing sessions")
	return sessions
}
