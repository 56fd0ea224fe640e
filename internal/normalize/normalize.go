// Package normalize cleans raw tabular records and produces the typed session
// and hit structs consumed by the rest of the pipeline. Per-row problems are
// recovered locally: a bad field is logged and defaulted or the row is dropped
// into the reject list; only systemic failures (a dataset missing from the
// validation config) return an error.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/dataside/gaload/internal/config"
	"github.com/dataside/gaload/internal/models"
	"github.com/sirupsen/logrus"
)

// DateLayout is the canonical text form of all date fields.
const DateLayout = "2006-01-02"

// Dataset names as declared in the validation config.
const (
	DatasetSessions = "sessions"
	DatasetHits     = "hits"
)

// Reject reasons.
const (
	ReasonBadDate    = "unparseable_date"
	ReasonMissingKey = "missing_key_field"
)

// Clean case-folds and trims a textual value.
func Clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isNull reports whether a cleaned value should be treated as absent.
func isNull(s string) bool {
	switch s {
	case "", "nan", "none", "null":
		return true
	}
	return false
}

// records runs the generic cleaning pass over a batch: every value is
// case-folded and trimmed, int columns are checked against strconv (failure is
// logged, the value left as-is), and rows whose date column does not parse are
// dropped. The kept records come back in both cleaned and original form;
// reject payloads always carry the original, as received. Typed construction
// happens in Sessions/Hits.
func records(raws []models.RawRecord, dataset string, columns map[string]string, logger *logrus.Logger) ([]models.RawRecord, []models.RawRecord, []models.Reject) {
	cleaned := make([]models.RawRecord, 0, len(raws))
	originals := make([]models.RawRecord, 0, len(raws))
	var rejects []models.Reject

	for _, raw := range raws {
		out := make(models.RawRecord, len(raw))
		for k, v := range raw {
			out[k] = Clean(v)
		}

		keep := true
		for col, typ := range columns {
			val, ok := out[col]
			if !ok || isNull(val) {
				// Dates are NOT NULL columns; a record without one is dropped.
				if typ == config.TypeDate {
					logger.WithFields(logrus.Fields{
						"dataset": dataset,
						"column":  col,
					}).Warn("dropping record with missing date")
					rejects = append(rejects, models.Reject{Dataset: dataset, Reason: ReasonBadDate, Payload: raw})
					keep = false
					break
				}
				continue
			}
			switch typ {
			case config.TypeInt:
				if _, err := strconv.Atoi(val); err != nil {
					logger.WithFields(logrus.Fields{
						"dataset": dataset,
						"column":  col,
						"value":   val,
					}).Warn("value has unexpected type, expected int")
				}
			case config.TypeDate:
				if _, err := time.Parse(DateLayout, val); err != nil {
					logger.WithFields(logrus.Fields{
						"dataset": dataset,
						"column":  col,
						"value":   val,
					}).Warn("dropping record with unparseable date")
					rejects = append(rejects, models.Reject{Dataset: dataset, Reason: ReasonBadDate, Payload: raw})
					keep = false
				}
			}
			if !keep {
				break
			}
		}
		if keep {
			cleaned = append(cleaned, out)
			originals = append(originals, raw)
		}
	}

	return cleaned, originals, rejects
}

// Sessions normalizes a batch of raw session records into typed Sessions.
func Sessions(raws []models.RawRecord, vcfg *config.ValidationConfig, logger *logrus.Logger) ([]models.Session, []models.Reject, error) {
	columns, err := vcfg.Columns(DatasetSessions)
	if err != nil {
		return nil, nil, err
	}

	cleaned, originals, rejects := records(raws, DatasetSessions, columns, logger)

	sessions := make([]models.Session, 0, len(cleaned))
	for i, rec := range cleaned {
		id := rec["session_id"]
		if isNull(id) {
			logger.WithField("dataset", DatasetSessions).Warn("dropping record without session_id")
			rejects = append(rejects, models.Reject{Dataset: DatasetSessions, Reason: ReasonMissingKey, Payload: originals[i]})
			continue
		}

		visitDate, _ := time.Parse(DateLayout, rec["visit_date"])

		visitNumber := 1
		if n, err := strconv.Atoi(rec["visit_number"]); err == nil && n > 0 {
			visitNumber = n
		} else {
			logger.WithFields(logrus.Fields{
				"session_id": id,
				"value":      rec["visit_number"],
			}).Warn("invalid visit_number, defaulting to 1")
		}

		sessions = append(sessions, models.Session{
			SessionID:   id,
			UTMSource:   textOrUnknown(rec["utm_source"]),
			UTMMedium:   textOrUnknown(rec["utm_medium"]),
			VisitDate:   visitDate,
			VisitNumber: visitNumber,
			DeviceOS:    textOrUnknown(rec["device_os"]),
			DeviceBrand: textOrUnknown(rec["device_brand"]),
			DeviceModel: textOrUnknown(rec["device_model"]),
		})
	}

	return sessions, rejects, nil
}

// Hits normalizes a batch of raw hit records into typed Hits.
func Hits(raws []models.RawRecord, vcfg *config.ValidationConfig, logger *logrus.Logger) ([]models.Hit, []models.Reject, error) {
	columns, err := vcfg.Columns(DatasetHits)
	if err != nil {
		return nil, nil, err
	}

	cleaned, originals, rejects := records(raws, DatasetHits, columns, logger)

	hits := make([]models.Hit, 0, len(cleaned))
	for i, rec := range cleaned {
		id := rec["session_id"]
		if isNull(id) {
			logger.WithField("dataset", DatasetHits).Warn("dropping record without session_id")
			rejects = append(rejects, models.Reject{Dataset: DatasetHits, Reason: ReasonMissingKey, Payload: originals[i]})
			continue
		}

		// hit_number is half the primary key; a hit we cannot key is unusable.
		hitNumber, err := strconv.Atoi(rec["hit_number"])
		if err != nil || hitNumber <= 0 {
			logger.WithFields(logrus.Fields{
				"session_id": id,
				"value":      rec["hit_number"],
			}).Warn("dropping hit with invalid hit_number")
			rejects = append(rejects, models.Reject{Dataset: DatasetHits, Reason: ReasonMissingKey, Payload: originals[i]})
			continue
		}

		hitDate, _ := time.Parse(DateLayout, rec["hit_date"])

		hits = append(hits, models.Hit{
			SessionID:  id,
			HitDate:    hitDate,
			HitNumber:  hitNumber,
			EventLabel: textOrUnknown(rec["event_label"]),
		})
	}

	return hits, rejects, nil
}

func textOrUnknown(s string) string {
	if isNull(s) {
		return models.Unknown
	}
	return s
}
