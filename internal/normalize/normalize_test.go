package normalize

import (
	"io"
	"testing"
	"time"

	"github.com/dataside/gaload/internal/config"
	"github.com/dataside/gaload/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testValidation() *config.ValidationConfig {
	return &config.ValidationConfig{
		Validation: map[string]map[string]string{
			"sessions": {
				"session_id":   "string",
				"utm_source":   "string",
				"utm_medium":   "string",
				"visit_date":   "date",
				"visit_number": "int",
				"device_os":    "string",
				"device_brand": "string",
				"device_model": "string",
			},
			"hits": {
				"session_id":  "string",
				"hit_date":    "date",
				"hit_number":  "int",
				"event_label": "string",
			},
		},
	}
}

func TestSessions_CleansAndTypes(t *testing.T) {
	raws := []models.RawRecord{
		{
			"session_id":   "  S1  ",
			"utm_source":   "Google",
			"utm_medium":   " CPC ",
			"visit_date":   "2024-01-05",
			"visit_number": "3",
			"device_os":    "Android",
			"device_brand": "Samsung",
			"device_model": "SM-A515F",
		},
	}

	sessions, rejects, err := Sessions(raws, testValidation(), testLogger())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Empty(t, rejects)

	s := sessions[0]
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, "google", s.UTMSource)
	assert.Equal(t, "cpc", s.UTMMedium)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), s.VisitDate)
	assert.Equal(t, 3, s.VisitNumber)
	assert.Equal(t, "samsung", s.DeviceBrand)
}

func TestSessions_DefaultsForMissingFields(t *testing.T) {
	raws := []models.RawRecord{
		{
			"session_id":   "s2",
			"visit_date":   "2024-02-01",
			"visit_number": "1",
			"device_brand": "NaN",
		},
	}

	sessions, _, err := Sessions(raws, testValidation(), testLogger())
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, models.Unknown, s.UTMSource)
	assert.Equal(t, models.Unknown, s.UTMMedium)
	assert.Equal(t, models.Unknown, s.DeviceOS)
	assert.Equal(t, models.Unknown, s.DeviceBrand)
	assert.Equal(t, models.Unknown, s.DeviceModel)
}

func TestSessions_DropsUnparseableDates(t *testing.T) {
	raws := []models.RawRecord{
		{"session_id": "bad1", "visit_date": "05.01.2024", "visit_number": "1"},
		{"session_id": "bad2", "visit_number": "1"}, // missing date
		{"session_id": "ok", "visit_date": "2024-01-05", "visit_number": "1"},
	}

	sessions, rejects, err := Sessions(raws, testValidation(), testLogger())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "ok", sessions[0].SessionID)

	require.Len(t, rejects, 2)
	for _, r := range rejects {
		assert.Equal(t, ReasonBadDate, r.Reason)
		assert.Equal(t, DatasetSessions, r.Dataset)
	}
}

func TestSessions_InvalidVisitNumberDefaultsToOne(t *testing.T) {
	raws := []models.RawRecord{
		{"session_id": "s3", "visit_date": "2024-01-05", "visit_number": "abc"},
		{"session_id": "s4", "visit_date": "2024-01-05", "visit_number": "-2"},
	}

	sessions, rejects, err := Sessions(raws, testValidation(), testLogger())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Empty(t, rejects)
	assert.Equal(t, 1, sessions[0].VisitNumber)
	assert.Equal(t, 1, sessions[1].VisitNumber)
}

func TestSessions_DropsRecordsWithoutKey(t *testing.T) {
	raws := []models.RawRecord{
		{"session_id": "  ", "visit_date": "2024-01-05", "visit_number": "1"},
	}

	sessions, rejects, err := Sessions(raws, testValidation(), testLogger())
	require.NoError(t, err)
	assert.Empty(t, sessions)
	require.Len(t, rejects, 1)
	assert.Equal(t, ReasonMissingKey, rejects[0].Reason)
}

func TestRejectPayloadsKeepOriginalForm(t *testing.T) {
	raws := []models.RawRecord{
		{"session_id": " S1 ", "utm_source": "Google", "visit_date": "05.01.2024", "visit_number": "1"},
		{"session_id": "  ", "utm_source": "Yandex", "visit_date": "2024-01-05", "visit_number": "1"},
	}

	_, rejects, err := Sessions(raws, testValidation(), testLogger())
	require.NoError(t, err)
	require.Len(t, rejects, 2)

	// Payloads carry the input as received, not the cleaned record, for
	// every reject reason.
	assert.Equal(t, ReasonBadDate, rejects[0].Reason)
	assert.Equal(t, " S1 ", rejects[0].Payload["session_id"])
	assert.Equal(t, "Google", rejects[0].Payload["utm_source"])
	assert.Equal(t, ReasonMissingKey, rejects[1].Reason)
	assert.Equal(t, "Yandex", rejects[1].Payload["utm_source"])
}

func TestHits_CleansAndTypes(t *testing.T) {
	raws := []models.RawRecord{
		{"session_id": "S1", "hit_date": "2024-01-05", "hit_number": "2", "event_label": " Click "},
		{"session_id": "s1", "hit_date": "2024-13-40", "hit_number": "3", "event_label": "x"},
		{"session_id": "s1", "hit_date": "2024-01-05", "hit_number": "zero", "event_label": "x"},
	}

	hits, rejects, err := Hits(raws, testValidation(), testLogger())
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].SessionID)
	assert.Equal(t, 2, hits[0].HitNumber)
	assert.Equal(t, "click", hits[0].EventLabel)
	assert.Len(t, rejects, 2)
}

func TestHits_MissingEventLabelDefaults(t *testing.T) {
	raws := []models.RawRecord{
		{"session_id": "s1", "hit_date": "2024-01-05", "hit_number": "1"},
	}

	hits, _, err := Hits(raws, testValidation(), testLogger())
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, models.Unknown, hits[0].EventLabel)
}

func TestSessions_UnknownDatasetFails(t *testing.T) {
	vcfg := &config.ValidationConfig{Validation: map[string]map[string]string{}}
	_, _, err := Sessions(nil, vcfg, testLogger())
	assert.Error(t, err)
}
