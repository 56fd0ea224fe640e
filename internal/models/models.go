package models

import (
	"time"
)

// Unknown is the default value substituted for missing or null-ish text fields.
const Unknown = "unknown"

// Session represents one user visit, keyed by session_id.
type Session struct {
	SessionID   string    `json:"session_id" db:"session_id"`
	UTMSource   string    `json:"utm_source" db:"utm_source"`
	UTMMedium   string    `json:"utm_medium" db:"utm_medium"`
	VisitDate   time.Time `json:"visit_date" db:"visit_date"`
	VisitNumber int       `json:"visit_number" db:"visit_number"`
	DeviceOS    string    `json:"device_os" db:"device_os"`
	DeviceBrand string    `json:"device_brand" db:"device_brand"`
	DeviceModel string    `json:"device_model" db:"device_model"`
}

// Hit represents one event within a session, keyed by (session_id, hit_number).
type Hit struct {
	SessionID  string    `json:"session_id" db:"session_id"`
	HitDate    time.Time `json:"hit_date" db:"hit_date"`
	HitNumber  int       `json:"hit_number" db:"hit_number"`
	EventLabel string    `json:"event_label" db:"event_label"`
}

// RawRecord is the untyped row shape produced by the snapshot and JSON sources.
// Missing keys mean the field was absent; the normalizer owns the transition to
// the typed Session/Hit structs and nothing downstream sees a partial record.
type RawRecord map[string]string

// Reject captures a record dropped during normalization, kept for inspection
// in the rejected_records table.
type Reject struct {
	Dataset string    `json:"dataset" db:"dataset"`
	Reason  string    `json:"reason" db:"reason"`
	Payload RawRecord `json:"payload"`
}

// LoadRun is one pipeline invocation recorded in the load_runs audit table.
type LoadRun struct {
	RunID               string    `json:"run_id" db:"run_id"`
	Source              string    `json:"source" db:"source"`
	StartedAt           time.Time `json:"started_at" db:"started_at"`
	FinishedAt          time.Time `json:"finished_at" db:"finished_at"`
	TotalSessions       int       `json:"total_sessions" db:"total_sessions"`
	SynthesizedSessions int       `json:"synthesized_sessions" db:"synthesized_sessions"`
	TotalHits           int       `json:"total_hits" db:"total_hits"`
}

// LoadStats summarizes the outcome of a pipeline run.
type LoadStats struct {
	RunID               string
	Source              string
	SessionsProcessed   int
	HitsProcessed       int
	SessionsRejected    int
	HitsRejected        int
	SynthesizedSessions int
	TotalSessions       int
	TotalHits           int
	Duration            time.Duration
}
