package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dataside/gaload/internal/config"
	"github.com/dataside/gaload/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testValidation() *config.ValidationConfig {
	return &config.ValidationConfig{
		Validation: map[string]map[string]string{
			"sessions": {
				"session_id":   config.TypeString,
				"utm_source":   config.TypeString,
				"utm_medium":   config.TypeString,
				"visit_date":   config.TypeDate,
				"visit_number": config.TypeInt,
				"device_os":    config.TypeString,
				"device_brand": config.TypeString,
				"device_model": config.TypeString,
			},
			"hits": {
				"session_id":  config.TypeString,
				"hit_date":    config.TypeDate,
				"hit_number":  config.TypeInt,
				"event_label": config.TypeString,
			},
		},
	}
}

// newTestPipeline builds a pipeline over a throwaway SQLite store and returns
// a second read-only handle on the same file for assertions.
func newTestPipeline(t *testing.T) (*Pipeline, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gaload.db")
	store, err := storage.NewSQLiteStore(path, 10000, 0, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.EnsureSchema(context.Background()))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(store, testValidation(), testLogger()), db
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeSnapshot(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "ga_sessions.csv",
		`session_id,utm_source,utm_medium,visit_date,visit_number,device_os,device_brand,device_model
s1,Google,CPC,2024-01-01,1,Android,Samsung,Galaxy
s1,google,cpc,2024-01-01,2,android,samsung,galaxy
s2,partner,spammy_channel,2024-01-01,1,ios,apple,iphone
s3,newsletter,email,2024-01-02,1,,,
`)
	writeFile(t, dir, "ga_hits.csv",
		`session_id,hit_date,hit_number,event_label
s1,2024-01-01,1,click
s1,2024-01-01,1,view
s2,2024-01-01,1,click
s3,2024-01-02,1,Purchase
`)
}

func TestRunSnapshot_EndToEnd(t *testing.T) {
	ctx := context.Background()
	p, db := newTestPipeline(t)

	dir := t.TempDir()
	writeSnapshot(t, dir)

	stats, err := p.RunSnapshot(ctx, dir)
	require.NoError(t, err)

	// s2 fails the medium whitelist, the duplicate s1 row collapses.
	assert.Equal(t, 2, stats.SessionsProcessed)
	assert.Equal(t, 2, stats.TotalSessions)
	// The s2 hit is orphaned with its session, the duplicate s1 hit collapses.
	assert.Equal(t, 2, stats.HitsProcessed)
	assert.Equal(t, 2, stats.TotalHits)
	assert.Zero(t, stats.SynthesizedSessions)

	// Last duplicate wins.
	var visitNumber int
	require.NoError(t, db.QueryRow(
		`SELECT visit_number FROM sessions WHERE session_id = 's1'`).Scan(&visitNumber))
	assert.Equal(t, 2, visitNumber)

	var label string
	require.NoError(t, db.QueryRow(
		`SELECT event_label FROM hits WHERE session_id = 's1' AND hit_number = 1`).Scan(&label))
	assert.Equal(t, "view", label)

	// Text normalization reached the store.
	var medium, brand string
	require.NoError(t, db.QueryRow(
		`SELECT utm_medium, device_brand FROM sessions WHERE session_id = 's3'`).Scan(&medium, &brand))
	assert.Equal(t, "email", medium)
	assert.Equal(t, "unknown", brand)
}

func TestRunSnapshot_OrphanedHitsDoNotShiftOutlierBounds(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	// One surviving session with hit_numbers 1..6, plus eight
	// whitelist-dropped sessions each carrying a hit_number of 1. If the
	// dropped sessions' hits entered the quantile computation they would
	// pull the upper bound below 6 and lose the (s1, 6) hit.
	var sessions, hits strings.Builder
	sessions.WriteString("session_id,utm_source,utm_medium,visit_date,visit_number,device_os,device_brand,device_model\n")
	sessions.WriteString("s1,google,cpc,2024-01-01,1,android,samsung,galaxy\n")
	hits.WriteString("session_id,hit_date,hit_number,event_label\n")
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&hits, "s1,2024-01-01,%d,click\n", i)
	}
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sessions, "spam%d,partner,spammy_channel,2024-01-01,1,android,samsung,galaxy\n", i)
		fmt.Fprintf(&hits, "spam%d,2024-01-01,1,click\n", i)
	}

	dir := t.TempDir()
	writeFile(t, dir, "ga_sessions.csv", sessions.String())
	writeFile(t, dir, "ga_hits.csv", hits.String())

	stats, err := p.RunSnapshot(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SessionsProcessed)
	assert.Equal(t, 6, stats.HitsProcessed)
	assert.Equal(t, 6, stats.TotalHits)
	assert.Zero(t, stats.SynthesizedSessions)
}

func TestRunSnapshot_Idempotent(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	dir := t.TempDir()
	writeSnapshot(t, dir)

	first, err := p.RunSnapshot(ctx, dir)
	require.NoError(t, err)
	second, err := p.RunSnapshot(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, first.TotalSessions, second.TotalSessions)
	assert.Equal(t, first.TotalHits, second.TotalHits)
}

func TestRunSnapshot_MissingDir(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	stats, err := p.RunSnapshot(ctx, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, stats.SessionsProcessed)
	assert.Zero(t, stats.HitsProcessed)
}

func TestRunIncremental_OverwritesSessions(t *testing.T) {
	ctx := context.Background()
	p, db := newTestPipeline(t)

	snapDir := t.TempDir()
	writeSnapshot(t, snapDir)
	_, err := p.RunSnapshot(ctx, snapDir)
	require.NoError(t, err)

	batchDir := t.TempDir()
	writeFile(t, batchDir, "20240103_ga_sessions.json", `{
  "ga_sessions": [
    {"session_id": "s1", "utm_source": "google", "utm_medium": "organic",
     "visit_date": "2024-01-01", "visit_number": 3,
     "device_os": "android", "device_brand": "samsung", "device_model": "galaxy"}
  ]
}`)

	stats, err := p.RunIncremental(ctx, batchDir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SessionsProcessed)

	// Incremental data is authoritative and replaces the snapshot row.
	var medium string
	var visitNumber int
	require.NoError(t, db.QueryRow(
		`SELECT utm_medium, visit_number FROM sessions WHERE session_id = 's1'`).Scan(&medium, &visitNumber))
	assert.Equal(t, "organic", medium)
	assert.Equal(t, 3, visitNumber)
}

func TestRunIncremental_SynthesizesMissingSessions(t *testing.T) {
	ctx := context.Background()
	p, db := newTestPipeline(t)

	batchDir := t.TempDir()
	writeFile(t, batchDir, "20240105_ga_hits.json", `{
  "ga_hits": [
    {"session_id": "s9", "hit_date": "2024-01-05", "hit_number": 1, "event_label": "click"},
    {"session_id": "s9", "hit_date": "2024-01-03", "hit_number": 2, "event_label": "view"}
  ]
}`)

	stats, err := p.RunIncremental(ctx, batchDir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SynthesizedSessions)
	assert.Equal(t, 2, stats.HitsProcessed)

	// The placeholder parent takes the earliest hit date.
	var source string
	var visitNumber int
	var visitDate time.Time
	require.NoError(t, db.QueryRow(
		`SELECT utm_source, visit_number, visit_date FROM sessions WHERE session_id = 's9'`).
		Scan(&source, &visitNumber, &visitDate))
	assert.Equal(t, "unknown", source)
	assert.Equal(t, 1, visitNumber)
	assert.Equal(t, "2024-01-03", visitDate.UTC().Format("2006-01-02"))
}

func TestRunIncremental_SkipsUnclassifiableFiles(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	batchDir := t.TempDir()
	writeFile(t, batchDir, "notes.json", `{"whatever": []}`)

	stats, err := p.RunIncremental(ctx, batchDir)
	require.NoError(t, err)
	assert.Zero(t, stats.SessionsProcessed)
	assert.Zero(t, stats.HitsProcessed)
}

func TestRunIncremental_MissingDir(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	stats, err := p.RunIncremental(ctx, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, stats.SessionsProcessed)
	assert.Zero(t, stats.HitsProcessed)
}
