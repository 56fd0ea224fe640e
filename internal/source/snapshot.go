// Package source reads the two ingestion inputs: the bulk snapshot (tabular
// CSV datasets) and the incremental directory of JSON batch files. Both
// produce the same untyped RawRecord shape; the normalizer owns everything
// after that.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dataside/gaload/internal/models"
)

// Snapshot dataset file names inside the snapshot directory.
const (
	SessionsFile = "ga_sessions.csv"
	HitsFile     = "ga_hits.csv"
)

// ReadSnapshot loads both snapshot datasets from dir. A missing file surfaces
// as an error wrapping fs.ErrNotExist so callers can treat an absent source as
// a no-op run rather than a failure.
func ReadSnapshot(dir string) (sessions, hits []models.RawRecord, err error) {
	sessions, err = readCSV(filepath.Join(dir, SessionsFile))
	if err != nil {
		return nil, nil, err
	}
	hits, err = readCSV(filepath.Join(dir, HitsFile))
	if err != nil {
		return nil, nil, err
	}
	return sessions, hits, nil
}

// readCSV reads a headered CSV file into raw records keyed by column name.
func readCSV(path string) ([]models.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are a data problem, not a read failure

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header %s: %w", path, err)
	}

	var records []models.RawRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %s: %w", path, err)
		}

		rec := make(models.RawRecord, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}

	return records, nil
}
