package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dataside/gaload/internal/models"
)

// Kind classifies a batch file by the dataset it carries.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessions
	KindHits
)

// Classify determines the dataset of a batch file from its name.
func Classify(filename string) Kind {
	base := filepath.Base(filename)
	switch {
	case strings.Contains(base, "ga_sessions"):
		return KindSessions
	case strings.Contains(base, "ga_hits"):
		return KindHits
	default:
		return KindUnknown
	}
}

// ListBatchFiles returns the JSON batch files in dir in lexical order, so
// runs process files deterministically. A missing directory surfaces as an
// error wrapping fs.ErrNotExist.
func ListBatchFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("batch directory: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list batch files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadBatchFile parses one batch file: a JSON object mapping arbitrary group
// keys to lists of records. Group keys carry no meaning; the lists are
// flattened into one batch.
func ReadBatchFile(path string) ([]models.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	var groups map[string][]map[string]any
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var records []models.RawRecord
	for _, k := range keys {
		for _, raw := range groups[k] {
			records = append(records, flatten(raw))
		}
	}
	return records, nil
}

// flatten converts one JSON record into a RawRecord. JSON null means absent;
// numbers keep their integer form where they have one.
func flatten(raw map[string]any) models.RawRecord {
	rec := make(models.RawRecord, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			// absent
		case string:
			rec[k] = val
		case float64:
			if val == float64(int64(val)) {
				rec[k] = strconv.FormatInt(int64(val), 10)
			} else {
				rec[k] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		case bool:
			rec[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err == nil {
				rec[k] = string(b)
			}
		}
	}
	return rec
}
