package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Semantic column types understood by the normalizer.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeDate   = "date"
)

// ValidationConfig maps dataset name -> column name -> expected semantic type.
// It drives type coercion in the normalizer; an unreadable file is a fatal
// configuration error, not a per-row one.
type ValidationConfig struct {
	Validation map[string]map[string]string `yaml:"validation"`
}

// LoadValidation reads the validation config from a YAML file.
func LoadValidation(path string) (*ValidationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read validation config %s: %w", path, err)
	}

	var cfg ValidationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse validation config %s: %w", path, err)
	}

	for dataset, columns := range cfg.Validation {
		for col, typ := range columns {
			switch typ {
			case TypeString, TypeInt, TypeDate:
			default:
				return nil, fmt.Errorf("validation config %s: dataset %q column %q has unknown type %q",
					path, dataset, col, typ)
			}
		}
	}

	return &cfg, nil
}

// Columns returns the column->type map for a dataset, or an error if the
// dataset is not declared.
func (c *ValidationConfig) Columns(dataset string) (map[string]string, error) {
	columns, ok := c.Validation[dataset]
	if !ok {
		return nil, fmt.Errorf("dataset %q not present in validation config", dataset)
	}
	return columns, nil
}
