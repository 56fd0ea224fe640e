package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all pipeline settings for a single run. It is built once at
// command start and passed into the orchestrators; nothing reads the
// environment after Load returns.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Data    DataConfig    `yaml:"data"`
	Load    LoadConfig    `yaml:"load"`
}

type StorageConfig struct {
	Type             string `yaml:"type"` // "postgres", "sqlite"
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	SQLitePath       string `yaml:"sqlite_path"`
}

type DataConfig struct {
	SnapshotDir    string `yaml:"snapshot_dir"`
	BatchDir       string `yaml:"batch_dir"`
	ValidationPath string `yaml:"validation_path"`
}

type LoadConfig struct {
	BatchSize  int     `yaml:"batch_size"`
	RowsPerSec float64 `yaml:"rows_per_sec"` // 0 = unlimited
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:         "postgres",
			PostgresHost: "localhost",
			PostgresPort: 5432,
			PostgresDB:   "gadb",
			PostgresUser: "postgres",
			SQLitePath:   filepath.Join(".gaload", "local.db"),
		},
		Data: DataConfig{
			SnapshotDir:    "data",
			BatchDir:       filepath.Join("data", "json"),
			ValidationPath: filepath.Join("config", "validation.yaml"),
		},
		Load: LoadConfig{
			BatchSize: 10000,
		},
	}
}

// Load loads configuration from file, environment and defaults, in increasing
// order of precedence: defaults < config file < environment variables.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("data", cfg.Data)
	v.SetDefault("load", cfg.Load)

	v.SetEnvPrefix("GALOAD")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".gaload")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate checks that the settings a run mutating the store depends on are
// present. Configuration errors are fatal before any store mutation.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "postgres":
		if c.Storage.PostgresHost == "" || c.Storage.PostgresDB == "" || c.Storage.PostgresUser == "" {
			return fmt.Errorf("postgres connection parameters missing: host=%q db=%q user=%q",
				c.Storage.PostgresHost, c.Storage.PostgresDB, c.Storage.PostgresUser)
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path missing")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	if c.Data.ValidationPath == "" {
		return fmt.Errorf("validation config path missing")
	}
	if c.Load.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Load.BatchSize)
	}
	return nil
}

// PostgresDSN builds the connection string for the configured database.
func (c *Config) PostgresDSN(dbname string) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.Storage.PostgresHost, c.Storage.PostgresPort, dbname,
		c.Storage.PostgresUser, c.Storage.PostgresPassword)
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if t := os.Getenv("STORAGE_TYPE"); t != "" {
		cfg.Storage.Type = t
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg.Storage.PostgresHost = host
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Storage.PostgresPort = p
		}
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		cfg.Storage.PostgresDB = db
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		cfg.Storage.PostgresUser = user
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		cfg.Storage.PostgresPassword = pass
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.Storage.SQLitePath = path
	}

	if dir := os.Getenv("SNAPSHOT_DIR"); dir != "" {
		cfg.Data.SnapshotDir = dir
	}
	if dir := os.Getenv("BATCH_DIR"); dir != "" {
		cfg.Data.BatchDir = dir
	}
	if path := os.Getenv("VALIDATION_PATH"); path != "" {
		cfg.Data.ValidationPath = path
	}

	if size := os.Getenv("LOAD_BATCH_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Load.BatchSize = n
		}
	}
	if rps := os.Getenv("LOAD_ROWS_PER_SEC"); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.Load.RowsPerSec = r
		}
	}
}
