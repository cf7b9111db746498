package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Storage
	StorageType string `envconfig:"STORAGE_TYPE" default:"memory"`
	DataDir     string `envconfig:"DATA_DIR" default:"./data"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Catalog
	BoxCatalogPath string `envconfig:"BOX_CATALOG_PATH" default:"./boxes.yaml"`

	// Economy
	StartingBalance int64 `envconfig:"STARTING_BALANCE" default:"1000"`

	// Battle timing
	LobbyTimeout      time.Duration `envconfig:"LOBBY_TIMEOUT" default:"5m"`
	CountdownWindow   time.Duration `envconfig:"COUNTDOWN_WINDOW" default:"5s"`
	RoundInterval     time.Duration `envconfig:"ROUND_INTERVAL" default:"6s"`
	FastRoundInterval time.Duration `envconfig:"FAST_ROUND_INTERVAL" default:"2s"`
	RoundTimeout      time.Duration `envconfig:"ROUND_TIMEOUT" default:"15s"`
	TickInterval      time.Duration `envconfig:"TICK_INTERVAL" default:"500ms"`

	// Background jobs
	SweepSchedule    string        `envconfig:"SWEEP_SCHEDULE" default:"@every 30s"`
	PruneSchedule    string        `envconfig:"PRUNE_SCHEDULE" default:"@daily"`
	ArchiveRetention time.Duration `envconfig:"ARCHIVE_RETENTION" default:"720h"`

	// Elasticsearch battle history (optional)
	ElasticsearchURL      string `envconfig:"ELASTICSEARCH_URL"`
	ElasticsearchUsername string `envconfig:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string `envconfig:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchIndex    string `envconfig:"ELASTICSEARCH_INDEX_PREFIX" default:"caseclash"`

	// Discord announcements (optional)
	DiscordToken     string `envconfig:"DISCORD_TOKEN"`
	DiscordChannelID string `envconfig:"DISCORD_CHANNEL_ID"`

	// Environment
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment, after loading .env if present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.StorageType == StorageSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	switch c.StorageType {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("STORAGE_TYPE must be one of memory, sqlite, postgres (got %q)", c.StorageType)
	}
	if c.StartingBalance < 0 {
		return fmt.Errorf("STARTING_BALANCE cannot be negative")
	}
	if c.LobbyTimeout <= 0 || c.CountdownWindow < 0 || c.RoundTimeout <= 0 {
		return fmt.Errorf("LOBBY_TIMEOUT and ROUND_TIMEOUT must be positive, COUNTDOWN_WINDOW non-negative")
	}
	if c.RoundInterval < 0 || c.FastRoundInterval < 0 {
		return fmt.Errorf("round intervals cannot be negative")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	return nil
}

// SQLitePath returns the database file used by the sqlite backend
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "caseclash.db")
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
