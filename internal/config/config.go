// Package config holds runtime settings for PalStore.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds runtime settings for the PalStore data layer.
//
// Fields:
//   - DataDir: directory for the database, thumbnails, legacy file and the
//     import marker.
//   - DatabasePath: SQLite file path; derived from DataDir when empty.
//   - CatalogURL: base URL of the remote catalog service.
//   - CatalogTimeout: per-request timeout for catalog calls.
//   - AuthToken / UserID: session identity; both empty means signed out.
//   - LogLevel: slog level name (debug, info, warn, error).
type Config struct {
	DataDir        string        `env:"PALSTORE_DATA_DIR"`
	DatabasePath   string        `env:"PALSTORE_DB"`
	CatalogURL     string        `env:"PALSTORE_CATALOG_URL"`
	CatalogTimeout time.Duration `env:"PALSTORE_CATALOG_TIMEOUT"`
	AuthToken      string        `env:"PALSTORE_TOKEN"`
	UserID         string        `env:"PALSTORE_USER_ID"`
	LogLevel       string        `env:"PALSTORE_LOG_LEVEL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	c.DataDir = filepath.Join(home, ".palstore")
	c.CatalogURL = "http://127.0.0.1:8080"
	c.CatalogTimeout = 10 * time.Second
	c.LogLevel = "info"
}

// Load constructs a Config, applies defaults, then overlays values from the
// environment. Command-line flags are overlaid later by the CLI layer, so
// flags take precedence over environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "palstore.db")
	}
	return cfg, nil
}

// ThumbnailDir is where downloaded thumbnails live.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.DataDir, "thumbnails")
}

// IsAuthenticated reports whether the config carries a usable identity.
func (c *Config) IsAuthenticated() bool {
	return c.AuthToken != "" && c.UserID != ""
}
