// Package config provides configuration management for the key-value store.
// It loads settings from YAML files and environment variables, with
// thread-safe singleton access.
package config

import (
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all application configuration values.
type Config struct {
	DATA_DIR      string `yaml:"DATA_DIR"`      // Directory where generation files are stored
	COMPACT_BOUND uint64 `yaml:"COMPACT_BOUND"` // Untracked bytes threshold that triggers compaction
	ENGINE        string `yaml:"ENGINE"`        // Default for --engine; must match the store's recorded engine, if any
	ADDR          string `yaml:"ADDR"`          // Default listen/dial address
}

const (
	// DefaultCompactBound is used when COMPACT_BOUND is absent or zero in
	// config.yml.
	DefaultCompactBound uint64 = 1024 * 1024

	// DefaultEngine names the built-in generational log engine.
	DefaultEngine = "kvs"

	// DefaultAddr is used when ADDR is absent in config.yml.
	DefaultAddr = "127.0.0.1:4000"
)

var (
	appConfig *Config
	once      sync.Once
	initErr   error
)

// LoadConfig reads configuration values from config.yml and optionally from
// a .env file. It uses a sync.Once to ensure configuration is loaded only
// once, even with concurrent calls. Environment variables in the YAML file
// are expanded using os.ExpandEnv. Returns the loaded configuration and any
// error encountered.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file found or error loading it", "error", err)
		} else {
			slog.Debug(".env file loaded successfully")
		}

		file, err := os.ReadFile("internal/config/config.yml")
		if err != nil {
			initErr = err
			return
		}

		var cfg Config
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(file))), &cfg); err != nil {
			initErr = err
			return
		}

		if cfg.COMPACT_BOUND == 0 {
			cfg.COMPACT_BOUND = DefaultCompactBound
		}
		if cfg.ENGINE == "" {
			cfg.ENGINE = DefaultEngine
		}
		if cfg.ADDR == "" {
			cfg.ADDR = DefaultAddr
		}

		appConfig = &cfg
	})
	if initErr != nil {
		return nil, initErr
	}
	return appConfig, initErr
}
