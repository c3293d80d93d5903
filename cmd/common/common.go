// Package common provides shared utilities for GCFL CLI commands.
//
// This package contains the YAML configuration shared by the simulator
// binary plus helper factories used during startup:
//
//   - Config loading with defaults and file overrides
//   - Structured logger construction (text or JSON)
//   - Record store selection (Postgres when configured, in-memory otherwise)
package common

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/KAI-YUE/GCFL/services"
)

// Config holds the complete configuration for a simulator process.
type Config struct {
	// HTTPAddr is the listen address for the status API.
	HTTPAddr string `yaml:"http_addr"`

	// MetricsAddr is the listen address for the Prometheus metrics server.
	// Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// EnablePprof enables the pprof debugging API on the status server.
	EnablePprof bool `yaml:"enable_pprof"`

	// LogJSON switches log output from text to JSON.
	LogJSON bool `yaml:"log_json"`

	// LogDebug lowers the log level to debug.
	LogDebug bool `yaml:"log_debug"`

	// Postgres configures persistent run records. A nil section selects
	// the in-memory store.
	Postgres *services.PostgresConfig `yaml:"postgres"`

	// Experiment configures the federated learning run itself.
	Experiment services.ExperimentConfig `yaml:"experiment"`
}

// DefaultConfig returns a configuration with sensible defaults for local runs.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":8090",
		Experiment:  *services.DefaultExperimentConfig(),
	}
}

// LoadConfig reads a YAML configuration file, applying defaults for any
// fields the file does not set.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger according to the configured format
// and level.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// NewRecordStore selects the record store implementation: Postgres when
// configured, an in-memory store otherwise.
func NewRecordStore(cfg *Config) (services.RecordStore, error) {
	if cfg.Postgres != nil {
		store, err := services.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return store, nil
	}
	return services.NewInMemoryStore(), nil
}
