package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KAI-YUE/GCFL/services"
)

// Test 1: Defaults are valid and select the in-memory store
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Experiment.Validate())
	require.Nil(t, cfg.Postgres)

	store, err := NewRecordStore(cfg)
	require.NoError(t, err)
	defer store.Close()
	require.IsType(t, &services.InMemoryStore{}, store)
}

// Test 2: YAML files override defaults field by field
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simulator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9999"
log_json: true
experiment:
  compressor: "pred_signSGD"
  predictive: true
  epochs: 3
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.True(t, cfg.LogJSON)
	require.Equal(t, "pred_signSGD", cfg.Experiment.Compressor)
	require.True(t, cfg.Experiment.Predictive)
	require.Equal(t, 3, cfg.Experiment.Epochs)

	// Untouched fields keep their defaults
	require.Equal(t, ":8090", cfg.MetricsAddr)
	require.Equal(t, DefaultConfig().Experiment.Users, cfg.Experiment.Users)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// Test 3: Malformed YAML is reported
func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: [::"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
