package config

import (
	"os"
	"path/filepath"
	"testing"

	"causalscore/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SCORER_CONFIG_FILE", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.01, cfg.Scorer.SDThreshold)
	assert.Equal(t, 0.05, cfg.Scorer.Clip)
	assert.Equal(t, 200, cfg.Scorer.Quantiles)
	assert.Equal(t, uint64(42), cfg.Scorer.CODECSeed)
	assert.Equal(t, "info", cfg.Runtime.LogLevel)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scorer:
  clip: 0.1
  quantiles: 50
runtime:
  parallelism: 2
`), 0o600))
	t.Setenv("SCORER_CONFIG_FILE", path)
	t.Setenv("SCORER_QUANTILES", "80")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Scorer.Clip)
	assert.Equal(t, 80, cfg.Scorer.Quantiles)
	assert.Equal(t, 2, cfg.Runtime.Parallelism)
	assert.Equal(t, 16, cfg.Runtime.CacheSize)
	assert.Equal(t, "debug", cfg.Runtime.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"clip too large", "SCORER_CLIP", "0.7"},
		{"single quantile", "SCORER_QUANTILES", "1"},
		{"no workers", "SCORER_PARALLELISM", "0"},
		{"unknown log level", "LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SCORER_CONFIG_FILE", "")
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("SCORER_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsAppError(err))
}
