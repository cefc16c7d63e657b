package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.Retry.Backoff())
	assert.Equal(t, 30*time.Minute, cfg.Cache.TokenMaxAge())
	assert.Equal(t, 60*time.Second, cfg.Cache.TraderMaxAge())
	assert.Equal(t, 200, cfg.Collect.TargetCount)
	assert.Equal(t, 50, cfg.Collect.BatchSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
birdeye:
  api_key: from-file
rate_limit:
  max_requests: 30
collect:
  target_count: 500
  enrich: true
scoring:
  weights:
    volume: 0.4
  thresholds:
    pump_change_percent: 250
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Birdeye.APIKey)
	assert.Equal(t, 30, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds, "untouched fields keep defaults")
	assert.Equal(t, 500, cfg.Collect.TargetCount)
	assert.True(t, cfg.Collect.Enrich)
	assert.Equal(t, 0.4, cfg.Scoring.Weights["volume"])
	assert.Equal(t, 250.0, cfg.Scoring.Thresholds.PumpChangePercent)
}

func TestLoad_EnvKeyWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("birdeye:\n  api_key: from-file\n"), 0o644))

	t.Setenv("BIRDEYE_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Birdeye.APIKey)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
