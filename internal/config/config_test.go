package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("sol:\n  endpoint: http://sol.local\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://sol.local", cfg.Sol.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Sol.Timeout.Duration())
	assert.Equal(t, 10.0, cfg.Sol.RateLimitRPS)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.Interval.Duration())
	assert.False(t, cfg.Reconciler.PruneMissing)
	assert.Equal(t, "./solbridge.sqlite", cfg.Database.Path)
	assert.Equal(t, 30, cfg.Ledger.RetentionDays)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr())
	assert.Equal(t, "solbridge", cfg.MQTT.TopicPrefix)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, 4, cfg.EventBus.GetWorkers())
	assert.Equal(t, 100, cfg.EventBus.GetQueueSize())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
}

func TestParse_MissingEndpoint(t *testing.T) {
	_, err := Parse([]byte("reconciler:\n  interval: 10s\n"))
	assert.ErrorIs(t, err, ErrMissingEndpoint)

	_, err = Parse([]byte("sol:\n  endpoint: \"  \"\n"))
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("SOL_ENDPOINT", "http://10.0.0.5:8080")

	cfg, err := Parse([]byte(`
sol:
  endpoint: ${SOL_ENDPOINT}
mqtt:
  broker: ${SOLBRIDGE_TEST_UNSET_BROKER:tcp://localhost:1883}
reconciler:
  interval: 1m
  prune_missing: true
`))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8080", cfg.Sol.Endpoint)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, time.Minute, cfg.Reconciler.Interval.Duration())
	assert.True(t, cfg.Reconciler.PruneMissing)
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("sol:\n  endpoint: http://x\n  timeout: soon\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sol:\n  endpoint: http://sol\nhttp:\n  enabled: true\n  port: 8081\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 8081, cfg.HTTP.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
