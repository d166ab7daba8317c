package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	am := cfg.ActivityMonitoring
	assert.Equal(t, time.Second, am.SamplingInterval())
	assert.Equal(t, 5*time.Minute, am.IdleThreshold())
	assert.Equal(t, time.Second, am.IdleHysteresis())
	assert.Equal(t, 3*time.Second, am.SleepGapThreshold())
	assert.Equal(t, 5*time.Second, am.MarkerFlushInterval())
	assert.Equal(t, 256, am.PendingWriteQueueCapacity)
	assert.Equal(t, 500*time.Millisecond, am.PlatformTimeout())
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(cfg.Agent.DataDir, "activity.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, "127.0.0.1:8787", cfg.API.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TRACKER_TEST_DIR", "/var/lib/tracker")
	path := writeConfig(t, `
agent:
  computer_name: ws-01
  data_dir: ${TRACKER_TEST_DIR}
activity_monitoring:
  sampling_interval_ms: 2000
  idle_threshold_ms: 60000
storage:
  driver: clickhouse
  clickhouse:
    host: ch.local
categories:
  - process_name: figma
    category: Productivity
  - process_pattern: "*game*"
    category: Entertainment
logging:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws-01", cfg.Agent.ComputerName)
	assert.Equal(t, "/var/lib/tracker", cfg.Agent.DataDir)
	assert.Equal(t, 2*time.Second, cfg.ActivityMonitoring.IdleHysteresis())
	assert.Equal(t, 6*time.Second, cfg.ActivityMonitoring.SleepGapThreshold())
	assert.Equal(t, 9000, cfg.Storage.ClickHouse.Port)
	assert.Equal(t, "/var/lib/tracker/activity.db", cfg.Storage.SQLitePath)
	require.Len(t, cfg.Categories, 2)
	assert.Equal(t, "*game*", cfg.Categories[1].ProcessPattern)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ACTIVITY_TRACKER_LOG_LEVEL", "debug")
	t.Setenv("ACTIVITY_TRACKER_DB_PATH", "/tmp/x.db")
	t.Setenv("ACTIVITY_TRACKER_API_PORT", "9999")

	cfg, err := Load(writeConfig(t, "logging:\n  level: error\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 9999, cfg.API.Port)

	t.Setenv("ACTIVITY_TRACKER_API_PORT", "http")
	_, err = Load("")
	assert.ErrorContains(t, err, "ACTIVITY_TRACKER_API_PORT")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeConfig(t, "agent: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"negative interval", "activity_monitoring:\n  sampling_interval_ms: -1\n  sleep_gap_threshold_ms: 3000\n  idle_hysteresis_ms: 1000\n  platform_timeout_ms: 100\n", "sampling_interval_ms must be positive"},
		{"sleep gap below interval", "activity_monitoring:\n  sampling_interval_ms: 1000\n  sleep_gap_threshold_ms: 500\n", "must not be smaller than sampling_interval_ms"},
		{"hysteresis above threshold", "activity_monitoring:\n  idle_threshold_ms: 1000\n  idle_hysteresis_ms: 2000\n", "must not exceed idle_threshold_ms"},
		{"unknown driver", "storage:\n  driver: postgres\n", "storage.driver must be sqlite or clickhouse"},
		{"clickhouse without host", "storage:\n  driver: clickhouse\n", "storage.clickhouse.host is required"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"bad port", "api:\n  port: 70000\n", "api.port out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	defaults, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaults.ActivityMonitoring, cfg.ActivityMonitoring)
	assert.Equal(t, defaults.API, cfg.API)
	assert.Equal(t, defaults.Logging, cfg.Logging)
	assert.Len(t, cfg.Categories, 2)
}
