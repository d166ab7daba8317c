package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ctolnik/activity-tracker/agent/categorize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent              AgentConfig              `yaml:"agent"`
	ActivityMonitoring ActivityMonitoringConfig `yaml:"activity_monitoring"`
	Storage            StorageConfig            `yaml:"storage"`
	API                APIConfig                `yaml:"api"`
	Categories         []categorize.Rule        `yaml:"categories"`
	Logging            LoggingConfig            `yaml:"logging"`
}

type AgentConfig struct {
	ComputerName string `yaml:"computer_name"`
	DataDir      string `yaml:"data_dir"`
}

// ActivityMonitoringConfig holds the pipeline timings, all in milliseconds.
type ActivityMonitoringConfig struct {
	SamplingIntervalMs        int `yaml:"sampling_interval_ms"`
	IdleThresholdMs           int `yaml:"idle_threshold_ms"`
	IdleHysteresisMs          int `yaml:"idle_hysteresis_ms"`
	SleepGapThresholdMs       int `yaml:"sleep_gap_threshold_ms"`
	MarkerFlushIntervalMs     int `yaml:"marker_flush_interval_ms"`
	PendingWriteQueueCapacity int `yaml:"pending_write_queue_capacity"`
	PlatformTimeoutMs         int `yaml:"platform_timeout_ms"`
	WriteRetryAttempts        int `yaml:"write_retry_attempts"`
	WriteRetryDelayMs         int `yaml:"write_retry_delay_ms"`
	ShutdownTimeoutMs         int `yaml:"shutdown_timeout_ms"`
}

type StorageConfig struct {
	Driver     string           `yaml:"driver"`
	SQLitePath string           `yaml:"sqlite_path"`
	SpillPath  string           `yaml:"spill_path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CacheTTLMs int    `yaml:"cache_ttl_ms"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads the YAML file at path. An empty path yields the defaults.
// Environment variables in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ACTIVITY_TRACKER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ACTIVITY_TRACKER_DB_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("ACTIVITY_TRACKER_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACTIVITY_TRACKER_API_PORT: %w", err)
		}
		c.API.Port = port
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Agent.ComputerName == "" {
		c.Agent.ComputerName, _ = os.Hostname()
	}
	if c.Agent.DataDir == "" {
		c.Agent.DataDir = defaultDataDir()
	}

	am := &c.ActivityMonitoring
	if am.SamplingIntervalMs == 0 {
		am.SamplingIntervalMs = 1000
	}
	if am.IdleThresholdMs == 0 {
		am.IdleThresholdMs = 300000
	}
	if am.IdleHysteresisMs == 0 {
		am.IdleHysteresisMs = am.SamplingIntervalMs
	}
	if am.SleepGapThresholdMs == 0 {
		am.SleepGapThresholdMs = 3 * am.SamplingIntervalMs
	}
	if am.MarkerFlushIntervalMs == 0 {
		am.MarkerFlushIntervalMs = 5000
	}
	if am.PendingWriteQueueCapacity == 0 {
		am.PendingWriteQueueCapacity = 256
	}
	if am.PlatformTimeoutMs == 0 {
		am.PlatformTimeoutMs = max(am.SamplingIntervalMs/2, 1)
	}
	if am.WriteRetryAttempts == 0 {
		am.WriteRetryAttempts = 3
	}
	if am.WriteRetryDelayMs == 0 {
		am.WriteRetryDelayMs = 500
	}
	if am.ShutdownTimeoutMs == 0 {
		am.ShutdownTimeoutMs = 5000
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Agent.DataDir, "activity.db")
	}
	if c.Storage.SpillPath == "" {
		c.Storage.SpillPath = filepath.Join(c.Agent.DataDir, "pending-writes.json")
	}
	if c.Storage.ClickHouse.Port == 0 {
		c.Storage.ClickHouse.Port = 9000
	}
	if c.Storage.ClickHouse.Database == "" {
		c.Storage.ClickHouse.Database = "default"
	}

	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8787
	}
	if c.API.CacheTTLMs == 0 {
		c.API.CacheTTLMs = 30000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
}

// Validate checks the values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	am := c.ActivityMonitoring
	var errs []error
	positive := []struct {
		name  string
		value int
	}{
		{"sampling_interval_ms", am.SamplingIntervalMs},
		{"idle_threshold_ms", am.IdleThresholdMs},
		{"idle_hysteresis_ms", am.IdleHysteresisMs},
		{"sleep_gap_threshold_ms", am.SleepGapThresholdMs},
		{"marker_flush_interval_ms", am.MarkerFlushIntervalMs},
		{"pending_write_queue_capacity", am.PendingWriteQueueCapacity},
		{"platform_timeout_ms", am.PlatformTimeoutMs},
		{"write_retry_delay_ms", am.WriteRetryDelayMs},
		{"shutdown_timeout_ms", am.ShutdownTimeoutMs},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("activity_monitoring.%s must be positive, got %d", p.name, p.value))
		}
	}
	if am.WriteRetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("activity_monitoring.write_retry_attempts must not be negative, got %d", am.WriteRetryAttempts))
	}
	if am.SleepGapThresholdMs < am.SamplingIntervalMs {
		errs = append(errs, fmt.Errorf("activity_monitoring.sleep_gap_threshold_ms (%d) must not be smaller than sampling_interval_ms (%d)",
			am.SleepGapThresholdMs, am.SamplingIntervalMs))
	}
	if am.IdleHysteresisMs > am.IdleThresholdMs {
		errs = append(errs, fmt.Errorf("activity_monitoring.idle_hysteresis_ms (%d) must not exceed idle_threshold_ms (%d)",
			am.IdleHysteresisMs, am.IdleThresholdMs))
	}

	switch c.Storage.Driver {
	case "sqlite", "clickhouse":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or clickhouse, got %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "clickhouse" && c.Storage.ClickHouse.Host == "" {
		errs = append(errs, errors.New("storage.clickhouse.host is required for the clickhouse driver"))
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (a ActivityMonitoringConfig) SamplingInterval() time.Duration    { return ms(a.SamplingIntervalMs) }
func (a ActivityMonitoringConfig) IdleThreshold() time.Duration       { return ms(a.IdleThresholdMs) }
func (a ActivityMonitoringConfig) IdleHysteresis() time.Duration      { return ms(a.IdleHysteresisMs) }
func (a ActivityMonitoringConfig) SleepGapThreshold() time.Duration   { return ms(a.SleepGapThresholdMs) }
func (a ActivityMonitoringConfig) MarkerFlushInterval() time.Duration { return ms(a.MarkerFlushIntervalMs) }
func (a ActivityMonitoringConfig) PlatformTimeout() time.Duration     { return ms(a.PlatformTimeoutMs) }
func (a ActivityMonitoringConfig) WriteRetryDelay() time.Duration     { return ms(a.WriteRetryDelayMs) }
func (a ActivityMonitoringConfig) ShutdownTimeout() time.Duration     { return ms(a.ShutdownTimeoutMs) }

func (a APIConfig) CacheTTL() time.Duration { return ms(a.CacheTTLMs) }

func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "activity-tracker")
	}
	return ".activity-tracker"
}
