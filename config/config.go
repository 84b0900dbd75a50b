package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/wal"
)

// WALConfig holds Write-Ahead Log specific configurations.
type WALConfig struct {
	Dir                string `yaml:"dir"`
	SyncMode           string `yaml:"sync_mode"` // "always", "batch", or "periodic"
	BatchSize          int    `yaml:"batch_size"`
	BatchTimeout       string `yaml:"batch_timeout"`
	CheckpointInterval int    `yaml:"checkpoint_interval"`
	MaxSegmentSize     int64  `yaml:"max_segment_size"`
	KeepCheckpoints    int    `yaml:"keep_checkpoints"`
}

// WALOptions converts the configuration into wal.Options. The sync mode is
// validated here; zero-valued tuning fields fall through to the engine
// defaults.
func (c WALConfig) WALOptions(logger *slog.Logger) (wal.Options, error) {
	mode := core.SyncMode(c.SyncMode)
	if c.SyncMode != "" && !mode.Valid() {
		return wal.Options{}, fmt.Errorf("%w: %q", core.ErrInvalidSyncMode, c.SyncMode)
	}
	return wal.Options{
		Dir:                c.Dir,
		SyncMode:           mode,
		BatchSize:          c.BatchSize,
		BatchTimeout:       ParseDuration(c.BatchTimeout, core.DefaultBatchTimeout, logger),
		CheckpointInterval: c.CheckpointInterval,
		MaxSegmentSize:     c.MaxSegmentSize,
		KeepCheckpoints:    c.KeepCheckpoints,
		Logger:             logger,
	}, nil
}

// ArchiveConfig holds archive-specific configurations.
type ArchiveConfig struct {
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"` // "none", "snappy", "lz4", or "zstd"
	Concurrency int    `yaml:"concurrency"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	WAL     WALConfig     `yaml:"wal"`
	Archive ArchiveConfig `yaml:"archive"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		WAL: WALConfig{
			Dir:                "./data/wal",
			SyncMode:           "always",
			BatchSize:          100,
			BatchTimeout:       "5s",
			CheckpointInterval: 1000,
			MaxSegmentSize:     100 * 1024 * 1024, // 100 MiB
			KeepCheckpoints:    10,
		},
		Archive: ArchiveConfig{
			Dir:         "",
			Compression: "zstd",
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nexuslog.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	// If data is empty, return defaults.
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
