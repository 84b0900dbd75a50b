package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/wal"
)

func TestLoad_ValidConfig(t *testing.T) {
	yamlContent := `
wal:
  dir: "/tmp/test_wal"
  sync_mode: "batch"
  batch_size: 250
archive:
  compression: "snappy"
`
	reader := strings.NewReader(yamlContent)
	cfg, err := Load(reader)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Check overridden values
	assert.Equal(t, "/tmp/test_wal", cfg.WAL.Dir)
	assert.Equal(t, "batch", cfg.WAL.SyncMode)
	assert.Equal(t, 250, cfg.WAL.BatchSize)
	assert.Equal(t, "snappy", cfg.Archive.Compression)

	// Check a default value that was not overridden
	assert.Equal(t, 1000, cfg.WAL.CheckpointInterval)
}

func TestLoad_PartialConfig(t *testing.T) {
	yamlContent := `
wal:
  keep_checkpoints: 5
`
	reader := strings.NewReader(yamlContent)
	cfg, err := Load(reader)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Check overridden value
	assert.Equal(t, 5, cfg.WAL.KeepCheckpoints)
	// Check default values are still there
	assert.Equal(t, "always", cfg.WAL.SyncMode)
	assert.Equal(t, int64(100*1024*1024), cfg.WAL.MaxSegmentSize)
	assert.Equal(t, "zstd", cfg.Archive.Compression)
}

func TestLoad_EmptyReader(t *testing.T) {
	// Test with nil reader
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "always", cfg.WAL.SyncMode) // Check a default value

	// Test with empty string reader
	reader := strings.NewReader("")
	cfg, err = Load(reader)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "always", cfg.WAL.SyncMode) // Check a default value
}

func TestLoad_InvalidYAML(t *testing.T) {
	yamlContent := `
wal:
  sync_mode: "batch"
  this: is: invalid: yaml
`
	reader := strings.NewReader(yamlContent)
	_, err := Load(reader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config yaml")
}

// TestLoadConfig_FileIntegration is a small integration test to ensure
// the original LoadConfig function still works correctly with the filesystem.
func TestLoadConfig_FileIntegration(t *testing.T) {
	t.Run("FileExists", func(t *testing.T) {
		yamlContent := `
wal:
  batch_size: 42
`
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "config.yaml")
		err := os.WriteFile(configPath, []byte(yamlContent), 0644)
		require.NoError(t, err)

		cfg, err := LoadConfig(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, 42, cfg.WAL.BatchSize)
	})

	t.Run("FileDoesNotExist", func(t *testing.T) {
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "non_existent_config.yaml")

		cfg, err := LoadConfig(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		// Should return default value
		assert.Equal(t, 100, cfg.WAL.BatchSize)
	})
}

func TestWALConfig_WALOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("FullConfig", func(t *testing.T) {
		walCfg := WALConfig{
			Dir:                "/tmp/test_wal",
			SyncMode:           "batch",
			BatchSize:          250,
			BatchTimeout:       "250ms",
			CheckpointInterval: 500,
			MaxSegmentSize:     1 << 20,
			KeepCheckpoints:    5,
		}
		opts, err := walCfg.WALOptions(logger)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/test_wal", opts.Dir)
		assert.Equal(t, core.SyncBatch, opts.SyncMode)
		assert.Equal(t, 250, opts.BatchSize)
		assert.Equal(t, 250*time.Millisecond, opts.BatchTimeout)
		assert.Equal(t, 500, opts.CheckpointInterval)
		assert.Equal(t, int64(1<<20), opts.MaxSegmentSize)
		assert.Equal(t, 5, opts.KeepCheckpoints)
		assert.Same(t, logger, opts.Logger)
	})

	t.Run("InvalidSyncMode", func(t *testing.T) {
		_, err := WALConfig{Dir: "/tmp/test_wal", SyncMode: "fastest"}.WALOptions(logger)
		require.ErrorIs(t, err, core.ErrInvalidSyncMode)
	})

	t.Run("InvalidBatchTimeoutFallsBack", func(t *testing.T) {
		opts, err := WALConfig{Dir: "/tmp/test_wal", BatchTimeout: "soon"}.WALOptions(logger)
		require.NoError(t, err)
		assert.Equal(t, core.DefaultBatchTimeout, opts.BatchTimeout)
	})
}

func TestWALConfig_OptionsOpenWAL(t *testing.T) {
	walCfg := WALConfig{
		Dir:      t.TempDir(),
		SyncMode: "periodic",
	}
	opts, err := walCfg.WALOptions(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	w, err := wal.Open(opts)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Append(context.Background(), map[string]string{"op": "pin"})
	require.NoError(t, err)
	assert.Equal(t, core.SyncPeriodic, w.Stats().FsyncMode)
}

func TestParseDuration(t *testing.T) {
	// Use a logger that discards output for this test
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaultDuration := 10 * time.Second

	testCases := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{"ValidSeconds", "5s", 5 * time.Second},
		{"ValidMilliseconds", "500ms", 500 * time.Millisecond},
		{"ValidMinutes", "2m", 2 * time.Minute},
		{"EmptyString", "", defaultDuration},
		{"ZeroString", "0", defaultDuration},
		{"InvalidString", "5x", defaultDuration},
		{"JustNumber", "10", defaultDuration},
		{"NilLogger", "5x", defaultDuration}, // Should not panic with nil logger
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var testLogger *slog.Logger
			if tc.name != "NilLogger" {
				testLogger = logger
			}
			result := ParseDuration(tc.input, defaultDuration, testLogger)
			assert.Equal(t, tc.expected, result)
		})
	}
}
