// Package checkpoint persists and loads recovery-boundary metadata for the
// write-ahead log.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/sys"
)

// Manager reads and writes checkpoint files inside a single directory.
// Callers serialize access; the manager itself holds no lock.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// NewManager creates a manager for the given checkpoint directory.
func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = logger.With("component", "CheckpointManager")
	}
	return &Manager{dir: dir, logger: logger}
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Write atomically persists a checkpoint using the write-and-rename
// strategy: the JSON document is written to a temp file, fsynced, closed,
// then renamed into place. The final path is returned.
func (m *Manager) Write(cp core.Checkpoint) (string, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("failed to encode checkpoint %s: %w", cp.CheckpointID, err)
	}

	finalName := core.FormatCheckpointFileName(int64(cp.Timestamp), cp.SequenceNumber)
	tempPath := filepath.Join(m.dir, core.FormatTempFilename(finalName, "tmp"))
	file, err := sys.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write checkpoint data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to sync temp checkpoint file: %w", err)
	}
	// Close before renaming; renaming an open file fails on Windows.
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp checkpoint file before rename: %w", err)
	}

	finalPath := filepath.Join(m.dir, finalName)
	if err := sys.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to rename temp checkpoint file to final name: %w", err)
	}
	return finalPath, nil
}

// Load reads every checkpoint file in the directory, ordered oldest first.
// Files that fail to parse are logged and omitted; they reduce the available
// recovery anchors but never block startup.
func (m *Manager) Load() ([]core.Checkpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory %s: %w", m.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, err := core.ParseCheckpointFileName(entry.Name()); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	checkpoints := make([]core.Checkpoint, 0, len(names))
	for _, name := range names {
		path := filepath.Join(m.dir, name)
		cp, err := m.readFile(path)
		if err != nil {
			m.logger.Warn("Skipping unreadable checkpoint file.", "path", path, "error", err)
			continue
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// Prune deletes the oldest checkpoint files beyond keep, returning how many
// were removed. Checkpoint file names sort chronologically, so pruning works
// on the sorted name list.
func (m *Manager) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint directory %s: %w", m.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, err := core.ParseCheckpointFileName(entry.Name()); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) <= keep {
		return 0, nil
	}
	sort.Strings(names)

	pruned := 0
	for _, name := range names[:len(names)-keep] {
		path := filepath.Join(m.dir, name)
		if err := sys.Remove(path); err != nil {
			m.logger.Error("Failed to prune checkpoint file.", "path", path, "error", err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		m.logger.Debug("Pruned old checkpoint files.", "count", pruned, "keep", keep)
	}
	return pruned, nil
}

func (m *Manager) readFile(path string) (core.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var cp core.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to decode checkpoint file: %w", err)
	}
	if cp.CheckpointID == "" {
		return core.Checkpoint{}, fmt.Errorf("checkpoint file %s has no checkpoint_id", path)
	}
	return cp, nil
}
