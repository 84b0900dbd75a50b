// Package archive compresses rotated WAL segments into an archive
// directory, out of band of the live log. The active (newest) segment is
// never touched, and archiving copies rather than deletes log data.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/integrity"
	"github.com/INLOpen/nexuslog/sys"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Options configures an archive pass.
type Options struct {
	// WALDir is the WAL base path containing segments/ and checkpoints/.
	WALDir string
	// ArchiveDir is where compressed segments are written. Defaults to
	// <WALDir>/archive.
	ArchiveDir string
	// Compressor encodes each segment. Required.
	Compressor core.Compressor
	// Concurrency bounds how many segments are compressed in parallel.
	Concurrency int

	Logger *slog.Logger
}

// Result summarizes an archive pass.
type Result struct {
	Archived             int
	SkippedActive        int
	SkippedExisting      int
	CorruptionDetections int
	BytesIn              int64
	BytesOut             int64
}

// Manager runs archive passes over a WAL directory. It must not run
// concurrently with a live WAL writer on the same base path.
type Manager struct {
	opts   Options
	logger *slog.Logger
}

// NewManager validates the options and creates an archive manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.WALDir == "" {
		return nil, fmt.Errorf("archive: WALDir is required")
	}
	if opts.Compressor == nil {
		return nil, fmt.Errorf("archive: Compressor is required")
	}
	if opts.ArchiveDir == "" {
		opts.ArchiveDir = filepath.Join(opts.WALDir, "archive")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger.With("component", "Archive"),
	}, nil
}

// Run archives every rotated segment that has not been archived yet. When a
// checkpoint records a checksum for a rotated segment, the live bytes are
// verified against it first; mismatching segments are counted and skipped.
func (m *Manager) Run(ctx context.Context) (Result, error) {
	segmentDir := filepath.Join(m.opts.WALDir, core.SegmentDirName)
	names, err := listSegments(segmentDir)
	if err != nil {
		return Result{}, err
	}
	var result Result
	if len(names) == 0 {
		return result, nil
	}

	// The newest segment may still be appended to; leave it alone.
	rotated := names[:len(names)-1]
	result.SkippedActive = 1

	checksumByName, err := m.checkpointChecksums()
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(m.opts.ArchiveDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create archive directory %s: %w", m.opts.ArchiveDir, err)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)

	for _, name := range rotated {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			destPath := filepath.Join(m.opts.ArchiveDir, name+"."+m.opts.Compressor.Type().String())
			if _, err := os.Stat(destPath); err == nil {
				mu.Lock()
				result.SkippedExisting++
				mu.Unlock()
				return nil
			}

			srcPath := filepath.Join(segmentDir, name)
			data, err := os.ReadFile(srcPath)
			if err != nil {
				return fmt.Errorf("failed to read segment %s: %w", srcPath, err)
			}

			if want, ok := checksumByName[name]; ok {
				got, err := integrity.ReaderChecksum(bytes.NewReader(data))
				if err != nil {
					return err
				}
				if got != want {
					m.logger.Warn("Segment checksum mismatch, not archiving.", "path", srcPath)
					mu.Lock()
					result.CorruptionDetections++
					mu.Unlock()
					return nil
				}
			}

			compressed, err := m.opts.Compressor.Compress(data)
			if err != nil {
				return fmt.Errorf("failed to compress segment %s: %w", srcPath, err)
			}
			if err := writeAtomic(destPath, compressed); err != nil {
				return err
			}

			m.logger.Debug("Archived segment.", "segment", name, "bytes_in", len(data), "bytes_out", len(compressed))
			mu.Lock()
			result.Archived++
			result.BytesIn += int64(len(data))
			result.BytesOut += int64(len(compressed))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	m.logger.Info("Archive pass complete.",
		"archived", result.Archived,
		"skipped_existing", result.SkippedExisting,
		"corruption_detections", result.CorruptionDetections)
	return result, nil
}

// writeAtomic persists data with the write-and-rename strategy used for
// checkpoint files.
func writeAtomic(path string, data []byte) error {
	tempPath := core.FormatTempFilename(path, "tmp")
	file, err := sys.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp archive file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync archive file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close archive file before rename: %w", err)
	}
	if err := sys.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename archive file into place: %w", err)
	}
	return nil
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read segment directory %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, err := core.ParseSegmentFileName(entry.Name()); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
