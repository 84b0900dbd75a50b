package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/INLOpen/nexuslog/checkpoint"
	"github.com/INLOpen/nexuslog/compressors"
	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/integrity"
	"golang.org/x/sync/errgroup"
)

// RestoreResult summarizes a restore pass.
type RestoreResult struct {
	Restored             int
	SkippedExisting      int
	CorruptionDetections int
	BytesIn              int64
	BytesOut             int64
}

// archiveEntry is one restorable file in the archive directory: a segment
// name plus the codec recorded in its extension.
type archiveEntry struct {
	name    string // archive file name, e.g. wal_..._0000000001.log.zstd
	segment string // segment file name the archive was made from
	codec   core.Compressor
}

// Restore decompresses every archived segment into outDir (default
// <WALDir>/restored), picking the codec from each file's extension. When a
// checkpoint recorded a checksum for a segment, the restored bytes are
// verified against it; mismatches are counted and the file is not written.
// Existing output files are left untouched, so a restore pass is idempotent.
func (m *Manager) Restore(ctx context.Context, outDir string) (RestoreResult, error) {
	if outDir == "" {
		outDir = filepath.Join(m.opts.WALDir, "restored")
	}

	entries, err := m.listArchives()
	if err != nil {
		return RestoreResult{}, err
	}
	var result RestoreResult
	if len(entries) == 0 {
		return result, nil
	}

	checksumByName, err := m.checkpointChecksums()
	if err != nil {
		return RestoreResult{}, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return RestoreResult{}, fmt.Errorf("failed to create restore directory %s: %w", outDir, err)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)

	for _, entry := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			destPath := filepath.Join(outDir, entry.segment)
			if _, err := os.Stat(destPath); err == nil {
				mu.Lock()
				result.SkippedExisting++
				mu.Unlock()
				return nil
			}

			srcPath := filepath.Join(m.opts.ArchiveDir, entry.name)
			compressed, err := os.ReadFile(srcPath)
			if err != nil {
				return fmt.Errorf("failed to read archive file %s: %w", srcPath, err)
			}
			rc, err := entry.codec.Decompress(compressed)
			if err != nil {
				return fmt.Errorf("failed to decompress archive file %s: %w", srcPath, err)
			}
			restored, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("failed to decompress archive file %s: %w", srcPath, err)
			}

			if want, ok := checksumByName[entry.segment]; ok {
				got, err := integrity.ReaderChecksum(bytes.NewReader(restored))
				if err != nil {
					return err
				}
				if got != want {
					m.logger.Warn("Restored segment does not match its checkpoint checksum, not writing.",
						"archive", srcPath)
					mu.Lock()
					result.CorruptionDetections++
					mu.Unlock()
					return nil
				}
			}

			if err := writeAtomic(destPath, restored); err != nil {
				return err
			}

			m.logger.Debug("Restored segment.", "segment", entry.segment, "codec", entry.codec.Type().String())
			mu.Lock()
			result.Restored++
			result.BytesIn += int64(len(compressed))
			result.BytesOut += int64(len(restored))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	m.logger.Info("Restore pass complete.",
		"restored", result.Restored,
		"skipped_existing", result.SkippedExisting,
		"corruption_detections", result.CorruptionDetections)
	return result, nil
}

// listArchives returns the restorable files in the archive directory in
// segment order. Files whose name does not end in a segment name plus a
// known codec extension are ignored.
func (m *Manager) listArchives() ([]archiveEntry, error) {
	dirEntries, err := os.ReadDir(m.opts.ArchiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read archive directory %s: %w", m.opts.ArchiveDir, err)
	}

	var entries []archiveEntry
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		name := dirEntry.Name()
		ext := filepath.Ext(name)
		segment := strings.TrimSuffix(name, ext)
		if _, _, err := core.ParseSegmentFileName(segment); err != nil {
			continue
		}
		codec, err := compressors.ForName(strings.TrimPrefix(ext, "."))
		if err != nil {
			m.logger.Warn("Skipping archive file with unknown codec extension.", "file", name)
			continue
		}
		entries = append(entries, archiveEntry{name: name, segment: segment, codec: codec})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].segment < entries[j].segment })
	return entries, nil
}

// checkpointChecksums maps segment file names to the checksum recorded for
// them, excluding the newest checkpoint: its segment may have grown after
// the checksum was taken, so it is not authoritative.
func (m *Manager) checkpointChecksums() (map[string]string, error) {
	cpManager := checkpoint.NewManager(filepath.Join(m.opts.WALDir, core.CheckpointDirName), m.opts.Logger)
	checkpoints, err := cpManager.Load()
	if err != nil {
		return nil, err
	}
	checksumByName := make(map[string]string, len(checkpoints))
	for i, cp := range checkpoints {
		if i == len(checkpoints)-1 {
			continue
		}
		checksumByName[filepath.Base(cp.FilePath)] = cp.Checksum
	}
	return checksumByName, nil
}
