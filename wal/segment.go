package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/sys"
)

// maxRecordLineSize bounds a single segment line during reads. Lines beyond
// this are treated as corruption.
const maxRecordLineSize = 16 * 1024 * 1024

// SegmentWriter handles appending newline-delimited JSON records to a single
// segment file. A segment is mutable only by appending; once rotated it is
// never written again.
type SegmentWriter struct {
	file        sys.FileHandle
	writer      *bufio.Writer
	path        string
	startSeqNum uint64
}

// CreateSegment creates a new segment file in dir, named after the creation
// time and the sequence number of the first record it may hold. If a file
// with the same millisecond timestamp already exists (two rotations inside
// one millisecond), the timestamp is bumped until the name is free.
func CreateSegment(dir string, startSeqNum uint64) (*SegmentWriter, error) {
	createdAt := time.Now()
	for {
		path := filepath.Join(dir, core.FormatSegmentFileName(createdAt, startSeqNum))
		file, err := sys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				createdAt = createdAt.Add(time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
		}
		return &SegmentWriter{
			file:        file,
			writer:      bufio.NewWriter(file),
			path:        path,
			startSeqNum: startSeqNum,
		}, nil
	}
}

// AppendRecord writes one record as a single JSON line into the write
// buffer and returns the number of bytes queued. The data reaches the file
// on Flush and stable storage on Sync.
func (sw *SegmentWriter) AppendRecord(rec core.Record) (int, error) {
	if sw.file == nil {
		return 0, os.ErrClosed
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record %d: %w", rec.SequenceNumber, err)
	}
	if _, err := sw.writer.Write(line); err != nil {
		return 0, fmt.Errorf("failed to write record %d: %w", rec.SequenceNumber, err)
	}
	if err := sw.writer.WriteByte('\n'); err != nil {
		return 0, fmt.Errorf("failed to terminate record %d: %w", rec.SequenceNumber, err)
	}
	return len(line) + 1, nil
}

// Flush pushes buffered lines to the operating system.
func (sw *SegmentWriter) Flush() error {
	if sw.file == nil {
		return os.ErrClosed
	}
	return sw.writer.Flush()
}

// Sync flushes buffered lines and forces them to stable storage.
func (sw *SegmentWriter) Sync() error {
	if err := sw.Flush(); err != nil {
		return err
	}
	return sw.file.Sync()
}

// Close syncs and closes the segment file. The segment is rotated: no
// further writes are valid.
func (sw *SegmentWriter) Close() error {
	if sw.file == nil {
		return nil
	}
	syncErr := sw.Sync()
	closeErr := sw.file.Close()
	sw.file = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Size returns the current on-disk size of the segment, flushing buffered
// lines first so the rotation check sees every written record.
func (sw *SegmentWriter) Size() (int64, error) {
	if sw.file == nil {
		return 0, os.ErrClosed
	}
	if err := sw.writer.Flush(); err != nil {
		return 0, err
	}
	stat, err := sw.file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

// Path returns the segment's file path.
func (sw *SegmentWriter) Path() string {
	return sw.path
}

// StartSeqNum returns the sequence number the segment was opened at.
func (sw *SegmentWriter) StartSeqNum() uint64 {
	return sw.startSeqNum
}

// listSegmentFiles returns the segment file names in dir in chronological
// order. The fixed-width naming scheme makes lexical order chronological.
func listSegmentFiles(dir string) ([]string, error) {
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

// readSegmentRecords scans a segment line by line in file order. Valid
// records are passed to onRecord; lines that fail to parse are passed to
// onCorrupt and skipped.
func readSegmentRecords(path string, onRecord func(core.Record), onCorrupt func(line []byte, err error)) error {
	file, err := sys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment for reading %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxRecordLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec core.Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.SequenceNumber == 0 {
			if err == nil {
				err = fmt.Errorf("record line has no sequence_number")
			}
			onCorrupt(line, err)
			continue
		}
		onRecord(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan segment %s: %w", path, err)
	}
	return nil
}
