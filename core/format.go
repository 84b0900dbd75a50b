package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// This file centralizes the on-disk naming scheme. Segment and checkpoint
// file names are fixed-width and zero-padded so that a plain lexical sort
// over file names equals chronological order.

const (
	// SegmentDirName is the subdirectory holding segment files.
	SegmentDirName = "segments"
	// CheckpointDirName is the subdirectory holding checkpoint files.
	CheckpointDirName = "checkpoints"

	// SegmentFilePrefix and SegmentFileSuffix frame a segment file name:
	// wal_<13-digit-epoch-ms>_<10-digit-start-seq>.log
	SegmentFilePrefix = "wal_"
	SegmentFileSuffix = ".log"

	// CheckpointFilePrefix frames a checkpoint file name:
	// checkpoint_<epoch-seconds>_<10-digit-seq>.json
	CheckpointFilePrefix = "checkpoint_"
	CheckpointFileSuffix = ".json"
)

// --- Default Sizes & Limits ---
const (
	// DefaultMaxSegmentSize is the default rotation threshold for a segment.
	DefaultMaxSegmentSize = 100 * 1024 * 1024 // 100 MiB
	// DefaultBatchSize is the default buffered-operation count that forces a
	// flush in batch mode.
	DefaultBatchSize = 100
	// DefaultBatchTimeout bounds how long operations may sit unflushed under
	// low traffic in batch mode.
	DefaultBatchTimeout = 5 * time.Second
	// DefaultCheckpointInterval is the operation count between automatic
	// checkpoints.
	DefaultCheckpointInterval = 1000
	// DefaultKeepCheckpoints is how many checkpoint files are retained.
	DefaultKeepCheckpoints = 10
)

// FormatSegmentFileName builds a segment file name from its creation time
// and the sequence number of the first record it may hold.
func FormatSegmentFileName(createdAt time.Time, startSeqNum uint64) string {
	return fmt.Sprintf("%s%013d_%010d%s", SegmentFilePrefix, createdAt.UnixMilli(), startSeqNum, SegmentFileSuffix)
}

// ParseSegmentFileName extracts the creation epoch-milliseconds and starting
// sequence number from a segment file name.
func ParseSegmentFileName(name string) (epochMillis int64, startSeqNum uint64, err error) {
	if !strings.HasPrefix(name, SegmentFilePrefix) || !strings.HasSuffix(name, SegmentFileSuffix) {
		return 0, 0, fmt.Errorf("file %s is not a WAL segment file", name)
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, SegmentFilePrefix), SegmentFileSuffix)
	parts := strings.Split(base, "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed segment file name %s", name)
	}
	epochMillis, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed segment timestamp in %s: %w", name, err)
	}
	startSeqNum, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed segment sequence number in %s: %w", name, err)
	}
	return epochMillis, startSeqNum, nil
}

// FormatCheckpointFileName builds a checkpoint file name from its creation
// epoch-seconds and the sequence number it covers.
func FormatCheckpointFileName(epochSeconds int64, seqNum uint64) string {
	return fmt.Sprintf("%s%d_%010d%s", CheckpointFilePrefix, epochSeconds, seqNum, CheckpointFileSuffix)
}

// ParseCheckpointFileName extracts the creation epoch-seconds and covered
// sequence number from a checkpoint file name.
func ParseCheckpointFileName(name string) (epochSeconds int64, seqNum uint64, err error) {
	if !strings.HasPrefix(name, CheckpointFilePrefix) || !strings.HasSuffix(name, CheckpointFileSuffix) {
		return 0, 0, fmt.Errorf("file %s is not a checkpoint file", name)
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, CheckpointFilePrefix), CheckpointFileSuffix)
	parts := strings.Split(base, "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed checkpoint file name %s", name)
	}
	epochSeconds, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed checkpoint timestamp in %s: %w", name, err)
	}
	seqNum, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed checkpoint sequence number in %s: %w", name, err)
	}
	return epochSeconds, seqNum, nil
}

// FormatTempFilename builds the temporary file name used by the
// write-and-rename strategy.
func FormatTempFilename(name, postfix string) string {
	return fmt.Sprintf("%s.%s", name, postfix)
}
