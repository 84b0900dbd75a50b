package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Record is the envelope written to a segment as one JSON line. The
// Operation payload is opaque to the log; callers are responsible for
// interpreting it during replay.
type Record struct {
	SequenceNumber uint64          `json:"sequence_number"`
	Timestamp      float64         `json:"timestamp"`
	Operation      json.RawMessage `json:"operation"`
}

// NewRecord wraps an already-serialized operation payload with the given
// sequence number and the current wall-clock time.
func NewRecord(seqNum uint64, operation json.RawMessage) Record {
	return Record{
		SequenceNumber: seqNum,
		Timestamp:      UnixSeconds(time.Now()),
		Operation:      operation,
	}
}

// UnixSeconds converts a time.Time to fractional unix seconds, the timestamp
// representation used in both segment lines and checkpoint files.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Checkpoint marks a durable recovery boundary. Its checksum captures the
// referenced segment's bytes at checkpoint time; if the segment is appended
// to afterwards without rotating, the live file will no longer match. That
// mismatch is expected for the segment referenced by the newest checkpoint
// and must only be treated as corruption for rotated segments.
type Checkpoint struct {
	CheckpointID    string  `json:"checkpoint_id"`
	Timestamp       float64 `json:"timestamp"`
	SequenceNumber  uint64  `json:"sequence_number"`
	OperationsCount uint64  `json:"operations_count"`
	FilePath        string  `json:"file_path"`
	Checksum        string  `json:"checksum"`
}

// NewCheckpointID derives a stable 16-hex-digit identifier from the
// checkpoint's sequence number and timestamp.
func NewCheckpointID(seqNum uint64, timestamp float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d_%f", seqNum, timestamp)))
	return hex.EncodeToString(sum[:])[:16]
}
