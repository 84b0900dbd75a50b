package core

import (
	"bytes"
	"io"
)

// SyncMode defines when buffered operations are flushed and fsynced.
type SyncMode string

const (
	// SyncAlways flushes and fsyncs after every append (highest durability,
	// lowest throughput).
	SyncAlways SyncMode = "always"
	// SyncBatch flushes once the batch buffer fills, with a background
	// flusher guarding against stale buffers; flushes fsync.
	SyncBatch SyncMode = "batch"
	// SyncPeriodic flushes on explicit triggers only (batch append,
	// checkpoint, close); flushes do not fsync.
	SyncPeriodic SyncMode = "periodic"
)

// Valid reports whether the mode is one of the three supported values.
func (m SyncMode) Valid() bool {
	switch m {
	case SyncAlways, SyncBatch, SyncPeriodic:
		return true
	}
	return false
}

// CompressionType identifies the compression algorithm used for an archived
// segment. It is recorded in the archive file extension so the archive can
// be decompressed later.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

// Compressor defines the interface for compression and decompression
// algorithms.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	// CompressTo compresses src into the provided buffer, avoiding the
	// allocation Compress performs.
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}
