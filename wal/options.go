package wal

import (
	"expvar"
	"log/slog"
	"time"

	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/hooks"
	"go.opentelemetry.io/otel/trace"
)

// Options holds configuration for a WAL instance.
type Options struct {
	// Dir is the base path. Segments live under Dir/segments and
	// checkpoints under Dir/checkpoints. Required.
	Dir string

	// SyncMode selects the flush/fsync policy. Defaults to SyncAlways.
	SyncMode core.SyncMode

	// BatchSize is the buffered-operation count that forces a flush in
	// batch mode.
	BatchSize int

	// BatchTimeout bounds how long operations may sit unflushed in batch
	// mode before the background flusher writes them out.
	BatchTimeout time.Duration

	// CheckpointInterval is the number of appended operations between
	// automatic checkpoints.
	CheckpointInterval int

	// MaxSegmentSize is the on-disk size beyond which the active segment is
	// rotated.
	MaxSegmentSize int64

	// KeepCheckpoints bounds how many checkpoint files are retained; older
	// files are deleted after each new checkpoint.
	KeepCheckpoints int

	Logger *slog.Logger

	// TracerProvider enables span creation around append, checkpoint and
	// recovery calls. A noop tracer is used when nil.
	TracerProvider trace.TracerProvider

	// HookManager receives PostWALRotate, PostCheckpoint and
	// PostWALRecovery events when set.
	HookManager hooks.HookManager

	// Optional expvar counters, published by the embedding process.
	BytesWritten   *expvar.Int
	EntriesWritten *expvar.Int
}

func (o *Options) applyDefaults() {
	if o.SyncMode == "" {
		o.SyncMode = core.SyncAlways
	}
	if o.BatchSize <= 0 {
		o.BatchSize = core.DefaultBatchSize
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = core.DefaultBatchTimeout
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = core.DefaultCheckpointInterval
	}
	if o.MaxSegmentSize <= 0 {
		o.MaxSegmentSize = core.DefaultMaxSegmentSize
	}
	if o.KeepCheckpoints <= 0 {
		o.KeepCheckpoints = core.DefaultKeepCheckpoints
	}
}
