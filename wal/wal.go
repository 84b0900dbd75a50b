// Package wal implements a durable, crash-recoverable write-ahead log:
// an append-only, segmented, checksummed log with periodic checkpointing,
// configurable fsync policies and corruption-tolerant recovery.
package wal

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/INLOpen/nexuslog/checkpoint"
	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/hooks"
	"github.com/INLOpen/nexuslog/integrity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// WAL provides durable intent logging. Producers append opaque operation
// payloads and receive assigned sequence numbers; at startup the owning
// subsystem replays Recover's result into its own state before accepting
// new traffic.
//
// A single mutex serializes sequence assignment, buffer mutation, segment
// writes, rotation and checkpoint creation. The only background concurrency
// is the optional periodic flusher used in batch mode, which competes for
// the same lock.
type WAL struct {
	mu   sync.Mutex
	opts Options

	dir           string
	segmentDir    string
	checkpointDir string

	activeSegment      *SegmentWriter
	seqNum             uint64
	buffer             []core.Record
	lastFlush          time.Time
	opsSinceCheckpoint uint64
	checkpoints        []core.Checkpoint
	cpManager          *checkpoint.Manager
	counters           counters
	closed             bool

	flusherStop chan struct{}
	flusherWG   sync.WaitGroup

	logger      *slog.Logger
	tracer      trace.Tracer
	hookManager hooks.HookManager

	metricsBytesWritten   *expvar.Int
	metricsEntriesWritten *expvar.Int
}

// Open creates or opens a WAL at opts.Dir. It loads checkpoint metadata,
// resumes the sequence counter from the highest-numbered existing segment,
// and opens a fresh segment for appending. Recovery of previously written
// operations is a separate, explicit step: call Recover before resuming
// normal writes.
func Open(opts Options) (*WAL, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("wal: Dir is required")
	}
	if opts.SyncMode != "" && !opts.SyncMode.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidSyncMode, opts.SyncMode)
	}
	opts.applyDefaults()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil)).With("component", "WAL")
	} else {
		opts.Logger = opts.Logger.With("component", "WAL")
	}

	segmentDir := filepath.Join(opts.Dir, core.SegmentDirName)
	checkpointDir := filepath.Join(opts.Dir, core.CheckpointDirName)
	for _, dir := range []string{segmentDir, checkpointDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
		}
	}

	w := &WAL{
		opts:                  opts,
		dir:                   opts.Dir,
		segmentDir:            segmentDir,
		checkpointDir:         checkpointDir,
		cpManager:             checkpoint.NewManager(checkpointDir, opts.Logger),
		logger:                opts.Logger,
		hookManager:           opts.HookManager,
		metricsBytesWritten:   opts.BytesWritten,
		metricsEntriesWritten: opts.EntriesWritten,
	}
	if opts.TracerProvider != nil {
		w.tracer = opts.TracerProvider.Tracer("github.com/INLOpen/nexuslog/wal")
	} else {
		w.tracer = noop.NewTracerProvider().Tracer("")
	}

	checkpoints, err := w.cpManager.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	w.checkpoints = checkpoints

	seqNum, err := resumeSequence(segmentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resume sequence counter: %w", err)
	}
	w.seqNum = seqNum

	seg, err := CreateSegment(segmentDir, w.seqNum+1)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL for appending: %w", err)
	}
	w.activeSegment = seg
	w.lastFlush = time.Now()

	if opts.SyncMode == core.SyncBatch {
		w.startFlusher()
	}

	w.logger.Info("WAL opened.",
		"dir", opts.Dir,
		"sync_mode", opts.SyncMode,
		"sequence_number", w.seqNum,
		"checkpoints", len(w.checkpoints))
	return w, nil
}

// resumeSequence determines the last assigned sequence number from existing
// segments: the highest valid record in the newest segment that has one,
// bounded below by the starting sequence encoded in segment file names.
func resumeSequence(segmentDir string) (uint64, error) {
	names, err := listSegmentFiles(segmentDir)
	if err != nil {
		return 0, err
	}
	var maxSeq uint64
	for _, name := range names {
		if _, startSeq, err := core.ParseSegmentFileName(name); err == nil && startSeq > 0 {
			if startSeq-1 > maxSeq {
				maxSeq = startSeq - 1
			}
		}
	}
	for i := len(names) - 1; i >= 0; i-- {
		var found uint64
		err := readSegmentRecords(filepath.Join(segmentDir, names[i]), func(rec core.Record) {
			if rec.SequenceNumber > found {
				found = rec.SequenceNumber
			}
		}, func([]byte, error) {})
		if err != nil {
			return 0, err
		}
		if found > 0 {
			if found > maxSeq {
				maxSeq = found
			}
			break
		}
	}
	return maxSeq, nil
}

// Append assigns the next sequence number to the operation, buffers it, and
// flushes according to the sync mode: always flushes (and fsyncs)
// immediately; batch flushes once the buffer reaches BatchSize; periodic
// defers flushing to explicit triggers. The assigned sequence number is
// returned.
func (w *WAL) Append(ctx context.Context, operation any) (uint64, error) {
	_, span := w.tracer.Start(ctx, "WAL.Append")
	defer span.End()

	payload, err := json.Marshal(operation)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize operation: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, core.ErrWALClosed
	}

	w.seqNum++
	rec := core.NewRecord(w.seqNum, payload)
	w.buffer = append(w.buffer, rec)
	w.counters.totalOperations++

	switch w.opts.SyncMode {
	case core.SyncAlways:
		if err := w.flushLocked(); err != nil {
			return 0, err
		}
	case core.SyncBatch:
		if len(w.buffer) >= w.opts.BatchSize {
			if err := w.flushLocked(); err != nil {
				return 0, err
			}
		}
	case core.SyncPeriodic:
		// Time-based flushing only: batch append, checkpointing, Sync and
		// Close are the flush points.
	}

	w.opsSinceCheckpoint++
	if err := w.postAppendChecksLocked(ctx); err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int64("wal.sequence_number", int64(rec.SequenceNumber)))
	return rec.SequenceNumber, nil
}

// AppendBatch assigns consecutive sequence numbers to all operations
// atomically, then flushes immediately regardless of sync mode: the batch
// append is itself the durability point.
func (w *WAL) AppendBatch(ctx context.Context, operations []any) ([]uint64, error) {
	_, span := w.tracer.Start(ctx, "WAL.AppendBatch")
	defer span.End()

	if len(operations) == 0 {
		return nil, nil
	}

	payloads := make([]json.RawMessage, len(operations))
	for i, op := range operations {
		data, err := json.Marshal(op)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize operation %d: %w", i, err)
		}
		payloads[i] = data
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, core.ErrWALClosed
	}

	seqNums := make([]uint64, len(payloads))
	for i, payload := range payloads {
		w.seqNum++
		w.buffer = append(w.buffer, core.NewRecord(w.seqNum, payload))
		seqNums[i] = w.seqNum
	}
	w.counters.totalOperations += uint64(len(payloads))

	if err := w.flushLocked(); err != nil {
		return nil, err
	}

	w.opsSinceCheckpoint += uint64(len(payloads))
	if err := w.postAppendChecksLocked(ctx); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("wal.batch_size", len(seqNums)))
	return seqNums, nil
}

// flushLocked writes every buffered record as one JSON line to the active
// segment, fsyncing for the always and batch modes. Must be called with the
// lock held.
func (w *WAL) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}

	var bytesWritten int64
	for i := range w.buffer {
		n, err := w.activeSegment.AppendRecord(w.buffer[i])
		if err != nil {
			return fmt.Errorf("failed to write record to segment: %w", err)
		}
		bytesWritten += int64(n)
	}
	if err := w.activeSegment.Flush(); err != nil {
		return fmt.Errorf("failed to flush segment: %w", err)
	}
	if w.opts.SyncMode == core.SyncAlways || w.opts.SyncMode == core.SyncBatch {
		if err := w.activeSegment.Sync(); err != nil {
			return fmt.Errorf("failed to sync segment: %w", err)
		}
		w.counters.totalFsyncs++
	}

	flushed := len(w.buffer)
	w.buffer = w.buffer[:0]
	w.lastFlush = time.Now()
	w.counters.totalBatches++

	if w.metricsBytesWritten != nil {
		w.metricsBytesWritten.Add(bytesWritten)
	}
	if w.metricsEntriesWritten != nil {
		w.metricsEntriesWritten.Add(int64(flushed))
	}
	return nil
}

// postAppendChecksLocked runs the checkpoint and rotation checks that follow
// every append and batch append. Must be called with the lock held.
func (w *WAL) postAppendChecksLocked(ctx context.Context) error {
	if w.opsSinceCheckpoint >= uint64(w.opts.CheckpointInterval) {
		if _, err := w.createCheckpointLocked(ctx); err != nil {
			return err
		}
	}
	size, err := w.activeSegment.Size()
	if err != nil {
		return fmt.Errorf("could not get active segment size: %w", err)
	}
	if size > w.opts.MaxSegmentSize {
		return w.rotateLocked(ctx)
	}
	return nil
}

// rotateLocked closes the active segment (flush+fsync+close) and opens a
// new one starting at the next sequence number. Must be called with the
// lock held.
func (w *WAL) rotateLocked(ctx context.Context) error {
	if err := w.flushLocked(); err != nil {
		return err
	}

	oldPath := w.activeSegment.Path()
	if err := w.activeSegment.Close(); err != nil {
		return fmt.Errorf("failed to close segment during rotation: %w", err)
	}
	w.counters.totalFsyncs++

	seg, err := CreateSegment(w.segmentDir, w.seqNum+1)
	if err != nil {
		return fmt.Errorf("failed to rotate WAL segment: %w", err)
	}
	w.activeSegment = seg
	w.logger.Info("Rotated to new WAL segment.", "path", seg.Path(), "start_sequence", seg.StartSeqNum())

	if w.hookManager != nil {
		w.hookManager.Trigger(ctx, hooks.NewPostWALRotateEvent(hooks.PostWALRotatePayload{
			OldSegmentPath:      oldPath,
			NewSegmentPath:      seg.Path(),
			StartSequenceNumber: seg.StartSeqNum(),
		}))
	}
	return nil
}

// CreateCheckpoint flushes pending operations, fsyncs the active segment,
// and persists a new recovery boundary covering everything appended so far.
func (w *WAL) CreateCheckpoint(ctx context.Context) (core.Checkpoint, error) {
	_, span := w.tracer.Start(ctx, "WAL.CreateCheckpoint")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return core.Checkpoint{}, core.ErrWALClosed
	}
	return w.createCheckpointLocked(ctx)
}

func (w *WAL) createCheckpointLocked(ctx context.Context) (core.Checkpoint, error) {
	if err := w.flushLocked(); err != nil {
		return core.Checkpoint{}, err
	}
	if err := w.activeSegment.Sync(); err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to sync segment before checkpoint: %w", err)
	}
	w.counters.totalFsyncs++

	checksum, err := integrity.FileChecksum(w.activeSegment.Path())
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to checksum segment for checkpoint: %w", err)
	}

	timestamp := core.UnixSeconds(time.Now())
	cp := core.Checkpoint{
		CheckpointID:    core.NewCheckpointID(w.seqNum, timestamp),
		Timestamp:       timestamp,
		SequenceNumber:  w.seqNum,
		OperationsCount: w.counters.totalOperations,
		FilePath:        w.activeSegment.Path(),
		Checksum:        checksum,
	}
	if _, err := w.cpManager.Write(cp); err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	w.checkpoints = append(w.checkpoints, cp)
	if len(w.checkpoints) > w.opts.KeepCheckpoints {
		w.checkpoints = w.checkpoints[len(w.checkpoints)-w.opts.KeepCheckpoints:]
	}
	w.opsSinceCheckpoint = 0
	w.counters.totalCheckpoints++

	// Pruning failures reduce disk hygiene, not correctness.
	if _, err := w.cpManager.Prune(w.opts.KeepCheckpoints); err != nil {
		w.logger.Error("Failed to prune old checkpoints.", "error", err)
	}

	w.logger.Debug("Checkpoint created.",
		"checkpoint_id", cp.CheckpointID,
		"sequence_number", cp.SequenceNumber,
		"file_path", cp.FilePath)

	if w.hookManager != nil {
		w.hookManager.Trigger(ctx, hooks.NewPostCheckpointEvent(hooks.PostCheckpointPayload{Checkpoint: cp}))
	}
	return cp, nil
}

// Checkpoints returns the in-memory checkpoint list, oldest first.
func (w *WAL) Checkpoints() []core.Checkpoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Checkpoint, len(w.checkpoints))
	copy(out, w.checkpoints)
	return out
}

// Sync flushes buffered operations and forces the active segment to stable
// storage, regardless of sync mode.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return core.ErrWALClosed
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.activeSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL segment: %w", err)
	}
	w.counters.totalFsyncs++
	return nil
}

// Rotate manually closes the active segment and opens a new one.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return core.ErrWALClosed
	}
	return w.rotateLocked(context.Background())
}

// Path returns the WAL base directory.
func (w *WAL) Path() string {
	return w.dir
}

// Close creates a final checkpoint when operations are pending, then fsyncs
// and closes the active segment. Close is terminal: no further appends,
// checkpoints or recoveries are valid, and a second Close is a no-op.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.flusherStop != nil {
		close(w.flusherStop)
	}
	w.mu.Unlock()
	w.flusherWG.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if len(w.buffer) > 0 || w.opsSinceCheckpoint > 0 {
		if _, err := w.createCheckpointLocked(context.Background()); err != nil {
			firstErr = err
			w.logger.Error("Final checkpoint failed during close.", "error", err)
		}
	}
	if w.activeSegment != nil {
		if err := w.activeSegment.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			w.logger.Error("Error closing active segment.", "error", err)
		}
		w.activeSegment = nil
	}

	if firstErr == nil {
		w.logger.Info("WAL closed.")
	}
	return firstErr
}
