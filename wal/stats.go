package wal

import "github.com/INLOpen/nexuslog/core"

// Stats is a point-in-time snapshot of the WAL's cumulative counters,
// intended for metrics and observability integrations.
type Stats struct {
	TotalOperations           uint64        `json:"total_operations"`
	TotalBatches              uint64        `json:"total_batches"`
	TotalFsyncs               uint64        `json:"total_fsyncs"`
	TotalCheckpoints          uint64        `json:"total_checkpoints"`
	CorruptionDetections      uint64        `json:"corruption_detections"`
	RecoveryOperations        uint64        `json:"recovery_operations"`
	SequenceNumber            uint64        `json:"sequence_number"`
	BatchBufferSize           int           `json:"batch_buffer_size"`
	OperationsSinceCheckpoint uint64        `json:"operations_since_checkpoint"`
	CheckpointCount           int           `json:"checkpoint_count"`
	FsyncMode                 core.SyncMode `json:"fsync_mode"`
}

// counters holds the mutable statistic fields, guarded by the WAL lock.
type counters struct {
	totalOperations      uint64
	totalBatches         uint64
	totalFsyncs          uint64
	totalCheckpoints     uint64
	corruptionDetections uint64
	recoveryOperations   uint64
}

// Stats returns a snapshot of the instance counters. It remains meaningful
// after Close.
func (w *WAL) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		TotalOperations:           w.counters.totalOperations,
		TotalBatches:              w.counters.totalBatches,
		TotalFsyncs:               w.counters.totalFsyncs,
		TotalCheckpoints:          w.counters.totalCheckpoints,
		CorruptionDetections:      w.counters.corruptionDetections,
		RecoveryOperations:        w.counters.recoveryOperations,
		SequenceNumber:            w.seqNum,
		BatchBufferSize:           len(w.buffer),
		OperationsSinceCheckpoint: w.opsSinceCheckpoint,
		CheckpointCount:           len(w.checkpoints),
		FsyncMode:                 w.opts.SyncMode,
	}
}
