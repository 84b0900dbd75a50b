package core

import "errors"

var (
	// ErrWALClosed is returned by any mutating call after Close has run.
	ErrWALClosed = errors.New("wal is closed")
	// ErrCheckpointNotFound is returned when recovery references a
	// checkpoint id the WAL does not know about.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrInvalidSyncMode is returned for a sync mode outside
	// always/batch/periodic.
	ErrInvalidSyncMode = errors.New("invalid sync mode")
)
