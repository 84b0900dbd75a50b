package wal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexuslog/core"
)

func TestFlusher_FlushesStaleBufferInBatchMode(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	opts.SyncMode = core.SyncBatch
	opts.BatchSize = 100 // never reached, the timeout drives this test
	opts.BatchTimeout = 50 * time.Millisecond

	w, err := Open(opts)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Append(context.Background(), testOp{Type: "put", Key: "lonely"})
	require.NoError(t, err)
	require.Equal(t, 1, w.Stats().BatchBufferSize)

	assert.Eventually(t, func() bool {
		return w.Stats().BatchBufferSize == 0
	}, 2*time.Second, 10*time.Millisecond, "background flusher must pick up a stale buffer")

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.TotalFsyncs, uint64(1))
	assert.GreaterOrEqual(t, stats.TotalBatches, uint64(1))
}

func TestFlusher_StopsOnClose(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	opts.SyncMode = core.SyncBatch
	opts.BatchTimeout = 10 * time.Millisecond

	w, err := Open(opts)
	require.NoError(t, err)

	_, err = w.Append(context.Background(), testOp{Type: "put", Key: "key-1"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err, "close must stop the flusher and return")
	case <-time.After(5 * time.Second):
		t.Fatal("Close deadlocked waiting for the background flusher")
	}
}

func TestFlusher_NotStartedInOtherModes(t *testing.T) {
	for _, mode := range []core.SyncMode{core.SyncAlways, core.SyncPeriodic} {
		t.Run(string(mode), func(t *testing.T) {
			opts := testWALOptions(t, t.TempDir())
			opts.SyncMode = mode

			w, err := Open(opts)
			require.NoError(t, err)
			defer w.Close()

			assert.Nil(t, w.flusherStop, "only batch mode runs the background flusher")
		})
	}
}
