package wal

import "time"

// The background flusher is only active in batch mode. It guards against
// operations sitting unflushed indefinitely under low traffic: every
// BatchTimeout it flushes the buffer if it is non-empty and the last flush
// is older than the timeout.

func (w *WAL) startFlusher() {
	w.flusherStop = make(chan struct{})
	w.flusherWG.Add(1)
	go w.runFlusher()
}

func (w *WAL) runFlusher() {
	defer w.flusherWG.Done()

	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-w.flusherStop:
			return
		case <-ticker.C:
			w.flushIfStale()
		}
	}
}

func (w *WAL) flushIfStale() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || len(w.buffer) == 0 {
		return
	}
	if time.Since(w.lastFlush) < w.opts.BatchTimeout {
		return
	}
	if err := w.flushLocked(); err != nil {
		w.logger.Error("Background flush failed.", "error", err)
	}
}
