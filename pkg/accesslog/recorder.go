package accesslog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder writes records to a Backend through a buffered channel so that
// the request path never waits on storage. When the buffer is full the
// record is dropped and counted rather than blocking.
type Recorder struct {
	backend Backend
	logger  *slog.Logger
	ch      chan Record
	dropped atomic.Int64
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// NewRecorder starts a recorder draining into backend. buffer <= 0 defaults
// to 1024.
func NewRecorder(backend Backend, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		backend: backend,
		logger:  logger,
		ch:      make(chan Record, buffer),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues one record. It never blocks; on a full buffer the record
// is dropped and the drop counter incremented.
func (r *Recorder) Record(rec Record) {
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many records were discarded because the buffer was
// full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Prune removes records older than the retention window.
func (r *Recorder) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return r.backend.Prune(ctx, time.Now().Add(-retention))
}

// Close stops accepting records, flushes the buffer, and closes the
// backend.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.ch)
	})
	r.wg.Wait()
	return r.backend.Close()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for rec := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.backend.Insert(ctx, rec); err != nil {
			r.logger.Warn("access log insert failed", "error", err)
		}
		cancel()
	}
}
