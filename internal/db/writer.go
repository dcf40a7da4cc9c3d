package db

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// OutputWriter moves output recording off the control loop. Enqueue never
// blocks; rows that do not fit in the queue are counted and dropped.
type OutputWriter struct {
	DB            *DB
	RunID         string
	FlushInterval time.Duration
	BatchSize     int

	queue   chan Output
	dropped atomic.Uint64
	written atomic.Uint64
}

func NewOutputWriter(db *DB, runID string, queueSize int) *OutputWriter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &OutputWriter{
		DB:            db,
		RunID:         runID,
		FlushInterval: time.Second,
		BatchSize:     256,
		queue:         make(chan Output, queueSize),
	}
}

// Enqueue reports whether o was accepted.
func (w *OutputWriter) Enqueue(o Output) bool {
	select {
	case w.queue <- o:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Stats returns the number of rows written and dropped so far.
func (w *OutputWriter) Stats() (written, dropped uint64) {
	return w.written.Load(), w.dropped.Load()
}

// Run drains the queue into the database until ctx is done, then flushes
// whatever is still queued.
func (w *OutputWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.FlushInterval)
	defer ticker.Stop()

	batch := make([]Output, 0, w.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.DB.RecordOutputs(ctx, w.RunID, batch); err != nil {
			log.Printf("output writer: dropping %d rows: %v", len(batch), err)
			w.dropped.Add(uint64(len(batch)))
		} else {
			w.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case o := <-w.queue:
			batch = append(batch, o)
			if len(batch) >= w.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			for {
				select {
				case o := <-w.queue:
					batch = append(batch, o)
				default:
					flush(context.Background())
					return ctx.Err()
				}
			}
		}
	}
}
