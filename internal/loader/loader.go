// Package loader batches coerced rows and writes each batch to a sink in its
// own transaction.
//
// Rows are read by a producer goroutine (the caller of Load) and handed to a
// single flusher over a channel of depth one, so building the next batch
// overlaps the previous insert while batches still commit in source order.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"csvload/internal/metrics"
	"csvload/internal/transformer"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Sink receives batches. storage.Repository satisfies it.
//
// InsertBatch must be atomic: either every row of the batch is committed or
// none are.
type Sink interface {
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Flush describes one committed batch.
type Flush struct {
	Batch     int   // 1-based batch number
	Rows      int64 // rows committed by this batch
	Committed int64 // rows committed so far, this batch included
	Duration  time.Duration
}

// Result is the outcome of Load. It is meaningful even when Load fails.
type Result struct {
	Rows    int64
	Batches int
}

// BatchFlushError reports a failed batch. Batches before it stay committed.
type BatchFlushError struct {
	Batch     int
	Rows      int
	Committed int64
	Err       error
}

func (e *BatchFlushError) Error() string {
	return fmt.Sprintf("flush batch %d (%d rows, %d committed before): %v", e.Batch, e.Rows, e.Committed, e.Err)
}

func (e *BatchFlushError) Unwrap() error { return e.Err }

// Loader writes row streams to a Sink.
type Loader struct {
	Logger Logger

	// OnFlush, when set, is called on the flusher goroutine after every
	// committed batch.
	OnFlush func(ctx context.Context, f Flush)

	// OnError, when set, is called once with the *BatchFlushError of a failed
	// flush. Callers use it to stop upstream stages early.
	OnError func(err error)

	// StreamErr, when set, is called once rows is closed. A non-nil error
	// means the stream ended early: the partial buffer is discarded and Load
	// returns the error after the batches already handed off are flushed.
	StreamErr func() error
}

type batch struct {
	n    int
	rows [][]any
}

// Load drains rows, grouping them into batches of capacity rows, and returns
// once rows is closed and every handed-off batch has been processed.
//
// Cancellation is honored only between flushes. A flush that has started runs
// to completion under a context detached from ctx's cancellation; after ctx
// is canceled no new flush starts and the partially filled buffer is
// discarded. Load keeps draining rows after cancellation so upstream stages
// can exit.
//
// For R rows and capacity B, a run that is not canceled and does not fail
// commits exactly ceil(R/B) batches whose sizes sum to R.
func (l *Loader) Load(ctx context.Context, rows <-chan *transformer.Row, sink Sink, table string, columns []string, capacity int) (Result, error) {
	if capacity <= 0 {
		return Result{}, fmt.Errorf("loader: capacity must be > 0, got %d", capacity)
	}
	if sink == nil {
		return Result{}, errors.New("loader: sink is required")
	}
	logf := l.logger()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		res      Result
		flushErr error
	)

	batchCh := make(chan batch, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for b := range batchCh {
			if flushErr != nil || ctx.Err() != nil {
				continue
			}

			start := time.Now()
			n, err := sink.InsertBatch(context.WithoutCancel(ctx), table, columns, b.rows)
			dur := time.Since(start).Truncate(time.Millisecond)
			if err != nil {
				flushErr = &BatchFlushError{Batch: b.n, Rows: len(b.rows), Committed: res.Rows, Err: err}
				metrics.RecordStep("flush", "error", dur)
				logf("stage=load batch=%d rows=%d status=error duration=%s err=%v", b.n, len(b.rows), dur, err)
				cancel(flushErr)
				if l.OnError != nil {
					l.OnError(flushErr)
				}
				continue
			}

			res.Rows += n
			res.Batches++
			metrics.RecordStep("flush", "ok", dur)
			metrics.RecordBatch(len(b.rows))
			metrics.RecordRows("inserted", n)
			logf("stage=load batch=%d rows=%d committed=%d duration=%s", b.n, n, res.Rows, dur)

			if l.OnFlush != nil {
				l.OnFlush(ctx, Flush{Batch: b.n, Rows: n, Committed: res.Rows, Duration: dur})
			}
		}
	}()

	handed := 0
	buf := make([][]any, 0, capacity)

	handoff := func() {
		if len(buf) == 0 {
			return
		}
		handed++
		out := batch{n: handed, rows: buf}
		buf = make([][]any, 0, capacity)

		select {
		case batchCh <- out:
		case <-ctx.Done():
		}
	}

	for r := range rows {
		if ctx.Err() != nil {
			r.Drop()
			continue
		}
		vals := make([]any, len(r.V))
		copy(vals, r.V)
		r.Free()

		buf = append(buf, vals)
		if len(buf) >= capacity {
			handoff()
		}
	}
	var streamErr error
	if ctx.Err() == nil {
		if l.StreamErr != nil {
			streamErr = l.StreamErr()
		}
		if streamErr == nil {
			handoff()
		} else if len(buf) > 0 {
			logf("stage=load discard rows=%d err=%v", len(buf), streamErr)
		}
	}

	close(batchCh)
	<-done

	if flushErr != nil {
		return res, flushErr
	}
	if streamErr != nil {
		return res, streamErr
	}
	if err := ctx.Err(); err != nil {
		return res, context.Cause(ctx)
	}
	return res, nil
}

func (l *Loader) logger() func(format string, v ...any) {
	if l.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Logger.Printf
}
