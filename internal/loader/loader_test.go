package loader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"csvload/internal/transformer"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][][]any
	ctxErrs []error

	// fail makes the n-th call (1-based) return err.
	fail int
	err  error

	// onInsert runs at the start of every call.
	onInsert func(call int)
}

func (f *fakeSink) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	f.mu.Lock()
	call := len(f.ctxErrs) + 1
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()

	if f.onInsert != nil {
		f.onInsert(call)
	}
	if call == f.fail {
		return 0, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, rows)
	return int64(len(rows)), nil
}

func feed(n int) <-chan *transformer.Row {
	ch := make(chan *transformer.Row)
	go func() {
		defer close(ch)
		for i := 0; i < n; i++ {
			r := transformer.GetRow(1)
			r.V[0] = int64(i)
			r.Line = i + 2
			ch <- r
		}
	}()
	return ch
}

func TestLoad_BatchCountAndSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rows     int
		capacity int
		want     []int
	}{
		{name: "empty", rows: 0, capacity: 3, want: nil},
		{name: "exact multiple", rows: 6, capacity: 3, want: []int{3, 3}},
		{name: "partial tail", rows: 7, capacity: 3, want: []int{3, 3, 1}},
		{name: "smaller than capacity", rows: 2, capacity: 500, want: []int{2}},
		{name: "capacity one", rows: 3, capacity: 1, want: []int{1, 1, 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := &fakeSink{}
			res, err := (&Loader{}).Load(context.Background(), feed(tt.rows), sink, "t", []string{"n"}, tt.capacity)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if res.Rows != int64(tt.rows) || res.Batches != len(tt.want) {
				t.Fatalf("res=%+v, want rows=%d batches=%d", res, tt.rows, len(tt.want))
			}
			if len(sink.batches) != len(tt.want) {
				t.Fatalf("batches=%d, want %d", len(sink.batches), len(tt.want))
			}
			for i, b := range sink.batches {
				if len(b) != tt.want[i] {
					t.Fatalf("batch %d size=%d, want %d", i+1, len(b), tt.want[i])
				}
			}
		})
	}
}

func TestLoad_PreservesSourceOrder(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	if _, err := (&Loader{}).Load(context.Background(), feed(10), sink, "t", []string{"n"}, 3); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var want int64
	for _, b := range sink.batches {
		for _, row := range b {
			if row[0] != want {
				t.Fatalf("row=%v, want %d", row[0], want)
			}
			want++
		}
	}
	if want != 10 {
		t.Fatalf("rows seen=%d, want 10", want)
	}
}

func TestLoad_OnFlushReportsRunningTotal(t *testing.T) {
	t.Parallel()

	var got []Flush
	l := &Loader{OnFlush: func(_ context.Context, f Flush) { got = append(got, f) }}
	if _, err := l.Load(context.Background(), feed(5), &fakeSink{}, "t", []string{"n"}, 2); err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []struct {
		batch       int
		rows, total int64
	}{{1, 2, 2}, {2, 2, 4}, {3, 1, 5}}
	if len(got) != len(want) {
		t.Fatalf("flushes=%d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Batch != w.batch || got[i].Rows != w.rows || got[i].Committed != w.total {
			t.Fatalf("flush %d=%+v, want %+v", i, got[i], w)
		}
	}
}

func TestLoad_FlushFailureKeepsEarlierBatches(t *testing.T) {
	t.Parallel()

	boom := errors.New("duplicate key")
	sink := &fakeSink{fail: 2, err: boom}
	var reported error
	l := &Loader{OnError: func(err error) { reported = err }}
	res, err := l.Load(context.Background(), feed(10), sink, "t", []string{"n"}, 3)

	var fe *BatchFlushError
	if !errors.As(err, &fe) {
		t.Fatalf("err=%v, want *BatchFlushError", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err does not wrap sink error: %v", err)
	}
	if reported != err {
		t.Fatalf("OnError got %v, want %v", reported, err)
	}
	if fe.Batch != 2 || fe.Rows != 3 || fe.Committed != 3 {
		t.Fatalf("flush error=%+v", fe)
	}
	if res.Rows != 3 || res.Batches != 1 {
		t.Fatalf("res=%+v, want rows=3 batches=1", res)
	}
	if len(sink.ctxErrs) != 2 {
		t.Fatalf("InsertBatch calls=%d, want 2", len(sink.ctxErrs))
	}
}

func TestLoad_CancelStopsBetweenFlushes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &fakeSink{onInsert: func(call int) {
		if call == 1 {
			cancel()
		}
	}}
	res, err := (&Loader{}).Load(ctx, feed(100), sink, "t", []string{"n"}, 10)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if res.Rows != 10 || res.Batches != 1 {
		t.Fatalf("res=%+v, want the in-flight batch only", res)
	}
	if len(sink.ctxErrs) != 1 {
		t.Fatalf("InsertBatch calls=%d, want 1", len(sink.ctxErrs))
	}
	if sink.ctxErrs[0] != nil {
		t.Fatalf("in-flight flush saw canceled ctx: %v", sink.ctxErrs[0])
	}
}

func TestLoad_CanceledBeforeStartFlushesNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &fakeSink{}
	res, err := (&Loader{}).Load(ctx, feed(7), sink, "t", []string{"n"}, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if res.Rows != 0 || len(sink.ctxErrs) != 0 {
		t.Fatalf("res=%+v calls=%d, want nothing flushed", res, len(sink.ctxErrs))
	}
}

func TestLoad_StreamErrorFlushesCompleteBatchesAndDropsTail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rows int
		want []int
	}{
		{name: "error on batch boundary", rows: 4, want: []int{2, 2}},
		{name: "partial tail discarded", rows: 5, want: []int{2, 2}},
		{name: "error before first batch", rows: 1, want: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bad := errors.New("bare quote on line 7")
			sink := &fakeSink{}
			l := &Loader{StreamErr: func() error { return bad }}

			res, err := l.Load(context.Background(), feed(tt.rows), sink, "t", []string{"n"}, 2)
			if !errors.Is(err, bad) {
				t.Fatalf("err=%v, want %v", err, bad)
			}
			var sizes []int
			for _, b := range sink.batches {
				sizes = append(sizes, len(b))
			}
			if len(sizes) != len(tt.want) {
				t.Fatalf("batch sizes=%v, want %v", sizes, tt.want)
			}
			for i := range sizes {
				if sizes[i] != tt.want[i] {
					t.Fatalf("batch sizes=%v, want %v", sizes, tt.want)
				}
			}
			if res.Rows != int64(2*len(tt.want)) || res.Batches != len(tt.want) {
				t.Fatalf("res=%+v", res)
			}
		})
	}
}

func TestLoad_NilStreamErrorFlushesTail(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	l := &Loader{StreamErr: func() error { return nil }}
	res, err := l.Load(context.Background(), feed(5), sink, "t", []string{"n"}, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Rows != 5 || res.Batches != 3 {
		t.Fatalf("res=%+v, want 5 rows in 3 batches", res)
	}
}

func TestLoad_RejectsBadArguments(t *testing.T) {
	t.Parallel()

	if _, err := (&Loader{}).Load(context.Background(), nil, &fakeSink{}, "t", nil, 0); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
	if _, err := (&Loader{}).Load(context.Background(), nil, nil, "t", nil, 1); err == nil {
		t.Fatalf("expected error for nil sink")
	}
}
