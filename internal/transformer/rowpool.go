// Package transformer provides the streaming, allocation-conscious row stages
// between the parser and the loader. This file defines a pooled Row type used
// across parser → coercer → loader to reduce heap churn and GC pressure.
package transformer

import "sync"

// Row is a pooled container holding one positional record.
//
// Between the parser and the coercer V holds raw string cells (nil for
// padded cells); after coercion it holds nil, int64, float64, time.Time or
// string values aligned to the table's columns.
//
// Ownership contract:
//   - Exactly one goroutine "owns" a Row at a time.
//   - A Row may be passed downstream via channels (ownership transfer).
//   - The final consumer (the loader) must call Free() AFTER it is fully
//     done with the Row (and anything referencing r.V).
//
// IMPORTANT:
//   - During ctx cancellation, drain-safe stages may still be running while the
//     parser is also unwinding. If canceled rows are returned to the pool, they
//     can be reused immediately and written concurrently with downstream reads.
//
// Therefore:
//   - Use Free() only on the normal path.
//   - Use Drop() on cancellation paths (no re-pooling; allow GC to reclaim).
type Row struct {
	V    []any
	Line int // 1-based record number in the source (header is 1)
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount. All elements are nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool.
// Call this ONLY when you're sure no other goroutine can observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row WITHOUT returning it to the pool.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
