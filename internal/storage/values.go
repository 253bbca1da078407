package storage

import (
	"time"
)

// DateLayout is the ISO calendar-date form written by backends that store
// DATE values as text.
const DateLayout = "2006-01-02"

// FormatDate renders t as an ISO calendar date in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DateAsText returns v with time.Time values rendered via FormatDate.
// Other values are returned unchanged.
func DateAsText(v any) any {
	if t, ok := v.(time.Time); ok {
		return FormatDate(t)
	}
	return v
}

// RowsPerStatement returns how many rows of width columns fit in one
// statement when the backend allows at most maxParams bind parameters and
// maxRows row constructors (maxRows <= 0 means unlimited).
//
// The result is always at least 1 so that callers make progress even when a
// single row exceeds maxParams (the backend will reject that statement).
func RowsPerStatement(width, maxParams, maxRows int) int {
	if width <= 0 {
		return 1
	}
	n := maxParams / width
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ChunkRows splits rows into consecutive chunks of at most size rows.
// The chunks share the backing array of rows.
func ChunkRows(rows [][]any, size int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(rows)
	}
	out := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
