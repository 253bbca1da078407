package transformer

import (
	"context"
	"math"
	"strconv"
	"strings"

	"csvload/internal/schema"
)

// Coerce converts one raw cell to the value stored for a column of type tag.
//
// The value is trimmed first and an empty value is nil for every type. A
// value that does not parse as tag is also nil; Coerce never fails. DATE
// values become time.Time at UTC midnight and TEXT values stay trimmed strings.
func Coerce(tag schema.TypeTag, raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}

	switch tag {
	case schema.Integer:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case schema.Float:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil
		}
		return f
	case schema.Date:
		t, ok := schema.ParseDate(v)
		if !ok {
			return nil
		}
		return t
	default:
		return v
	}
}

// CoerceLoopRows converts each row from raw cells to typed values in place
// and forwards it. Rows must have len(types) cells; rows of any other width
// are handed to onReject and freed.
//
// On ctx cancellation remaining input is drained with Drop so that upstream
// stages can finish.
func CoerceLoopRows(
	ctx context.Context,
	types []schema.TypeTag,
	in <-chan *Row,
	out chan<- *Row,
	onReject func(line int, reason string),
) {
	for r := range in {
		// On cancellation: drain without re-pooling (prevents reuse races).
		select {
		case <-ctx.Done():
			if r != nil {
				r.Drop()
			}
			continue
		default:
		}

		if r == nil {
			continue
		}
		if len(r.V) != len(types) {
			if onReject != nil {
				onReject(r.Line, "coerce: row width does not match columns")
			}
			r.Free()
			continue
		}

		for i, tag := range types {
			s, ok := r.V[i].(string)
			if !ok {
				r.V[i] = nil
				continue
			}
			r.V[i] = Coerce(tag, s)
		}

		select {
		case out <- r:
		case <-ctx.Done():
			r.Drop()
		}
	}
}
