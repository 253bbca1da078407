// Package csv reads delimited text into raw records for sampling and into
// pooled rows for loading.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"csvload/internal/transformer"
)

// ErrNoHeader is returned when the source has no header record.
var ErrNoHeader = errors.New("csv: source is empty (no header row)")

// Options control record parsing.
type Options struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// Encoding names the source text encoding; see Decode.
	Encoding string
	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool
	// SkipMalformed reports unparsable records via onErr and continues
	// instead of failing the read.
	SkipMalformed bool
}

// RecordError describes a record that could not be parsed or decoded.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string { return fmt.Sprintf("record %d: %v", e.Line, e.Err) }
func (e *RecordError) Unwrap() error { return e.Err }

var errInvalidUTF8 = errors.New("invalid UTF-8 in field")

// Reader yields records after the header. Records are reused between calls
// to Next; callers must copy what they keep.
type Reader struct {
	cr   *csv.Reader
	opt  Options
	line int
}

// NewReader decodes r per opt.Encoding and configures an encoding/csv reader.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	dec, err := Decode(r, opt.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(dec)
	cr.Comma = opt.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // alignment is handled by the caller

	return &Reader{cr: cr, opt: opt}, nil
}

// Header reads the first record. The returned slice is owned by the caller.
func (r *Reader) Header() ([]string, error) {
	r.line++
	hdr, err := r.cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, &RecordError{Line: r.line, Err: err}
	}
	if err := validUTF8(hdr); err != nil {
		return nil, &RecordError{Line: r.line, Err: err}
	}

	out := make([]string, len(hdr))
	copy(out, hdr)
	if len(out) > 0 {
		out[0] = strings.TrimPrefix(out[0], "\uFEFF")
	}
	return out, nil
}

// Next returns the next record and its 1-based record number (the header
// is record 1). It returns io.EOF at the end of input. Malformed records
// are passed to onErr and skipped when Options.SkipMalformed is set.
// Blank lines outside quoted fields are not records and are skipped.
func (r *Reader) Next(onErr func(line int, err error)) ([]string, int, error) {
	for {
		r.line++
		rec, err := r.cr.Read()
		if err == io.EOF {
			return nil, r.line, io.EOF
		}
		if err == nil {
			err = validUTF8(rec)
		}
		if err == nil {
			return rec, r.line, nil
		}

		if !r.opt.SkipMalformed {
			return nil, r.line, &RecordError{Line: r.line, Err: err}
		}
		if onErr != nil {
			onErr(r.line, err)
		}
	}
}

func validUTF8(rec []string) error {
	for _, f := range rec {
		if !utf8.ValidString(f) {
			return errInvalidUTF8
		}
	}
	return nil
}

// StreamRows skips the header and streams every remaining record into pooled
// *transformer.Row values of exactly width cells. Short records are padded
// with nil and excess trailing cells are dropped. Cells are raw strings.
//
// NOTE on cancellation:
// On ctx cancellation we must NOT return in-flight rows to the pool (Drop instead),
// otherwise the parser can reuse them immediately while downstream drain-safe
// stages still read them.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	width int,
	opt Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	r, err := NewReader(src, opt)
	if err != nil {
		return err
	}
	if _, err := r.Header(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, line, err := r.Next(onErr)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		row := transformer.GetRow(width)
		row.Line = line
		for i := 0; i < width && i < len(rec); i++ {
			row.V[i] = rec[i]
		}

		select {
		case out <- row:
		case <-ctx.Done():
			// IMPORTANT: do not re-pool on cancellation
			row.Drop()
			return ctx.Err()
		}
	}
}

// ReadSample reads the header and up to limit records (limit <= 0 means
// all). Records are copied and returned unaligned.
func ReadSample(src io.Reader, limit int, opt Options, onErr func(line int, err error)) ([]string, [][]string, error) {
	r, err := NewReader(src, opt)
	if err != nil {
		return nil, nil, err
	}
	hdr, err := r.Header()
	if err != nil {
		return nil, nil, err
	}

	rows := make([][]string, 0, 64)
	for limit <= 0 || len(rows) < limit {
		rec, _, err := r.Next(onErr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return hdr, rows, err
		}
		cp := make([]string, len(rec))
		copy(cp, rec)
		rows = append(rows, cp)
	}
	return hdr, rows, nil
}
