// Package probe implements the first ingestion pass: header normalization,
// bounded sampling and per-column type inference.
//
// Design constraints:
//   - Sampling must be bounded in memory: at most SampleLimit records are
//     retained.
//   - Inference never fails; unparsable or mixed data degrades to TEXT.
//   - Only source problems (no header, undecodable bytes, malformed records
//     when they are not skipped) are reported as errors.
package probe

import (
	"context"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	csvparser "csvload/internal/parser/csv"
	"csvload/internal/schema"
)

// DefaultSampleLimit is the number of records sampled when none is configured.
const DefaultSampleLimit = 1000

// Options control sampling.
type Options struct {
	// SampleLimit bounds the records read for inference. Zero means
	// DefaultSampleLimit; negative means the whole source.
	SampleLimit int
	CSV         csvparser.Options
	// OnSkip is called for malformed records skipped under CSV.SkipMalformed.
	OnSkip func(line int, err error)
}

// Result is the outcome of one sampling pass.
type Result struct {
	// Headers is the raw header row.
	Headers []string
	// Columns holds one spec per header cell, in order.
	Columns []schema.ColumnSpec
	// SampledRows is the number of records inspected.
	SampledRows int
	// NonEmpty counts non-empty sampled values per column.
	NonEmpty []int
}

// Sample reads the header and a bounded sample from r and infers each
// column's name and type.
func Sample(ctx context.Context, r io.Reader, opt Options) (Result, error) {
	limit := opt.SampleLimit
	if limit == 0 {
		limit = DefaultSampleLimit
	}
	if limit < 0 {
		limit = 0
	}

	headers, rows, err := csvparser.ReadSample(r, limit, opt.CSV, opt.OnSkip)
	if err != nil {
		return Result{Headers: headers}, err
	}

	cols, nonEmpty, err := Infer(ctx, headers, rows)
	if err != nil {
		return Result{Headers: headers}, err
	}
	return Result{Headers: headers, Columns: cols, SampledRows: len(rows), NonEmpty: nonEmpty}, nil
}

// Infer builds column specs from a header and sampled records. Columns are
// independent, so each is inferred in its own goroutine. Records shorter
// than the header contribute empty values for the missing cells.
func Infer(ctx context.Context, headers []string, rows [][]string) ([]schema.ColumnSpec, []int, error) {
	names := NormalizeHeader(headers)
	cols := make([]schema.ColumnSpec, len(headers))
	nonEmpty := make([]int, len(headers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range headers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var t Tally
			for _, rec := range rows {
				if i < len(rec) {
					t.Add(Classify(rec[i]))
				}
			}
			nonEmpty[i] = t.NonEmpty()
			cols[i] = schema.ColumnSpec{
				Position: i,
				RawName:  headers[i],
				Name:     names[i],
				Type:     t.Type(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cols, nonEmpty, nil
}
