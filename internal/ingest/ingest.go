// Package ingest runs one import end to end.
//
// A run reads its source twice. Pass 1 reads the header and a bounded sample
// to infer column names and types; the database and table are created from
// that. Pass 2 re-opens the source and streams every record through
// parse → coerce → batch load. Only the sample is held in memory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"csvload/internal/config"
	"csvload/internal/datasource"
	"csvload/internal/loader"
	"csvload/internal/metrics"
	csvparser "csvload/internal/parser/csv"
	"csvload/internal/probe"
	"csvload/internal/progress"
	"csvload/internal/schema"
	"csvload/internal/storage"
	"csvload/internal/transformer"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Report summarizes a run. Run returns it on failure too, with the rows
// committed before the failure.
type Report struct {
	RunID        string
	Database     string
	Table        string
	Columns      []schema.ColumnSpec
	SampledRows  int
	RowsInserted int64
	Batches      int
	SkippedRows  int64
	Duration     time.Duration
}

// Runner wires the pipeline stages. The factory fields are seams for tests.
type Runner struct {
	Logger Logger

	// DSN, when set, overrides every DSN source in the pipeline config.
	DSN string

	// OnFlush is called after every committed batch.
	OnFlush func(f loader.Flush)

	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	OpenSource    func(ctx context.Context, url, region string) (datasource.Source, error)
	NewProgress   func(ctx context.Context, cfg config.Progress) (progress.Tracker, error)
	NewRunID      func() string
}

// NewDefaultRunner returns a Runner backed by the storage registry, the
// datasource router and Redis progress (when configured).
func NewDefaultRunner() *Runner {
	return &Runner{
		NewRepository: storage.New,
		OpenSource:    datasource.FromURL,
		NewProgress:   newProgress,
		NewRunID:      uuid.NewString,
	}
}

func newProgress(ctx context.Context, cfg config.Progress) (progress.Tracker, error) {
	if cfg.RedisAddr == "" {
		return progress.Nop{}, nil
	}
	var ttl time.Duration
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("progress ttl: %w", err)
		}
		ttl = d
	}
	return progress.NewRedis(ctx, cfg.RedisAddr, ttl)
}

// Run imports p.Source into p.Storage.Table.
func (r *Runner) Run(ctx context.Context, p config.Pipeline) (rep Report, err error) {
	start := time.Now()
	logf := r.logger()

	p.ApplyDefaults()
	for _, iss := range config.ValidatePipeline(p) {
		if iss.Severity == config.SeverityError {
			return Report{}, fmt.Errorf("config %s: %s", iss.Path, iss.Message)
		}
	}

	rep = Report{RunID: r.runID(), Table: p.Storage.Table}
	defer func() { rep.Duration = time.Since(start).Truncate(time.Millisecond) }()

	kind := p.Storage.Kind
	dsn, err := config.ResolveDSN(p.Storage, r.DSN)
	if err != nil {
		return rep, &SinkConnectionError{Kind: kind, Err: err}
	}
	// The resolved DSN already carries DSN_DB and friends, so its database
	// wins over the config file's.
	rep.Database = config.DatabaseFromDSN(kind, dsn)
	if rep.Database == "" {
		rep.Database = p.Storage.Database
	}

	// Connect before inference so a bad DSN fails fast.
	stepStart := time.Now()
	repo, err := r.NewRepository(ctx, storage.Config{
		Kind:           kind,
		DSN:            dsn,
		Database:       rep.Database,
		CreateDatabase: p.Storage.ShouldCreateDatabase(),
	})
	if err != nil {
		metrics.RecordStep("connect", "error", time.Since(stepStart))
		return rep, &SinkConnectionError{Kind: kind, Err: err}
	}
	defer repo.Close()
	metrics.RecordStep("connect", "ok", time.Since(stepStart))
	logf("stage=connect ok kind=%s duration=%s", kind, durMS(stepStart))

	src, err := r.OpenSource(ctx, p.Source.URL, p.Source.Region)
	if err != nil {
		return rep, &SourceError{Path: p.Source.URL, Err: err}
	}

	csvOpts := csvparser.Options{
		Delimiter:     p.Parser.DelimiterRune(),
		Encoding:      p.Parser.Encoding,
		LazyQuotes:    p.Parser.LazyQuotes,
		SkipMalformed: p.Parser.SkipMalformedRows,
	}

	// Pass 1: header, sample, inference.
	stepStart = time.Now()
	res, err := r.sample(ctx, src, csvOpts, p.Runtime.SampleLimit)
	if err != nil {
		metrics.RecordStep("sample", "error", time.Since(stepStart))
		return rep, err
	}
	rep.Columns = res.Columns
	rep.SampledRows = res.SampledRows
	metrics.RecordStep("sample", "ok", time.Since(stepStart))
	metrics.RecordRows("sampled", int64(res.SampledRows))
	logf("stage=sample ok rows=%d columns=%d duration=%s", res.SampledRows, len(res.Columns), durMS(stepStart))

	stepStart = time.Now()
	if err := repo.EnsureDatabase(ctx); err != nil {
		metrics.RecordStep("ddl", "error", time.Since(stepStart))
		return rep, &SinkConnectionError{Kind: kind, Err: err}
	}
	spec := schema.BuildTable(p.Storage.Table, res.Columns)
	if err := repo.EnsureTable(ctx, spec); err != nil {
		metrics.RecordStep("ddl", "error", time.Since(stepStart))
		return rep, &SchemaError{Table: p.Storage.Table, Err: err}
	}
	metrics.RecordStep("ddl", "ok", time.Since(stepStart))
	logf("stage=ddl ok database=%s table=%s duration=%s", rep.Database, spec.Name, durMS(stepStart))

	tracker := r.progress(ctx, p.Progress, logf)
	defer func() { _ = tracker.Close() }()

	// Pass 2: stream everything.
	stepStart = time.Now()
	err = r.load(ctx, src, csvOpts, res.Columns, repo, p, tracker, &rep)
	status := progress.StatusDone
	if err != nil {
		status = progress.StatusFailed
		metrics.RecordStep("load", "error", time.Since(stepStart))
	} else {
		metrics.RecordStep("load", "ok", time.Since(stepStart))
		logf("stage=load ok rows=%d batches=%d skipped=%d duration=%s", rep.RowsInserted, rep.Batches, rep.SkippedRows, durMS(stepStart))
	}
	metrics.RecordRows("skipped", rep.SkippedRows)

	snap := progress.Snapshot{
		RunID:        rep.RunID,
		Table:        rep.Table,
		Status:       status,
		RowsInserted: rep.RowsInserted,
		Batches:      rep.Batches,
	}
	if err != nil {
		snap.Error = err.Error()
	}
	if perr := tracker.Update(context.WithoutCancel(ctx), snap); perr != nil {
		logf("stage=progress status=error err=%v", perr)
	}
	return rep, err
}

func (r *Runner) sample(ctx context.Context, src datasource.Source, opts csvparser.Options, limit int) (probe.Result, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return probe.Result{}, &SourceError{Path: src.Name(), Err: err}
	}
	defer rc.Close()

	logf := r.logger()
	res, err := probe.Sample(ctx, rc, probe.Options{
		SampleLimit: limit,
		CSV:         opts,
		OnSkip: func(line int, err error) {
			logf("stage=sample skip line=%d err=%v", line, err)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, &SourceError{Path: src.Name(), Err: err}
	}
	return res, nil
}

// load runs parse → coerce → loader over a fresh reader of src and records
// the outcome in rep.
func (r *Runner) load(
	ctx context.Context,
	src datasource.Source,
	opts csvparser.Options,
	cols []schema.ColumnSpec,
	repo storage.Repository,
	p config.Pipeline,
	tracker progress.Tracker,
	rep *Report,
) error {
	logf := r.logger()

	rc, err := src.Open(ctx)
	if err != nil {
		return &SourceError{Path: src.Name(), Err: err}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var skipped atomic.Int64
	onSkip := func(line int, err error) {
		skipped.Add(1)
		logf("stage=parse skip line=%d err=%v", line, err)
	}

	raw := make(chan *transformer.Row, 256)
	typed := make(chan *transformer.Row, 256)

	var (
		wg       sync.WaitGroup
		parseErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(raw)
		// A parse error ends the stream without canceling, so batches of
		// earlier records still flush.
		if err := csvparser.StreamRows(ctx, rc, len(cols), opts, raw, onSkip); err != nil {
			parseErr = err
		}
	}()
	go func() {
		defer wg.Done()
		defer close(typed)
		transformer.CoerceLoopRows(ctx, schema.Types(cols), raw, typed, func(line int, reason string) {
			skipped.Add(1)
			logf("stage=coerce skip line=%d reason=%s", line, reason)
		})
	}()

	ld := &loader.Loader{
		Logger:    r.Logger,
		OnError:   func(err error) { cancel(err) },
		StreamErr: func() error { return parseErr },
		OnFlush: func(fctx context.Context, f loader.Flush) {
			if r.OnFlush != nil {
				r.OnFlush(f)
			}
			err := tracker.Update(fctx, progress.Snapshot{
				RunID:        rep.RunID,
				Table:        rep.Table,
				Status:       progress.StatusRunning,
				RowsInserted: f.Committed,
				Batches:      f.Batch,
			})
			if err != nil {
				logf("stage=progress status=error err=%v", err)
			}
		},
	}
	res, loadErr := ld.Load(ctx, typed, repo, p.Storage.Table, schema.Names(cols), p.Runtime.BatchSize)
	cancel(nil)
	wg.Wait()

	rep.RowsInserted = res.Rows
	rep.Batches = res.Batches
	rep.SkippedRows = skipped.Load()

	var flushErr *loader.BatchFlushError
	switch {
	case errors.As(loadErr, &flushErr):
		return flushErr
	case parseErr != nil && !errors.Is(parseErr, context.Canceled):
		return &SourceError{Path: src.Name(), Err: parseErr}
	case loadErr != nil:
		return loadErr
	}
	return nil
}

func (r *Runner) progress(ctx context.Context, cfg config.Progress, logf func(string, ...any)) progress.Tracker {
	if r.NewProgress == nil {
		return progress.Nop{}
	}
	t, err := r.NewProgress(ctx, cfg)
	if err != nil {
		logf("stage=progress status=disabled err=%v", err)
		return progress.Nop{}
	}
	return t
}

func (r *Runner) runID() string {
	if r.NewRunID == nil {
		return uuid.NewString()
	}
	return r.NewRunID()
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return r.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
