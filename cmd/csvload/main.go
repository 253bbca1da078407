// Command csvload infers a table schema from a delimited file and bulk loads
// the file into a relational database.
//
// A run reads the source twice: a bounded sample (default 1000 records)
// decides column names and types, then every record is streamed into the
// created table in transactional batches.
//
// Configuration comes from a YAML or JSON pipeline file (-config), a .env file
// in the working directory, environment variables and flags. Flags win:
//
//	csvload -config pipeline.yaml
//	csvload -source movies.csv -kind postgres -table movies -dsn postgresql://...
//
// DSN precedence: -dsn, then CSVLOAD_DSN, then storage.dsn, then the
// storage.host/port/... components overridden by DSN_HOST, DSN_PORT, DSN_USER,
// DSN_PASSWORD, DSN_DB, DSN_PARAMS, DSN_SSLMODE, DSN_ENCRYPT or DSN_SQLITE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"csvload/internal/config"
	"csvload/internal/ingest"
	"csvload/internal/loader"
	"csvload/internal/metrics"
	"csvload/internal/metrics/datadog"

	// register all backends with the storage factory.
	_ "csvload/internal/storage/all"
)

type runner interface {
	Run(ctx context.Context, p config.Pipeline) (ingest.Report, error)
}

// metricsBackend is the part of a metrics backend main owns: shutdown.
type metricsBackend interface {
	Close() error
}

// appDeps are the seams runMain depends on.
type appDeps struct {
	loadConfig  func(path string) (config.Pipeline, error)
	newRunner   func(dsn string, logger ingest.Logger, onFlush func(loader.Flush)) runner
	initMetrics func(ctx context.Context, jobName, backendName string) (func(), error)
}

var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

func defaultDeps() appDeps {
	return appDeps{
		loadConfig: config.LoadFromEnv,
		newRunner: func(dsn string, logger ingest.Logger, onFlush func(loader.Flush)) runner {
			r := ingest.NewDefaultRunner()
			r.DSN = dsn
			r.Logger = logger
			r.OnFlush = onFlush
			return r
		},
		initMetrics: initMetrics,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain is main without process globals. It returns the exit code:
// 0 on success, 1 on config or run failure, 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("csvload", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath     = fs.String("config", "", "pipeline config path (.yaml, .yml or .json)")
		validate    = fs.Bool("validate", false, "validate the configuration and exit")
		metricsFlag = fs.String("metrics-backend", "", "metrics backend: none|datadog (default env METRICS_BACKEND, else none)")
		verbose     = fs.Bool("v", false, "enable verbose logs and per-batch progress")

		source      = fs.String("source", "", "source file path, file:// or s3://bucket/key URL (overrides source.url)")
		kind        = fs.String("kind", "", "storage backend: postgres|mysql|mssql|sqlite (overrides storage.kind)")
		table       = fs.String("table", "", "target table (overrides storage.table)")
		dsn         = fs.String("dsn", "", "storage DSN (highest priority)")
		batchSize   = fs.Int("batch-size", 0, "rows per insert transaction (overrides runtime.batch_size)")
		sampleLimit = fs.Int("sample-limit", 0, "records sampled for inference; -1 samples all (overrides runtime.sample_limit)")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if strings.TrimSpace(*cfgPath) == "" && strings.TrimSpace(*source) == "" {
		fmt.Fprintln(stderr, "usage: csvload -config pipeline.yaml | -source file.csv -kind postgres -table name [-dsn ...]")
		return 2
	}

	var p config.Pipeline
	if path := strings.TrimSpace(*cfgPath); path != "" {
		var err error
		if p, err = deps.loadConfig(path); err != nil {
			fmt.Fprintf(stderr, "load config: %v\n", err)
			return 1
		}
	}

	if *source != "" {
		p.Source.URL = *source
	}
	if *kind != "" {
		p.Storage.Kind = *kind
	}
	if *table != "" {
		p.Storage.Table = *table
	}
	if *dsn != "" {
		p.Storage.DSN = *dsn
	}
	if *batchSize != 0 {
		p.Runtime.BatchSize = *batchSize
	}
	if *sampleLimit != 0 {
		p.Runtime.SampleLimit = *sampleLimit
	}
	p.ApplyDefaults()

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	backendName := *metricsFlag
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	jobName := p.Job
	if jobName == "" {
		jobName = "csvload"
	}
	cleanup, err := deps.initMetrics(ctx, jobName, backendName)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	var (
		logger  ingest.Logger
		onFlush func(loader.Flush)
	)
	if *verbose {
		logger = log.New(stderr, "", log.LstdFlags)
		onFlush = func(f loader.Flush) {
			fmt.Fprintf(stdout, "Inserted %d rows...\n", f.Committed)
		}
	}

	start := time.Now()
	rep, err := deps.newRunner(*dsn, logger, onFlush).Run(ctx, p)
	if err != nil {
		fmt.Fprintf(stderr, "import failed: committed=%d: %v\n", rep.RowsInserted, err)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "interrupted")
		}
		return 1
	}

	fmt.Fprintf(stdout, "Import complete. Inserted %d rows into %s\n", rep.RowsInserted, qualified(rep.Database, rep.Table))
	if *verbose {
		logPrintf("run_id=%s batches=%d skipped=%d completed in %s",
			rep.RunID, rep.Batches, rep.SkippedRows, time.Since(start).Truncate(time.Millisecond))
	}
	return 0
}

func qualified(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}

// initMetrics installs the named metrics backend. The returned cleanup is
// never nil and flushes the backend.
func initMetrics(ctx context.Context, jobName, backendName string) (func(), error) {
	nop := func() {}

	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return nop, nil

	case "datadog", "dd":
		// Buffers and submits periodically; Close performs the final flush.
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return nop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return nop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}
