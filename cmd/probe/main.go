// Command probe samples a delimited file and reports the columns a csvload
// run would create, without touching a database.
//
// It reads the header and a bounded sample (default 1000 records), then
// prints one of:
//
//   - a column table (default),
//   - the inferred columns as JSON (-json), or
//   - a csvload pipeline config pointing at the file (-emit-config).
//
// # DSN in emitted configs
//
// The emitted config carries a storage DSN for -backend. Precedence:
//  1. -dsn flag
//  2. CSVLOAD_DSN env var
//  3. DSN_* component env vars over backend defaults
//
// so a config can target a real database without editing it by hand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"csvload/internal/config"
	"csvload/internal/datasource"
	csvparser "csvload/internal/parser/csv"
	"csvload/internal/probe"
	"csvload/internal/schema"
)

// columnsOutput is the -json document.
type columnsOutput struct {
	Source      string              `json:"source"`
	SampledRows int                 `json:"sampled_rows"`
	Columns     []schema.ColumnSpec `json:"columns"`
}

func main() {
	var (
		flagSource = flag.String("source", "", "path, file:// or s3://bucket/key URL of the CSV file")
		flagRegion = flag.String("region", "", "AWS region for s3:// sources")

		// Negative samples the whole file.
		flagSampleLimit = flag.Int("sample-limit", probe.DefaultSampleLimit, "records sampled for inference; -1 samples all")
		flagDelimiter   = flag.String("delimiter", ",", `field delimiter; "\t" or "tab" for TSV`)
		flagEncoding    = flag.String("encoding", "utf-8", "source text encoding")
		flagLazyQuotes  = flag.Bool("lazy-quotes", false, "accept bare quotes inside fields")
		flagSkipBad     = flag.Bool("skip-malformed", false, "skip malformed records instead of failing")

		flagJSON   = flag.Bool("json", false, "print inferred columns as JSON")
		flagPretty = flag.Bool("pretty", true, "pretty-print JSON output")

		flagEmit    = flag.Bool("emit-config", false, "print a csvload pipeline config instead of the column table")
		flagFormat  = flag.String("format", "yaml", "emitted config format: yaml|json")
		flagBackend = flag.String("backend", "postgres", "storage backend for -emit-config: postgres|mysql|mssql|sqlite")
		flagTable   = flag.String("table", "", "target table for -emit-config; defaults to the normalized file name")
		flagDSN     = flag.String("dsn", "", "storage DSN for -emit-config (highest priority)")
	)
	flag.Parse()

	if strings.TrimSpace(*flagSource) == "" {
		fmt.Fprintln(os.Stderr, "missing -source")
		flag.Usage()
		os.Exit(2)
	}
	if *flagJSON && *flagEmit {
		fmt.Fprintln(os.Stderr, "-json and -emit-config are mutually exclusive")
		os.Exit(2)
	}

	parser := config.Parser{Delimiter: *flagDelimiter, Encoding: *flagEncoding}
	if d := *flagDelimiter; d != `\t` && d != "tab" && utf8.RuneCountInString(d) != 1 {
		fmt.Fprintf(os.Stderr, "invalid -delimiter %q\n", d)
		os.Exit(2)
	}

	// Probing reads a bounded prefix; an unreachable source should fail fast.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := sample(ctx, *flagSource, *flagRegion, *flagSampleLimit, csvparser.Options{
		Delimiter:     parser.DelimiterRune(),
		Encoding:      *flagEncoding,
		LazyQuotes:    *flagLazyQuotes,
		SkipMalformed: *flagSkipBad,
	})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	switch {
	case *flagJSON:
		out := columnsOutput{Source: *flagSource, SampledRows: res.SampledRows, Columns: res.Columns}
		if err := writeJSON(out, *flagPretty); err != nil {
			log.Fatalf("encode: %v", err)
		}

	case *flagEmit:
		p, err := pipelineFor(*flagSource, *flagRegion, *flagBackend, *flagTable, *flagDSN, parser, *flagSampleLimit)
		if err != nil {
			log.Fatalf("emit config: %v", err)
		}
		p.Parser.LazyQuotes = *flagLazyQuotes
		p.Parser.SkipMalformedRows = *flagSkipBad
		if err := writeConfig(p, *flagFormat, *flagPretty); err != nil {
			log.Fatalf("emit config: %v", err)
		}

	default:
		if err := probe.RenderTable(os.Stdout, res); err != nil {
			log.Fatalf("render: %v", err)
		}
	}
}

func sample(ctx context.Context, rawURL, region string, limit int, opts csvparser.Options) (probe.Result, error) {
	src, err := datasource.FromURL(ctx, rawURL, region)
	if err != nil {
		return probe.Result{}, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return probe.Result{}, err
	}
	defer rc.Close()

	return probe.Sample(ctx, rc, probe.Options{
		SampleLimit: limit,
		CSV:         opts,
		OnSkip: func(line int, err error) {
			log.Printf("skip line=%d err=%v", line, err)
		},
	})
}

// pipelineFor builds the config a csvload run over rawURL would use.
func pipelineFor(rawURL, region, backend, table, dsn string, parser config.Parser, limit int) (config.Pipeline, error) {
	kind := config.NormalizeKind(backend)
	if table == "" {
		table = tableFromSource(rawURL)
	}

	storage := config.Storage{Kind: kind, Table: table}
	resolved, err := config.ResolveDSN(storage, dsn)
	if err != nil {
		return config.Pipeline{}, err
	}
	storage.DSN = resolved

	p := config.Pipeline{
		Job:     table,
		Source:  config.Source{URL: rawURL, Region: region},
		Parser:  parser,
		Storage: storage,
		Runtime: config.Runtime{SampleLimit: limit, BatchSize: config.DefaultBatchSize},
	}
	for _, iss := range config.ValidatePipeline(p) {
		if iss.Severity == config.SeverityError {
			return config.Pipeline{}, fmt.Errorf("%s: %s", iss.Path, iss.Message)
		}
	}
	return p, nil
}

// tableFromSource derives a table name from the last path segment, without
// its extension.
func tableFromSource(rawURL string) string {
	base := filepath.Base(strings.TrimPrefix(rawURL, "file://"))
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return probe.NormalizeIdentifier(base, 0)
}

func writeJSON(v any, pretty bool) error {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeConfig(p config.Pipeline, format string, pretty bool) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return writeJSON(p, pretty)
	case "yaml", "yml", "":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown -format %q (want yaml|json)", format)
	}
}
