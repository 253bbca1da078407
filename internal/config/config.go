// Package config defines the csvload pipeline configuration and loads it
// from YAML or JSON files.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is unset.
const (
	DefaultSampleLimit = 1000
	DefaultBatchSize   = 500
	DefaultDelimiter   = ","
	DefaultEncoding    = "utf-8"
)

// Pipeline is one import: a source file, how to parse it, and where to load it.
type Pipeline struct {
	Job      string   `json:"job,omitempty" yaml:"job,omitempty"`
	Source   Source   `json:"source" yaml:"source"`
	Parser   Parser   `json:"parser" yaml:"parser"`
	Storage  Storage  `json:"storage" yaml:"storage"`
	Runtime  Runtime  `json:"runtime" yaml:"runtime"`
	Progress Progress `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// Source locates the input. URL is a local path, a file:// URL or s3://bucket/key.
type Source struct {
	URL    string `json:"url" yaml:"url"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

type Parser struct {
	Delimiter         string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Encoding          string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	LazyQuotes        bool   `json:"lazy_quotes,omitempty" yaml:"lazy_quotes,omitempty"`
	SkipMalformedRows bool   `json:"skip_malformed_rows,omitempty" yaml:"skip_malformed_rows,omitempty"`
}

// Storage selects the sink. Either DSN or the connection components are set;
// BuildDSN renders the components for Kind.
type Storage struct {
	Kind  string `json:"kind" yaml:"kind"`
	Table string `json:"table" yaml:"table"`

	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     string `json:"port,omitempty" yaml:"port,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	Params   string `json:"params,omitempty" yaml:"params,omitempty"`
	SSLMode  string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`
	Encrypt  string `json:"encrypt,omitempty" yaml:"encrypt,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`

	// CreateDatabase defaults to true.
	CreateDatabase *bool `json:"create_database,omitempty" yaml:"create_database,omitempty"`
}

// ShouldCreateDatabase reports whether a missing database is created.
func (s Storage) ShouldCreateDatabase() bool {
	return s.CreateDatabase == nil || *s.CreateDatabase
}

type Runtime struct {
	SampleLimit int `json:"sample_limit,omitempty" yaml:"sample_limit,omitempty"`
	BatchSize   int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// Progress enables run progress snapshots in Redis when RedisAddr is set.
type Progress struct {
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	TTL       string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Load reads path (.yaml, .yml or .json), expands ${VAR} references in
// connection fields and applies defaults.
func Load(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, err
	}

	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".json", "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return Pipeline{}, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	p.expandEnv()
	p.ApplyDefaults()
	return p, nil
}

// LoadFromEnv loads a .env file from the working directory (if present)
// before calling Load, so ${VAR} references and DSN overrides can come from it.
func LoadFromEnv(path string) (Pipeline, error) {
	_ = godotenv.Load()
	return Load(path)
}

func (p *Pipeline) expandEnv() {
	s := &p.Storage
	for _, f := range []*string{&s.DSN, &s.Host, &s.Port, &s.User, &s.Password, &s.Database, &s.Params, &s.Path} {
		*f = os.ExpandEnv(*f)
	}
	p.Source.URL = os.ExpandEnv(p.Source.URL)
	p.Progress.RedisAddr = os.ExpandEnv(p.Progress.RedisAddr)
}

// ApplyDefaults fills unset fields. Load calls it; callers that build a
// Pipeline by hand should too.
func (p *Pipeline) ApplyDefaults() {
	if p.Runtime.SampleLimit == 0 {
		p.Runtime.SampleLimit = DefaultSampleLimit
	}
	if p.Runtime.BatchSize == 0 {
		p.Runtime.BatchSize = DefaultBatchSize
	}
	if p.Parser.Delimiter == "" {
		p.Parser.Delimiter = DefaultDelimiter
	}
	if p.Parser.Encoding == "" {
		p.Parser.Encoding = DefaultEncoding
	}
	p.Storage.Kind = NormalizeKind(p.Storage.Kind)
}

// NormalizeKind maps backend aliases to registered storage kinds.
func NormalizeKind(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "postgresql", "pg":
		return "postgres"
	case "sqlserver":
		return "mssql"
	case "sqlite3":
		return "sqlite"
	default:
		return s
	}
}

// DelimiterRune returns the configured delimiter; "\t" and "tab" mean a tab.
func (p Parser) DelimiterRune() rune {
	switch p.Delimiter {
	case "", ",":
		return ','
	case `\t`, "tab":
		return '\t'
	}
	return []rune(p.Delimiter)[0]
}
