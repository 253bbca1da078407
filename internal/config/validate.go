package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Severity classifies a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var supportedKinds = map[string]bool{"postgres": true, "mysql": true, "mssql": true, "sqlite": true}

// ValidatePipeline checks p after defaults are applied and returns every
// problem found. Errors block a run; warnings do not.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Source.URL) == "" {
		add(SeverityError, "source.url", "is required")
	}

	kind := NormalizeKind(p.Storage.Kind)
	switch {
	case kind == "":
		add(SeverityError, "storage.kind", "is required (postgres|mysql|mssql|sqlite)")
	case !supportedKinds[kind]:
		add(SeverityError, "storage.kind", "unsupported kind %q", p.Storage.Kind)
	}
	if strings.TrimSpace(p.Storage.Table) == "" {
		add(SeverityError, "storage.table", "is required")
	}
	if kind == "mssql" && p.Storage.DSN != "" && !strings.HasPrefix(p.Storage.DSN, "sqlserver://") {
		add(SeverityError, "storage.dsn", "mssql dsn must be a sqlserver:// URL")
	}
	if p.Storage.DSN != "" && p.Storage.Host != "" {
		add(SeverityWarning, "storage.host", "ignored because storage.dsn is set")
	}
	if kind != "" && kind != "sqlite" && p.Storage.DSN == "" && p.Storage.Database == "" {
		add(SeverityWarning, "storage.database", "not set; the server default database is used")
	}

	if d := p.Parser.Delimiter; d != "" && d != `\t` && d != "tab" {
		if utf8.RuneCountInString(d) != 1 {
			add(SeverityError, "parser.delimiter", "must be a single character, got %q", d)
		} else if r := []rune(d)[0]; r == '"' || r == '\r' || r == '\n' {
			add(SeverityError, "parser.delimiter", "invalid delimiter %q", d)
		}
	}

	if p.Runtime.BatchSize < 0 {
		add(SeverityError, "runtime.batch_size", "must be > 0, got %d", p.Runtime.BatchSize)
	}
	if p.Runtime.SampleLimit < 0 {
		add(SeverityWarning, "runtime.sample_limit", "negative value samples every row in pass 1")
	}

	if p.Progress.TTL != "" {
		if d, err := time.ParseDuration(p.Progress.TTL); err != nil || d <= 0 {
			add(SeverityError, "progress.ttl", "must be a positive duration, got %q", p.Progress.TTL)
		}
		if p.Progress.RedisAddr == "" {
			add(SeverityWarning, "progress.ttl", "ignored without progress.redis_addr")
		}
	}

	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
