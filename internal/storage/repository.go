package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - Database overrides the database named inside DSN. When both are empty the
//     backend uses whatever database the DSN connects to by default.
//   - CreateDatabase controls whether EnsureDatabase issues a create-if-absent
//     statement before switching to Database.
type Config struct {
	Kind           string
	DSN            string
	Database       string
	CreateDatabase bool
}

// Repository is the backend-agnostic sink used by the ingestion pipeline.
//
// The pipeline issues exactly three kinds of statements against it:
// create database if absent, create table if absent, and parameterized bulk
// inserts. Each backend implements those in its own idiomatic way (Postgres
// COPY, MySQL multi-row VALUES, SQL Server OBJECT_ID guards, etc).
type Repository interface {
	// Close releases backend resources. Treat Close as "call once".
	Close()

	// EnsureDatabase creates the configured database when it is missing (and
	// Config.CreateDatabase is set), then points the repository at it.
	// Backends without a database concept (sqlite) treat this as a no-op.
	EnsureDatabase(ctx context.Context) error

	// EnsureTable creates the table if it does not exist. An existing table
	// with the same name is reused as-is.
	EnsureTable(ctx context.Context, t TableSpec) error

	// InsertBatch inserts rows in one transaction: either all rows are
	// committed or none are. rows must align with columns.
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Factory constructs a Repository for a registered backend kind.
//
// Factories must verify connectivity (ping) before returning so that callers
// can fail fast before doing any other work.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "mysql").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
