package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvload/internal/storage"
)

// maintenanceDB is the database connected to while the target database
// does not exist yet.
const maintenanceDB = "postgres"

// sqlstate invalid_catalog_name: database does not exist.
const codeInvalidCatalog = "3D000"

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Create-if-absent for the target database (via pg_database lookup)
  - CREATE TABLE IF NOT EXISTS
  - Batched inserts using COPY inside a single transaction per batch
*/
type Repo struct {
	cfg  *pgxpool.Config
	pool *pgxpool.Pool

	database string
	create   bool

	// pending is true while the pool points at maintenanceDB because the
	// target database did not exist at connect time.
	pending bool
}

// New creates a new Postgres-backed Repo and verifies connectivity.
//
// If the target database does not exist and cfg.CreateDatabase is set, the
// repo connects to the maintenance database instead; EnsureDatabase then
// creates the target and reconnects.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.Database != "" {
		pcfg.ConnConfig.Database = cfg.Database
	}

	r := &Repo{
		cfg:      pcfg,
		database: pcfg.ConnConfig.Database,
		create:   cfg.CreateDatabase,
	}

	pool, err := connect(ctx, pcfg)
	if err == nil {
		r.pool = pool
		return r, nil
	}

	var pgErr *pgconn.PgError
	if !cfg.CreateDatabase || !errors.As(err, &pgErr) || pgErr.Code != codeInvalidCatalog {
		return nil, err
	}

	admin := pcfg.Copy()
	admin.ConnConfig.Database = maintenanceDB
	pool, err = connect(ctx, admin)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	r.pending = true
	return r, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// EnsureDatabase creates the target database when it was missing at connect
// time and reconnects to it. It is a no-op when already connected to the
// target.
func (r *Repo) EnsureDatabase(ctx context.Context) error {
	if !r.pending {
		return nil
	}
	if strings.TrimSpace(r.database) == "" {
		return fmt.Errorf("postgres: database name is empty")
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, existsDatabaseSQL, r.database).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: lookup database %s: %w", r.database, err)
	}
	if !exists {
		if _, err := r.pool.Exec(ctx, buildCreateDatabaseSQL(r.database)); err != nil {
			return fmt.Errorf("postgres: create database %s: %w", r.database, err)
		}
	}

	pool, err := connect(ctx, r.cfg)
	if err != nil {
		return fmt.Errorf("postgres: connect %s: %w", r.database, err)
	}
	r.pool.Close()
	r.pool = pool
	r.pending = false
	return nil
}

const existsDatabaseSQL = `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`

func buildCreateDatabaseSQL(name string) string {
	return fmt.Sprintf(`CREATE DATABASE %s;`, pgIdent(name))
}

// EnsureTable creates the schema (for qualified names) and the table.
func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(t)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", t.Name, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// InsertBatch copies rows into table within one transaction.
//
// COPY has no bind-parameter limit, so the whole batch goes in one call.
func (r *Repo) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, copyIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return n, nil
}

// buildCreateSQL generates DDL for the table.
//
// Outputs:
//   - schemaSQL: optional CREATE SCHEMA statement when t.Name is schema-qualified.
//   - tableSQL:  CREATE TABLE IF NOT EXISTS for the table.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}

	schema, _ := splitQualifiedName(t.Name)
	if schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	cols, err := buildColumnDefs(t)
	if err != nil {
		return "", "", err
	}

	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		pgTableIdent(t.Name), strings.Join(cols, ", "))
	return schemaSQL, tableSQL, nil
}

// buildColumnDefs returns the list of "<col> <type> ..." definitions.
//
// Primary key handling:
//   - If PrimaryKeySpec is provided, we create it as the first column.
//   - The primary key column is not expected to be present in t.Columns.
func buildColumnDefs(t storage.TableSpec) ([]string, error) {
	cols := make([]string, 0, len(t.Columns)+1)

	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		pkType := strings.TrimSpace(t.PrimaryKey.Type)
		if pk == "" || pkType == "" {
			return nil, fmt.Errorf("table %s: primary_key.name and primary_key.type are required", t.Name)
		}
		cols = append(cols, fmt.Sprintf(`%s %s PRIMARY KEY`, pgIdent(pk), columnType(pkType)))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: no columns", t.Name)
	}
	return cols, nil
}

// buildColumnDef renders a single column definition. Columns are nullable
// unless Nullable is explicitly false.
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	typ := strings.TrimSpace(c.Type)
	if name == "" || typ == "" {
		return "", fmt.Errorf("column name/type must be set")
	}

	def := pgIdent(name) + " " + columnType(typ)
	if !c.IsNullable() {
		def += " NOT NULL"
	}
	return def, nil
}

// columnType maps generic storage types to Postgres types.
func columnType(generic string) string {
	switch strings.ToLower(generic) {
	case storage.TypeSerial:
		return "serial"
	case storage.TypeInteger:
		return "bigint"
	case storage.TypeFloat:
		return "double precision"
	case storage.TypeDate:
		return "date"
	case storage.TypeText:
		return "text"
	default:
		return generic
	}
}

// splitQualifiedName splits a schema-qualified name into (schema, table).
//
// Examples:
//   - "public.countries" => ("public", "countries")
//   - "countries"        => ("", "countries")
//
// Only a single dot is handled; anything else is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func copyIdent(name string) pgx.Identifier {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}
