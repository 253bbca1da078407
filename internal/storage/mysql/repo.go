package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"csvload/internal/storage"
)

// maxParams is the MySQL prepared-statement placeholder limit.
const maxParams = 65535

// openDB is a seam so tests can substitute a sqlmock-backed *sql.DB.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// Repo implements storage.Repository for MySQL / MariaDB.
//
// The repo first connects at server level (no default database) so that the
// target database can be created if absent. EnsureDatabase then reconnects
// with the target as the connection default, which is required because a
// USE statement would only affect one pooled connection.
type Repo struct {
	db       *sql.DB
	cfg      *mysql.Config
	database string
	create   bool
}

func init() {
	storage.Register("mysql", New)
}

// New parses cfg.DSN with the driver's own parser, connects without a
// default database and pings the server.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = mc.DBName
	}

	server := mc.Clone()
	server.DBName = ""

	db, err := open(ctx, server.FormatDSN())
	if err != nil {
		return nil, err
	}

	target := mc.Clone()
	target.DBName = database

	return &Repo{db: db, cfg: target, database: database, create: cfg.CreateDatabase}, nil
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureDatabase issues CREATE DATABASE IF NOT EXISTS (utf8mb4) and
// reconnects with the database as the connection default.
func (r *Repo) EnsureDatabase(ctx context.Context) error {
	if strings.TrimSpace(r.database) == "" {
		return fmt.Errorf("mysql: database name is empty")
	}
	if r.create {
		if _, err := r.db.ExecContext(ctx, buildCreateDatabaseSQL(r.database)); err != nil {
			return fmt.Errorf("mysql: create database %s: %w", r.database, err)
		}
	}

	db, err := open(ctx, r.cfg.FormatDSN())
	if err != nil {
		return fmt.Errorf("mysql: connect %s: %w", r.database, err)
	}
	_ = r.db.Close()
	r.db = db
	return nil
}

func buildCreateDatabaseSQL(name string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s DEFAULT CHARACTER SET 'utf8mb4'", mysqlIdent(name))
}

func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	q, err := buildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// InsertBatch inserts rows with multi-row VALUES statements inside one
// transaction. Batches wider than the placeholder limit are split into
// several statements; the commit still covers all of them.
func (r *Repo) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	per := storage.RowsPerStatement(len(columns), maxParams, 0)
	for _, chunk := range storage.ChunkRows(rows, per) {
		q, args := buildInsertSQL(table, columns, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
// DATE values are bound as ISO strings.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, mysqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mysqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for j := range columns {
			args = append(args, storage.DateAsText(row[j]))
		}
	}
	return b.String(), args
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	if t.PrimaryKey != nil {
		if strings.TrimSpace(t.PrimaryKey.Name) == "" {
			return "", fmt.Errorf("table %s: primary key name is empty", t.Name)
		}
		switch strings.ToLower(strings.TrimSpace(t.PrimaryKey.Type)) {
		case storage.TypeSerial, "identity":
			parts = append(parts, fmt.Sprintf("%s INT AUTO_INCREMENT PRIMARY KEY", mysqlIdent(t.PrimaryKey.Name)))
		default:
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", mysqlIdent(t.PrimaryKey.Name), t.PrimaryKey.Type))
		}
	}

	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Type) == "" {
			return "", fmt.Errorf("table %s: column name/type must be set", t.Name)
		}
		null := " NULL"
		if !c.IsNullable() {
			null = " NOT NULL"
		}
		parts = append(parts, mysqlIdent(c.Name)+" "+columnType(c.Type)+null)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		mysqlTableIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func columnType(generic string) string {
	switch strings.ToLower(generic) {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeFloat:
		return "DOUBLE"
	case storage.TypeDate:
		return "DATE"
	case storage.TypeText:
		return "TEXT"
	default:
		return generic
	}
}

// mysqlIdent returns a backtick-quoted identifier, doubling embedded backticks.
func mysqlIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// mysqlTableIdent quotes db-qualified names ("db.table").
func mysqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mysqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
