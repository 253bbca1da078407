package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"csvload/internal/storage"
)

func moviesSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       "movies",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "id", Type: storage.TypeSerial},
		Columns: []storage.ColumnSpec{
			{Name: "title", Type: storage.TypeText},
			{Name: "year", Type: storage.TypeInteger},
			{Name: "rating", Type: storage.TypeFloat},
			{Name: "released", Type: storage.TypeDate},
		},
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	got, err := buildCreateTableSQL(moviesSpec())
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "movies" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "title" TEXT, "year" INTEGER, "rating" REAL, "released" DATE);`
	if got != want {
		t.Fatalf("ddl mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildCreateTableSQL_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TableSpec
	}{
		{name: "empty table name", spec: storage.TableSpec{Columns: []storage.ColumnSpec{{Name: "a", Type: "text"}}}},
		{name: "no columns", spec: storage.TableSpec{Name: "t"}},
		{name: "column without type", spec: storage.TableSpec{Name: "t", Columns: []storage.ColumnSpec{{Name: "a"}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := buildCreateTableSQL(tt.spec); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRepo_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "movies.db")

	repo, err := New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	if err := repo.EnsureDatabase(ctx); err != nil {
		t.Fatalf("EnsureDatabase: %v", err)
	}
	spec := moviesSpec()
	for i := 0; i < 2; i++ {
		if err := repo.EnsureTable(ctx, spec); err != nil {
			t.Fatalf("EnsureTable #%d: %v", i+1, err)
		}
	}

	rows := [][]any{
		{"Heat", int64(1995), 8.3, time.Date(1995, 12, 15, 0, 0, 0, 0, time.UTC)},
		{nil, nil, nil, nil},
	}
	n, err := repo.InsertBatch(ctx, "movies", spec.ColumnNames(), rows)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("n=%d, want 2", n)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var (
		id       int64
		title    sql.NullString
		year     sql.NullInt64
		rating   sql.NullFloat64
		released sql.NullString
	)
	err = db.QueryRow(`SELECT id, title, year, rating, CAST(released AS TEXT) FROM movies ORDER BY id LIMIT 1`).
		Scan(&id, &title, &year, &rating, &released)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if id != 1 || title.String != "Heat" || year.Int64 != 1995 || rating.Float64 != 8.3 || released.String != "1995-12-15" {
		t.Fatalf("row=(%d, %v, %v, %v, %v)", id, title, year, rating, released)
	}

	var nulls int
	if err := db.QueryRow(`SELECT COUNT(*) FROM movies WHERE title IS NULL AND year IS NULL AND released IS NULL`).Scan(&nulls); err != nil {
		t.Fatalf("count: %v", err)
	}
	if nulls != 1 {
		t.Fatalf("null rows=%d, want 1", nulls)
	}
}

func TestInsertBatch_ChunksAboveParamLimit(t *testing.T) {
	ctx := context.Background()
	repo, err := New(ctx, storage.Config{Kind: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "wide.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	spec := storage.TableSpec{
		Name:       "nums",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "id", Type: storage.TypeSerial},
		Columns:    []storage.ColumnSpec{{Name: "a", Type: storage.TypeInteger}, {Name: "b", Type: storage.TypeInteger}},
	}
	if err := repo.EnsureTable(ctx, spec); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	// Two columns: 16383 rows fit per statement, so this needs two.
	rows := make([][]any, maxParams/2+10)
	for i := range rows {
		rows[i] = []any{int64(i), int64(-i)}
	}
	n, err := repo.InsertBatch(ctx, "nums", spec.ColumnNames(), rows)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != int64(len(rows)) {
		t.Fatalf("n=%d, want %d", n, len(rows))
	}
}
