package postgres

import (
	"strings"
	"testing"

	"csvload/internal/storage"
)

// boolPtr is a tiny helper to avoid repeating &[]bool literals in tests.
func boolPtr(v bool) *bool { return &v }

func TestBuildCreateSQL_QualifiedTable_CreatesSchemaAndTable(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "public.movies",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "id", Type: storage.TypeSerial},
		Columns: []storage.ColumnSpec{
			{Name: "title", Type: storage.TypeText},
			{Name: "year", Type: storage.TypeInteger},
			{Name: "rating", Type: storage.TypeFloat},
			{Name: "released", Type: storage.TypeDate},
		},
	}

	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "public";` {
		t.Fatalf("schemaSQL=%q", schemaSQL)
	}

	want := `CREATE TABLE IF NOT EXISTS "public"."movies" (` +
		`"id" serial PRIMARY KEY, "title" text, "year" bigint, "rating" double precision, "released" date);`
	if tableSQL != want {
		t.Fatalf("tableSQL mismatch\n got: %s\nwant: %s", tableSQL, want)
	}
}

func TestBuildCreateSQL_UnqualifiedTable_NoSchema(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:    "movies",
		Columns: []storage.ColumnSpec{{Name: "title", Type: storage.TypeText}},
	}
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != "" {
		t.Fatalf("expected no schema SQL, got %q", schemaSQL)
	}
	if !strings.HasPrefix(tableSQL, `CREATE TABLE IF NOT EXISTS "movies" (`) {
		t.Fatalf("tableSQL=%q", tableSQL)
	}
}

func TestBuildCreateSQL_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TableSpec
	}{
		{name: "empty_name", spec: storage.TableSpec{Columns: []storage.ColumnSpec{{Name: "a", Type: "text"}}}},
		{name: "no_columns", spec: storage.TableSpec{Name: "t"}},
		{name: "pk_missing_type", spec: storage.TableSpec{Name: "t", PrimaryKey: &storage.PrimaryKeySpec{Name: "id"}}},
		{name: "column_missing_type", spec: storage.TableSpec{Name: "t", Columns: []storage.ColumnSpec{{Name: "a"}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := buildCreateSQL(tt.spec); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildColumnDef_NotNull(t *testing.T) {
	t.Parallel()

	got, err := buildColumnDef(storage.ColumnSpec{Name: "a", Type: "text", Nullable: boolPtr(false)})
	if err != nil {
		t.Fatalf("buildColumnDef: %v", err)
	}
	if got != `"a" text NOT NULL` {
		t.Fatalf("got %q", got)
	}
}

func TestIdentQuoting(t *testing.T) {
	t.Parallel()

	if got := pgIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("pgIdent=%q", got)
	}
	if got := pgTableIdent("s.t"); got != `"s"."t"` {
		t.Fatalf("pgTableIdent=%q", got)
	}
	if got := copyIdent("s.t"); len(got) != 2 || got[0] != "s" || got[1] != "t" {
		t.Fatalf("copyIdent=%v", got)
	}
	if got := buildCreateDatabaseSQL("movies"); got != `CREATE DATABASE "movies";` {
		t.Fatalf("buildCreateDatabaseSQL=%q", got)
	}
}
