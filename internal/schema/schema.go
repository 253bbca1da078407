// Package schema holds the per-column result of inference and turns it into
// a backend-neutral storage.TableSpec.
package schema

import (
	"fmt"
	"strings"

	"csvload/internal/storage"
)

// TypeTag is the scalar type assigned to a column.
//
// Values are ordered by specificity; Text is the fallback and the zero value.
type TypeTag int

const (
	Text TypeTag = iota
	Integer
	Float
	Date
)

func (t TypeTag) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Date:
		return "DATE"
	default:
		return "TEXT"
	}
}

// ParseTypeTag parses the String form back into a TypeTag (case-insensitive).
func ParseTypeTag(s string) (TypeTag, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TEXT":
		return Text, nil
	case "INTEGER", "INT":
		return Integer, nil
	case "FLOAT":
		return Float, nil
	case "DATE":
		return Date, nil
	default:
		return Text, fmt.Errorf("schema: unknown type %q", s)
	}
}

// MarshalText renders the tag for JSON/YAML output.
func (t TypeTag) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TypeTag) UnmarshalText(b []byte) error {
	v, err := ParseTypeTag(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ColumnSpec describes one inferred column. Name is unique within a table.
type ColumnSpec struct {
	Position int     `json:"position"`
	RawName  string  `json:"raw_name"`
	Name     string  `json:"name"`
	Type     TypeTag `json:"type"`
}

// PrimaryKeyName is the surrogate key prepended to every created table.
const PrimaryKeyName = "id"

// BuildTable returns the TableSpec for table: a serial "id" primary key
// followed by cols in order, all nullable.
func BuildTable(table string, cols []ColumnSpec) storage.TableSpec {
	spec := storage.TableSpec{
		Name:       table,
		PrimaryKey: &storage.PrimaryKeySpec{Name: PrimaryKeyName, Type: storage.TypeSerial},
		Columns:    make([]storage.ColumnSpec, 0, len(cols)),
	}
	for _, c := range cols {
		spec.Columns = append(spec.Columns, storage.ColumnSpec{
			Name: c.Name,
			Type: StorageType(c.Type),
		})
	}
	return spec
}

// StorageType maps a TypeTag to the generic storage column type.
func StorageType(t TypeTag) string {
	switch t {
	case Integer:
		return storage.TypeInteger
	case Float:
		return storage.TypeFloat
	case Date:
		return storage.TypeDate
	default:
		return storage.TypeText
	}
}

// Names returns the column names in order.
func Names(cols []ColumnSpec) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Types returns the column types in order.
func Types(cols []ColumnSpec) []TypeTag {
	out := make([]TypeTag, len(cols))
	for i, c := range cols {
		out[i] = c.Type
	}
	return out
}
