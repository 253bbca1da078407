// TableSpec lives here so that schema and the backend packages can share it
// without import cycles.
package storage

// Generic column types used in TableSpec. Each backend maps them to its own
// dialect type; anything else is passed through verbatim.
const (
	TypeSerial  = "serial"
	TypeInteger = "integer"
	TypeFloat   = "double"
	TypeDate    = "date"
	TypeText    = "text"
)

type TableSpec struct {
	Name       string          `json:"name"`
	PrimaryKey *PrimaryKeySpec `json:"primary_key,omitempty"`
	Columns    []ColumnSpec    `json:"columns"`
}

type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // serial
}

type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable,omitempty"`
}

// IsNullable reports whether the column accepts NULL. Columns default to nullable.
func (c ColumnSpec) IsNullable() bool {
	if c.Nullable == nil {
		return true
	}
	return *c.Nullable
}

// ColumnNames returns the insertable column names in declaration order.
// The primary key is excluded because every backend generates it.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}
