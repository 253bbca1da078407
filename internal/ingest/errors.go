package ingest

import "fmt"

// SourceError reports a source that cannot be opened or read: missing file,
// no header, undecodable text or a malformed record.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Path, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// SinkConnectionError reports a failure to reach, authenticate to or
// provision the sink database.
type SinkConnectionError struct {
	Kind string
	Err  error
}

func (e *SinkConnectionError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Kind, e.Err)
}
func (e *SinkConnectionError) Unwrap() error { return e.Err }

// SchemaError reports a table that could not be created as inferred.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string { return fmt.Sprintf("schema %s: %v", e.Table, e.Err) }
func (e *SchemaError) Unwrap() error { return e.Err }
