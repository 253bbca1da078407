// Package metrics is the backend-neutral metrics facade used by the
// ingestion pipeline. Core code records through the package-level helpers;
// cmd/ installs a concrete Backend (Datadog) or leaves the nop default.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names recorded by the pipeline.
const (
	StepTotal           = "csvload_step_total"
	RowsTotal           = "csvload_rows_total"
	BatchesTotal        = "csvload_batches_total"
	StepDurationSeconds = "csvload_step_duration_seconds"
	BatchRows           = "csvload_batch_rows"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. nil restores the nop.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the current backend.
func Flush() error { return current().Flush() }

// RecordStep counts one pipeline step outcome and its duration.
// status is "ok" or "error".
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRows counts rows by kind ("sampled", "inserted", "skipped").
func RecordRows(kind string, n int64) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one committed batch of rows rows.
func RecordBatch(rows int) {
	IncCounter(BatchesTotal, 1, nil)
	ObserveHistogram(BatchRows, float64(rows), nil)
}
