// Package metrics is the backend-agnostic metrics facade used by the loader.
//
// Core code records through the package-level helpers; the command installs a
// concrete Backend (Datadog, Prometheus Pushgateway) with SetBackend. Until then
// every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	StepTotal           = "dwh_step_total"
	StepDurationSeconds = "dwh_step_duration_seconds"
	RecordsTotal        = "dwh_records_total"
	BatchesTotal        = "dwh_batches_total"
)

// Labels are metric dimensions, e.g. {"step": "load_facts", "status": "ok"}.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use and should ignore names they do not know.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the no-op backend.
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

// Flush flushes the current backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one execution of step and observes its duration.
// status is "ok" or "error".
func RecordStep(step, status string, d time.Duration) {
	b := current()
	l := Labels{"step": step, "status": status}
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords adds n to the records counter of kind (e.g. "Customers",
// "fact_loaded", "skipped_missing_product"). Non-positive n is ignored.
func RecordRecords(kind string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatches adds n to the batches counter.
func RecordBatches(n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(n), nil)
}
