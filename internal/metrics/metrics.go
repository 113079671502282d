// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a normalize run.
//
// It exposes a narrow interface (Backend) focused on counters and timings, and
// a global, pluggable backend that defaults to a no-op implementation so
// metrics are always safe to call. Concrete systems (Prometheus Pushgateway,
// Datadog) live in subpackages.
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	StepTotal       = "normalize_step_total"
	StepDuration    = "normalize_step_duration_seconds"
	RecordsTotal    = "normalize_records_total"
	KeysTotal       = "normalize_keys_total"
	BatchesTotal    = "normalize_batches_total"
	defaultJobLabel = "normalize"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one run step
// (load_existing, normalize, write_fact, write_dimensions, ...).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": jobLabel(job), "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter. Kinds mirror the run
// summary: "processed", "parse_errors", "rejected", "fact_written",
// "dimension_written".
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": jobLabel(job), "kind": kind})
}

// RecordKeys increments the surrogate key counter of one group. Kinds are
// "existing", "created" and "reused".
func RecordKeys(job, group, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(KeysTotal, float64(delta), Labels{"job": jobLabel(job), "group": group, "kind": kind})
}

// RecordBatches increments the batch counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": jobLabel(job)})
}

func jobLabel(job string) string {
	if job == "" {
		return defaultJobLabel
	}
	return job
}
