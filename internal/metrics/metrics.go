// Package metrics is the seam between the pipeline stages and whatever
// metric system a deployment runs. Read, clean, derive, aggregate, and
// persist record counters and step timings against the Backend interface;
// the concrete systems (Pushgateway, Datadog) live in subpackages and get
// installed once at startup. The default backend discards everything, so a
// run with no metrics configured records into the void rather than
// nil-checking its way around the calls.
package metrics

import "time"

// Metric families emitted by the pipeline. Backends route on these names.
const (
	MetricRecords      = "flightetl_records_total"
	MetricBatches      = "flightetl_batches_total"
	MetricSteps        = "flightetl_step_total"
	MetricStepDuration = "flightetl_step_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend routes counters and timing observations to one metric system.
type Backend interface {
	// IncCounter adds delta to the named counter.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records one duration-style observation.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush ships whatever the backend has buffered. Push-style backends
	// send their one batch here; others return nil.
	Flush() error
}

// nopBackend drops every observation.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs b as the process-wide backend. Nil is ignored, the
// current backend stays.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep records one step outcome: a count labeled success or failure,
// plus the wall time the step took.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(MetricSteps, 1, lbls)
	backend.ObserveHistogram(MetricStepDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of the given kind for a job. Kinds mirror the
// run quality counters: "read", "malformed", "cast_failures", "violations",
// "rejected", "cleaned", "persisted". Non-positive deltas are dropped.
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(MetricRecords, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches adds delta completed batches for a job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(MetricBatches, float64(delta), Labels{
		"job": job,
	})
}
