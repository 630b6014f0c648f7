// Package prompush pushes run metrics to a Prometheus Pushgateway.
//
// A bulk load is a batch job: by the time anything could scrape it, the
// process has exited. Counters and step timings accumulate in a private
// registry and leave in one push per run, grouped by job name and run ID.
// All client_golang types stay inside this package; the driver only sees
// the metrics.Backend interface.
package prompush

import (
	"fmt"

	"flightetl/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend accumulates observations in a private registry and ships them to
// the gateway on Flush. The zero value drops everything; build one with
// NewBackend.
type Backend struct {
	gatewayURL string
	jobName    string // Pushgateway "job" group
	grouping   map[string]string
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // metrics.MetricSteps
	stepDuration  *prometheus.SummaryVec // metrics.MetricStepDuration
	recordCounter *prometheus.CounterVec // metrics.MetricRecords
	batchCounter  prometheus.Counter     // metrics.MetricBatches
}

// NewBackend builds a backend pushing to gatewayURL under jobName. An empty
// jobName falls back to "flightetl". The registry is private to the backend,
// so nothing else in the process can collide with these collectors.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: empty gateway URL")
	}
	if jobName == "" {
		jobName = "flightetl"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        reg,
		stepCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.MetricSteps,
			Help: "Step executions by step name and outcome.",
		}, []string{"step", "status"}),
		stepDuration: factory.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.MetricStepDuration,
			Help:       "Step wall time in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		recordCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.MetricRecords,
			Help: "Row counts by processing kind.",
		}, []string{"kind"}),
		batchCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: metrics.MetricBatches,
			Help: "Sink batches flushed over the run.",
		}),
	}, nil
}

// Grouping adds a Pushgateway grouping label applied on every push. The run ID
// is carried this way so every pushed series is attributable to a single run
// without inflating per-series label cardinality.
func (b *Backend) Grouping(key, value string) {
	if key == "" || value == "" {
		return
	}
	if b.grouping == nil {
		b.grouping = make(map[string]string)
	}
	b.grouping[key] = value
}

// IncCounter routes a delta to the collector owning the metric name. Names
// outside the flightetl families fall through untouched.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.MetricSteps:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.MetricRecords:
		if b.recordCounter != nil {
			b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.MetricBatches:
		if b.batchCounter != nil {
			b.batchCounter.Add(delta)
		}
	}
}

// ObserveHistogram feeds step wall time into the duration summary. Other
// names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.MetricStepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the gateway in one shot, carrying the job name
// and every grouping label. Safe to call more than once per run.
func (b *Backend) Flush() error {
	p := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg)
	for k, v := range b.grouping {
		p = p.Grouping(k, v)
	}
	return p.Push()
}
