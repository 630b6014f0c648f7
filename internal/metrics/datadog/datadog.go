// Package datadog emits run metrics over DogStatsD. Labels ride along as
// tags and step timings go out as histogram samples, to whatever agent
// address the deployment points at. Unlike the Pushgateway backend this one
// streams as the run progresses, so a long load is visible while it is
// still going.
package datadog

import (
	"fmt"

	"flightetl/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config holds the agent address and per-process metric decoration.
type Config struct {
	// Addr is the DogStatsD endpoint, "127.0.0.1:8125" or a unix socket
	// path. Required.
	Addr string

	// Namespace prefixes every metric name, e.g. "flightetl.".
	Namespace string

	// GlobalTags ride on every metric, e.g. []string{"env:prod",
	// "run:9f2c1a7e"}. The run ID goes here so a metric always traces back
	// to one pipeline run.
	GlobalTags []string
}

// Backend adapts a statsd.Client to metrics.Backend. One instance gets
// installed per process via metrics.SetBackend.
type Backend struct {
	client *statsd.Client
}

// NewBackend dials the configured agent. An empty Addr is an error.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: empty agent address")
	}

	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: dial agent: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a Count. DogStatsD counts are int64, so fractional
// deltas truncate.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

// ObserveHistogram sends a Histogram observation.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush drains the client's buffer to the agent. Callable any number of
// times during a run.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Flush()
}

// Close flushes any buffered data and tears down the client. Use at process
// shutdown, after the final Flush.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// labelsToTags flattens labels into "key:value" tag strings.
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, fmt.Sprintf("%s:%s", k, v))
	}
	return out
}
