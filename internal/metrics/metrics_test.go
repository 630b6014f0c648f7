package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder captures observations so tests can assert on what the package
// routed to the backend. Tests swap it into the package global, so none of
// them run parallel.
type recorder struct {
	mu       sync.Mutex
	counters []observation
	hists    []observation
	flushes  int
}

type observation struct {
	name   string
	value  float64
	labels Labels
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, observation{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, observation{name, value, labels})
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func install(t *testing.T) *recorder {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	r := &recorder{}
	SetBackend(r)
	return r
}

func TestRecordStep(t *testing.T) {
	r := install(t)

	RecordStep("flights-2015", "clean", nil, 2*time.Second)
	RecordStep("flights-2015", "persist", errors.New("connection reset"), 1500*time.Millisecond)

	if len(r.counters) != 2 || len(r.hists) != 2 {
		t.Fatalf("got %d counters and %d histograms, want 2 and 2", len(r.counters), len(r.hists))
	}

	ok := r.counters[0]
	if ok.name != MetricSteps || ok.value != 1 {
		t.Fatalf("step counter = %+v, want %s delta 1", ok, MetricSteps)
	}
	wantOK := Labels{"job": "flights-2015", "step": "clean", "status": "success"}
	for k, v := range wantOK {
		if ok.labels[k] != v {
			t.Errorf("success labels[%s] = %q, want %q", k, ok.labels[k], v)
		}
	}

	failed := r.counters[1]
	if failed.labels["step"] != "persist" || failed.labels["status"] != "failure" {
		t.Fatalf("failure labels = %v, want step=persist status=failure", failed.labels)
	}

	if d := r.hists[0]; d.name != MetricStepDuration || d.value != 2.0 {
		t.Fatalf("duration observation = %+v, want %s at 2s", d, MetricStepDuration)
	}
	if d := r.hists[1]; d.value != 1.5 {
		t.Fatalf("failure duration = %g, want 1.5", d.value)
	}
}

func TestRecordRows(t *testing.T) {
	r := install(t)

	RecordRows("flights-2015", "cleaned", 3)
	RecordRows("flights-2015", "cleaned", 0)
	RecordRows("flights-2015", "rejected", -1)
	RecordRows("flights-2015", "persisted", 5)

	if len(r.counters) != 2 {
		t.Fatalf("got %d counter calls, want 2; zero and negative deltas must drop", len(r.counters))
	}
	if c := r.counters[0]; c.name != MetricRecords || c.value != 3 || c.labels["kind"] != "cleaned" {
		t.Fatalf("counters[0] = %+v, want %s cleaned delta 3", c, MetricRecords)
	}
	if c := r.counters[1]; c.value != 5 || c.labels["kind"] != "persisted" {
		t.Fatalf("counters[1] = %+v, want persisted delta 5", c)
	}
}

func TestRecordBatches(t *testing.T) {
	r := install(t)

	RecordBatches("flights-2015", 2)
	RecordBatches("flights-2015", 0)

	if len(r.counters) != 1 {
		t.Fatalf("got %d counter calls, want 1", len(r.counters))
	}
	c := r.counters[0]
	if c.name != MetricBatches || c.value != 2 || c.labels["job"] != "flights-2015" {
		t.Fatalf("batch counter = %+v, want %s delta 2 for flights-2015", c, MetricBatches)
	}
}

func TestSetBackend(t *testing.T) {
	r := install(t)

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if r.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", r.flushes)
	}

	SetBackend(nil)
	RecordBatches("flights-2015", 1)
	if len(r.counters) != 1 {
		t.Fatal("SetBackend(nil) displaced the installed backend")
	}
}
