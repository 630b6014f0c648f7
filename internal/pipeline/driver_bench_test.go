package pipeline

import (
	"context"
	"io"
	"log"
	"testing"

	"flightetl/internal/config"
	"flightetl/internal/storage"
)

// BenchmarkRunEndToEnd exercises the hot path of the chunked read + clean +
// derive + aggregate + persist pipeline in a simplified, in-memory setup.
//
// It focuses on:
//   - the reader's cast plan: raw CSV strings into typed column batches
//   - parallel rule evaluation, reject compaction, and derived columns
//   - accumulator updates and sink batching against a fake repository
//
// The goal is to approximate real-world throughput without involving I/O or
// actual database drivers.
// Run with:
//
//	go test -run=^$ -bench ^BenchmarkRunEndToEnd$ -benchmem -count=1 ./internal/pipeline
func BenchmarkRunEndToEnd(b *testing.B) {
	const rows = 20_000
	data := syntheticCSV(rows)
	b.SetBytes(int64(len(data)))

	swapSeams(b)
	openSourceFn = sourceFromBytes(data)
	newRepositoryFn = func(context.Context, storage.Config) (storage.Repository, error) {
		return &memRepo{}, nil
	}

	spec := testSpec()
	spec.Runtime = config.RuntimeConfig{Workers: 4, BatchSize: 5_000, ChannelBuffer: 2}

	// The driver narrates each run; that costs more than some of the stages
	// being measured here.
	prevOut := log.Writer()
	log.SetOutput(io.Discard)
	b.Cleanup(func() { log.SetOutput(prevOut) })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d := New(spec)
		got, err := d.Run(context.Background())
		if err != nil {
			b.Fatalf("Run: %v", err)
		}
		if got.Totals.Flights != rows {
			b.Fatalf("Totals.Flights = %d, want %d", got.Totals.Flights, rows)
		}
	}
}
