// Package pipeline wires one flight-records run end to end: source open,
// CSV reader, clean/derive workers, KPI aggregation, and the sink, with a
// data-quality ledger carried through every outcome.
//
// Bad rows are dropped before the sink (fail-soft semantics), while read and
// rule findings are tallied and summarized at the end. Fatal conditions
// (schema drift, a corrupt source, a rejected batch, a sink failure) cancel
// the run; everything already aggregated still comes back as a partial
// report.
//
// Concurrency model:
//
//	Reader (CSV, 1 goroutine)
//	     → N clean/derive workers (one Cleaner and one Accumulator each)
//	     → Persist (1 goroutine; one writer per table is usually best)
//
// Back-pressure is enforced via bounded channels of pooled batches, so peak
// memory stays around O(batch_size x (buffers + stages)). A fatal error
// cancels the context and the stages drain and free remaining batches to
// avoid leaks or deadlocks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flightetl/internal/aggregate"
	"flightetl/internal/clean"
	"flightetl/internal/config"
	"flightetl/internal/datasource/file"
	"flightetl/internal/datasource/httpds"
	"flightetl/internal/derive"
	"flightetl/internal/flight"
	"flightetl/internal/metrics"
	"flightetl/internal/parser/csv"
	"flightetl/internal/report"
	"flightetl/internal/schema"
	"flightetl/internal/storage"
)

const (
	// firstErrors caps the per-kind error messages echoed to the log; the
	// full counts always appear in the summary.
	firstErrors = 3

	// progressEveryN spaces the persist-stage progress lines.
	progressEveryN = 10

	defaultBatchSize = 100_000
)

// State tracks a Driver through its run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// counters holds cross-goroutine statistics for one run.
//
// All fields are updated atomically.
type counters struct {
	rejected atomic.Int64 // rows dropped by the rule engine
	coerced  atomic.Int64 // cells nulled by coercion
	cleaned  atomic.Int64 // rows surviving clean+derive
	stored   atomic.Int64 // rows acknowledged by the sink
	batches  atomic.Int64 // sink batches flushed
}

// ruleTally collects per-rule violation counts and rejected-row samples
// across workers.
type ruleTally struct {
	mu         sync.Mutex
	violations map[clean.Rule]int64
	samples    []clean.Sample
}

func (t *ruleTally) add(res clean.Result) {
	if len(res.Violations) == 0 && len(res.Samples) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for r, n := range res.Violations {
		if n == 0 {
			continue
		}
		if t.violations == nil {
			t.violations = make(map[clean.Rule]int64)
		}
		t.violations[r] += n
	}
	t.samples = append(t.samples, res.Samples...)
}

// errAgg aggregates error messages, keeping the first few verbatim and
// bucketing the rest by message.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	a.buckets[msg]++
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

// runtimeConfig contains the resolved concurrency and buffering configuration
// for a run. Values are derived from the pipeline spec with optional
// environment variable overrides (12-factor style).
type runtimeConfig struct {
	workers   int
	batchSize int
	buffer    int
}

// newRuntimeConfig resolves the runtime configuration using the pipeline
// values and environment-variable fallbacks.
func newRuntimeConfig(p config.Pipeline) runtimeConfig {
	rt := runtimeConfig{
		workers:   pickInt(p.Runtime.Workers, getenvInt("FLIGHTETL_WORKERS", 1)),
		batchSize: pickInt(p.Runtime.BatchSize, getenvInt("FLIGHTETL_BATCH_SIZE", defaultBatchSize)),
		buffer:    pickInt(p.Runtime.ChannelBuffer, getenvInt("FLIGHTETL_CH_BUFFER", 1)),
	}
	if rt.workers < 1 {
		rt.workers = 1
	}
	if rt.batchSize < 1 {
		rt.batchSize = defaultBatchSize
	}
	if rt.buffer < 0 {
		rt.buffer = 0
	}
	return rt
}

func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	openSourceFn = openSource
)

// openSource maps the source config onto a byte stream.
func openSource(ctx context.Context, p config.Pipeline) (io.ReadCloser, error) {
	switch p.Source.Kind {
	case "file":
		return file.NewLocal(p.Source.File.Path).Open(ctx)
	case "http":
		h := p.Source.HTTP
		client := httpds.NewClient(httpds.Config{
			Timeout:            time.Duration(h.TimeoutSeconds) * time.Second,
			MaxRetries:         h.MaxRetries,
			InsecureSkipVerify: h.InsecureSkipVerify,
		})
		return httpds.NewRemote(client, h.URL).Open(ctx)
	default:
		return nil, fmt.Errorf("unsupported source.kind=%s", p.Source.Kind)
	}
}

// Driver executes one pipeline run. Build a fresh Driver per run; the run ID
// is fixed at construction and the state machine does not rewind.
type Driver struct {
	spec  config.Pipeline
	reg   *schema.Registry
	runID string
	state atomic.Int32
}

// New builds a Driver for the flight schema.
func New(spec config.Pipeline) *Driver {
	return &Driver{
		spec:  spec,
		reg:   schema.Flights(),
		runID: uuid.NewString(),
	}
}

// RunID returns the identifier stamped on logs, metrics, and the report.
func (d *Driver) RunID() string { return d.runID }

// State reports where the run currently stands. Safe to call from any
// goroutine while Run is in flight.
func (d *Driver) State() State { return State(d.state.Load()) }

// Run executes the pipeline until the source is exhausted, a fatal error
// fires, or ctx is cancelled. It always returns a report: complete after a
// clean run, partial (with the quality ledger explaining why) otherwise.
// Cancellation comes back as ctx's error with the state left at StateDone;
// the partial report remains valid.
func (d *Driver) Run(ctx context.Context) (*report.Report, error) {
	d.state.Store(int32(StateRunning))
	log.Printf("run %s: job=%q starting", d.runID, d.spec.Job)

	rep, err := d.run(ctx)
	if rep == nil {
		rep = &report.Report{RunID: d.runID, GeneratedAt: time.Now().UTC(), Partial: true}
	}
	switch {
	case err == nil:
		d.state.Store(int32(StateDone))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// A cooperative stop is not a data failure; the partial report stands.
		d.state.Store(int32(StateDone))
	default:
		if rep.Quality.FatalError == "" {
			rep.Quality.FatalError = err.Error()
		}
		d.state.Store(int32(StateFailed))
	}
	return rep, err
}

func (d *Driver) run(parent context.Context) (*report.Report, error) {
	spec := d.spec
	job := spec.Job
	if job == "" {
		job = "flightetl"
	}
	rt := newRuntimeConfig(spec)
	log.Printf("run %s: runtime workers=%d batch=%d buffer=%d", d.runID, rt.workers, rt.batchSize, rt.buffer)

	cleanCfg, err := cleanConfig(spec.Clean, rt.workers)
	if err != nil {
		return nil, fmt.Errorf("clean config: %w", err)
	}
	seasons, err := derive.ParseSeasonMap(spec.Derive.SeasonMapping)
	if err != nil {
		return nil, fmt.Errorf("derive config: %w", err)
	}
	deriver := derive.New(seasons)

	sinkKind := spec.Sink.Kind
	if sinkKind == "" {
		sinkKind = "none"
	}
	columns := storage.Columns(d.reg)
	log.Printf("run %s: sink kind=%s table=%s columns=%d", d.runID, sinkKind, spec.Sink.DB.Table, len(columns))
	repo, err := newRepositoryFn(parent, storage.Config{
		Kind:    sinkKind,
		DSN:     spec.Sink.DB.DSN,
		Table:   spec.Sink.DB.Table,
		Columns: columns,
	})
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}
	defer repo.Close()
	if spec.Sink.DB.AutoCreateTable && sinkKind != "none" {
		if err := storage.EnsureTable(parent, repo, sinkKind, spec.Sink.DB.Table, d.reg.All()); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// The first fatal error wins; later ones are echoes of the cancellation
	// it triggers. Context errors never count as fatal.
	var fatalMu sync.Mutex
	var fatalErr error
	setFatal := func(err error) {
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
			log.Printf("run %s: fatal: %v", d.runID, err)
		}
		fatalMu.Unlock()
		cancel()
	}

	var stats counters
	var viol ruleTally
	readAgg := newErrAgg(firstErrors)

	rawCh := make(chan *flight.Batch, rt.buffer)
	cleanCh := make(chan *flight.Batch, rt.buffer)

	// Reader: source → casted batches. Owns rawCh.
	var totals csv.Totals
	var wgReader sync.WaitGroup
	wgReader.Add(1)
	go func() {
		defer wgReader.Done()
		defer close(rawCh)
		start := time.Now()

		src, err := openSourceFn(ctx, spec)
		if err != nil {
			err = fmt.Errorf("source open: %w", err)
			setFatal(err)
			metrics.RecordStep(job, "read", err, time.Since(start))
			return
		}
		t, err := csv.StreamBatches(ctx, src, d.reg, readerOptions(spec, rt.batchSize), rawCh,
			func(line int, err error) {
				readAgg.add(fmt.Sprintf("line=%d: %v", line, err))
			})
		totals = t
		setFatal(err)
		metrics.RecordStep(job, "read", err, time.Since(start))
	}()

	// Clean/derive workers: one Cleaner and one Accumulator per worker, the
	// shared Deriver is stateless. Batch order on cleanCh follows arrival
	// order only when workers == 1.
	g, gctx := errgroup.WithContext(ctx)
	var accMu sync.Mutex
	var accs []*aggregate.Accumulator
	cleanStart := time.Now()
	for w := 0; w < rt.workers; w++ {
		g.Go(func() error {
			cl := clean.New(cleanCfg)
			acc := aggregate.New()
			for b := range rawCh {
				res, cerr := cl.Clean(b)
				if cerr != nil {
					b.Free()
					return cerr
				}
				stats.rejected.Add(int64(res.Rejected))
				stats.coerced.Add(res.CoercedCells)
				viol.add(res)
				if b.Len() == 0 {
					b.Free()
					continue
				}
				deriver.Derive(b)
				acc.Update(b)
				stats.cleaned.Add(int64(b.Len()))
				select {
				case cleanCh <- b:
				case <-gctx.Done():
					b.Free()
					return gctx.Err()
				}
			}
			accMu.Lock()
			accs = append(accs, acc)
			accMu.Unlock()
			return nil
		})
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		err := g.Wait()
		setFatal(err)
		metrics.RecordStep(job, "clean", err, time.Since(cleanStart))
		close(cleanCh)
	}()

	// Persist: single writer. On failure or cancellation it keeps draining
	// and freeing so upstream never blocks on a full channel.
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		start := time.Now()
		var rows [][]any
		var perr error
		for b := range cleanCh {
			if perr != nil || ctx.Err() != nil {
				b.Free()
				continue
			}
			rows = storage.AppendRows(rows[:0], b)
			b.Free()
			n, err := repo.CopyFrom(ctx, columns, rows)
			stats.stored.Add(n)
			if err != nil {
				perr = fmt.Errorf("sink write: %w", err)
				setFatal(perr)
				continue
			}
			nb := stats.batches.Add(1)
			metrics.RecordBatches(job, 1)
			if nb%progressEveryN == 0 {
				elapsed := time.Since(start)
				total := stats.stored.Load()
				rps := int64(0)
				if s := elapsed.Seconds(); s > 0 {
					rps = int64(float64(total) / s)
				}
				log.Printf("persist: batch=%d rps=%d stored=%s elapsed=%s",
					nb, rps, humanize.Comma(total), elapsed.Truncate(time.Millisecond))
			}
		}
		metrics.RecordStep(job, "persist", perr, time.Since(start))
	}()

	// Join order matters: the reader closes rawCh, the workers stop reading
	// it, and only then can leftover buffered batches be freed safely.
	wgReader.Wait()
	<-workersDone
	for b := range rawCh {
		b.Free()
	}
	<-persistDone

	d.state.Store(int32(StateFinalizing))
	finStart := time.Now()

	root := aggregate.New()
	accMu.Lock()
	for _, a := range accs {
		root.Merge(a)
	}
	accMu.Unlock()

	fatalMu.Lock()
	ferr := fatalErr
	fatalMu.Unlock()
	complete := ferr == nil && parent.Err() == nil

	opts := aggregate.Options{
		RunID:           d.runID,
		TopN:            spec.Aggregate.TopN,
		MinRouteFlights: spec.Aggregate.MinRouteFlights,
	}
	var rep *report.Report
	if complete {
		rep = root.Finalize(opts)
	} else {
		rep = root.Snapshot(opts)
	}
	rep.Quality = buildQuality(totals, &stats, &viol, ferr)

	logReadErrors(readAgg)
	logRunSummary(&rep.Quality, complete)
	recordRowMetrics(job, &rep.Quality)
	metrics.RecordStep(job, "finalize", ferr, time.Since(finStart))

	if ferr != nil {
		return rep, ferr
	}
	if err := parent.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// readerOptions maps the reader options bag onto the CSV reader's knobs.
func readerOptions(p config.Pipeline, batchSize int) csv.Options {
	o := p.Reader.Options
	return csv.Options{
		BatchSize:            batchSize,
		Comma:                o.Rune("comma", ','),
		Encoding:             o.String("encoding", ""),
		HasHeader:            o.Bool("has_header", true),
		HeaderMap:            o.StringMap("header_map"),
		LazyQuotes:           o.Bool("lazy_quotes", false),
		TrimSpace:            o.Bool("trim_space", true),
		MaxMalformedFraction: o.Float("max_malformed_fraction", 0),
	}
}

// cleanConfig resolves rule policies from their config spellings.
func cleanConfig(c config.Clean, workers int) (clean.Config, error) {
	cfg := clean.Config{
		MaxViolationFraction: c.MaxViolationFraction,
		Dedup:                c.Dedup,
		SampleLimit:          c.SampleLimit,
	}
	if workers > 1 {
		// Rejected-row samples are a "first N in file order" diagnostic;
		// several workers would interleave them, so parallel runs skip them.
		cfg.SampleLimit = -1
	}
	if len(c.Policies) > 0 {
		cfg.Policies = make(map[clean.Rule]clean.Policy, len(c.Policies))
		for rs, ps := range c.Policies {
			r, err := clean.ParseRule(rs)
			if err != nil {
				return cfg, err
			}
			p, err := clean.ParsePolicy(ps)
			if err != nil {
				return cfg, err
			}
			cfg.Policies[r] = p
		}
	}
	return cfg, nil
}

func buildQuality(t csv.Totals, stats *counters, viol *ruleTally, ferr error) report.Quality {
	q := report.Quality{
		LinesRead:    t.Lines,
		RowsParsed:   t.Rows,
		Malformed:    t.Malformed,
		CastFailures: t.CastFailures,
		RowsRejected: stats.rejected.Load(),
		CellsCoerced: stats.coerced.Load(),
		RowsCleaned:  stats.cleaned.Load(),
		RowsStored:   stats.stored.Load(),
		Batches:      stats.batches.Load(),
	}
	viol.mu.Lock()
	if len(viol.violations) > 0 {
		q.Violations = make(map[string]int64, len(viol.violations))
		for r, n := range viol.violations {
			q.Violations[r.String()] = n
		}
	}
	for _, s := range viol.samples {
		q.Samples = append(q.Samples, report.RejectedSample{Line: s.Line, Rule: s.Rule.String()})
	}
	viol.mu.Unlock()
	if ferr != nil {
		q.FatalError = ferr.Error()
	}
	return q
}

// logReadErrors prints aggregated malformed-line errors. Only the first few
// verbatim messages are shown; the summary carries the full count.
func logReadErrors(a *errAgg) {
	if a.count == 0 {
		return
	}
	log.Printf("read errors: %d (showing first %d)", a.count, len(a.first))
	for i, s := range a.first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// logRunSummary prints final aggregated statistics for the run.
//
// Invariants for a run that completed without fatal error or cancellation:
//
//	lines_read  == parsed + malformed
//	parsed      == cleaned + rejected
//
// Interrupted runs legitimately drop in-flight batches on the floor, so the
// conservation check only applies to complete ones.
func logRunSummary(q *report.Quality, complete bool) {
	log.Printf(
		"summary: lines=%d parsed=%d malformed=%d rejected=%d cleaned=%d stored=%d batches=%d coerced_cells=%d",
		q.LinesRead, q.RowsParsed, q.Malformed, q.RowsRejected, q.RowsCleaned, q.RowsStored, q.Batches, q.CellsCoerced,
	)
	if !complete {
		return
	}
	if accounted := q.RowsParsed + q.Malformed; accounted != q.LinesRead {
		log.Printf("WARNING: line accounting mismatch: lines=%d accounted=%d (delta=%d)",
			q.LinesRead, accounted, q.LinesRead-accounted)
	}
	if accounted := q.RowsCleaned + q.RowsRejected; accounted != q.RowsParsed {
		log.Printf("WARNING: row accounting mismatch: parsed=%d accounted=%d (delta=%d)",
			q.RowsParsed, accounted, q.RowsParsed-accounted)
	}
}

// recordRowMetrics publishes the quality ledger as record counters. Batches
// are already counted incrementally by the persist stage.
func recordRowMetrics(job string, q *report.Quality) {
	metrics.RecordRows(job, "read", q.RowsParsed)
	metrics.RecordRows(job, "malformed", q.Malformed)
	var casts int64
	for _, n := range q.CastFailures {
		casts += n
	}
	metrics.RecordRows(job, "cast_failures", casts)
	var viols int64
	for _, n := range q.Violations {
		viols += n
	}
	metrics.RecordRows(job, "violations", viols)
	metrics.RecordRows(job, "rejected", q.RowsRejected)
	metrics.RecordRows(job, "cleaned", q.RowsCleaned)
	metrics.RecordRows(job, "persisted", q.RowsStored)
}
