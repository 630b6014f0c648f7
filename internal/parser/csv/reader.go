// Package csv implements the chunked reader: it streams a delimited flight
// extract into pooled columnar batches, casting every cell against the
// declared schema as it goes. Downstream stages never see raw text.
//
// Design goals, inherited from the rest of the pipeline:
//   - No whole-file buffering; batches flow via channels and the out
//     channel's capacity is the only lookahead.
//   - Per-column casting is compiled once per stream; the row loop does no
//     map lookups and no reflection.
//   - Bad cells degrade to null sentinels, bad lines are skipped and
//     counted, and only wholesale corruption aborts the stream.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"flightetl/internal/flight"
	"flightetl/internal/schema"
)

// Options tunes the chunked reader. Config wiring fills it from the
// pipeline's reader options bag; the zero value of the numeric knobs is
// replaced by defaults, the booleans are taken as-is.
type Options struct {
	BatchSize  int    // rows per emitted batch; default 100_000
	Comma      rune   // field delimiter; default ','
	Encoding   string // "utf-8" (default), "iso-8859-1", "windows-1252"
	HasHeader  bool   // first line is a header mapped by name
	HeaderMap  map[string]string
	LazyQuotes bool
	TrimSpace  bool

	// MaxMalformedFraction is the per-batch limit on structurally bad lines;
	// above it the source is presumed corrupt. Default 0.01; a value >= 1
	// disables the check.
	MaxMalformedFraction float64
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100_000
	}
	if o.Comma == 0 {
		o.Comma = ','
	}
	if o.MaxMalformedFraction <= 0 {
		o.MaxMalformedFraction = 0.01
	}
	return o
}

// Totals summarizes a completed or aborted stream.
type Totals struct {
	Lines        int64 // data lines scanned, header excluded
	Rows         int64 // rows handed downstream in batches
	Malformed    int64 // structurally bad lines skipped
	Batches      int64
	CastFailures map[string]int64 // cells that fell to a null sentinel, per column
}

// SourceFormatError aborts the stream when one batch's malformed-line
// fraction exceeds the configured limit. Past that point the file is presumed
// corrupt or mis-delimited rather than merely dirty, and continuing would
// silently mangle the dataset.
type SourceFormatError struct {
	Line      int   // source line at which the check tripped
	Malformed int64 // malformed lines within the offending batch window
	Scanned   int64 // lines scanned within that window
	Limit     float64
}

func (e *SourceFormatError) Error() string {
	return fmt.Sprintf("source format: %d of %d lines malformed by line %d, over limit %.4f",
		e.Malformed, e.Scanned, e.Line, e.Limit)
}

// StreamBatches reads src to EOF, emitting casted batches of up to
// opt.BatchSize rows on out. Ownership of each batch passes to the receiver;
// the reader frees only batches it never sent.
//
// Header handling: the first line is normalized (trim, BOM strip, lower-case,
// spaces to underscores), renamed via opt.HeaderMap, and checked against the
// registry's base columns. Any unknown, missing, or duplicate column aborts
// the stream with *schema.DriftError before a single row is read. Without a
// header, columns are taken positionally in registry order.
//
// onErr, when non-nil, receives each skipped malformed line (soft errors
// only; fatal errors come back as the return value).
func StreamBatches(
	ctx context.Context,
	src io.ReadCloser,
	reg *schema.Registry,
	opt Options,
	out chan<- *flight.Batch,
	onErr func(line int, err error),
) (Totals, error) {
	defer src.Close()
	opt = opt.withDefaults()

	var totals Totals

	r, err := decodeReader(src, opt.Encoding)
	if err != nil {
		return totals, err
	}

	cr := csv.NewReader(r)
	cr.Comma = opt.Comma
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	// FieldsPerRecord stays 0: the header (or first row) fixes the width and
	// short/long rows surface as csv.ErrFieldCount, matching the malformed
	// accounting below.

	base := reg.Base()
	plan, err := compileCastPlan(base)
	if err != nil {
		return totals, err
	}
	failures := make([]int64, len(base))

	line := 0
	read := func() ([]string, error) { line++; return cr.Read() }

	// Build dest→source mapping.
	colIx := make([]int, len(base)) // colIx[target] = source index, or -1
	for i := range colIx {
		colIx[i] = -1
	}
	if opt.HasHeader {
		hdr, err := read()
		if err != nil {
			return totals, fmt.Errorf("read header: %w", err)
		}
		names := NormalizeHeader(hdr, opt.HeaderMap)
		if err := reg.CheckHeader(names); err != nil {
			return totals, err
		}
		srcToIdx := make(map[string]int, len(names))
		for i, h := range names {
			srcToIdx[h] = i
		}
		for t, d := range base {
			if si, ok := srcToIdx[d.Name]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range colIx {
			colIx[i] = i // positional
		}
	}

	const logEveryN = 50_000

	batch := flight.GetBatch(opt.BatchSize)
	var batchLines, batchMalformed int64

	// checkWindow enforces the malformed limit over the batch window just
	// scanned and resets the window counters.
	checkWindow := func() *SourceFormatError {
		if batchLines == 0 {
			return nil
		}
		frac := float64(batchMalformed) / float64(batchLines)
		defer func() { batchLines, batchMalformed = 0, 0 }()
		if frac > opt.MaxMalformedFraction {
			return &SourceFormatError{
				Line:      line,
				Malformed: batchMalformed,
				Scanned:   batchLines,
				Limit:     opt.MaxMalformedFraction,
			}
		}
		return nil
	}

	finishTotals := func() {
		m := make(map[string]int64)
		for i, n := range failures {
			if n > 0 {
				m[base[i].Name] = n
			}
		}
		totals.CastFailures = m
	}

	for {
		// cooperative cancel between rows
		select {
		case <-ctx.Done():
			batch.Free()
			finishTotals()
			return totals, ctx.Err()
		default:
		}

		rec, err := read()
		if err == io.EOF {
			if sfe := checkWindow(); sfe != nil {
				batch.Free()
				finishTotals()
				return totals, sfe
			}
			if batch.Len() > 0 {
				select {
				case out <- batch:
					totals.Rows += int64(batch.Len())
					totals.Batches++
				case <-ctx.Done():
					batch.Free()
					finishTotals()
					return totals, ctx.Err()
				}
			} else {
				batch.Free()
			}
			finishTotals()
			return totals, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				// Not a per-line parse problem; the underlying reader failed.
				batch.Free()
				finishTotals()
				return totals, fmt.Errorf("read line %d: %w", line, err)
			}
			totals.Lines++
			totals.Malformed++
			batchLines++
			batchMalformed++
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		totals.Lines++
		batchLines++

		row := batch.AppendRow(int32(line))
		for t := range base {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				if plan[t].bit {
					batch.FlagNull.Add(row)
				}
				continue
			}
			v := rec[si]
			if opt.TrimSpace && hasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				if plan[t].bit {
					batch.FlagNull.Add(row)
				}
				continue
			}
			if !plan[t].cast(batch, row, v) {
				failures[t]++
				if plan[t].bit {
					batch.FlagNull.Add(row)
				}
			}
		}

		if totals.Lines%logEveryN == 0 {
			log.Printf("reader: line=%d rows=%d batches=%d", line, totals.Rows+int64(batch.Len()), totals.Batches)
		}

		if batch.Len() >= opt.BatchSize {
			if sfe := checkWindow(); sfe != nil {
				batch.Free()
				finishTotals()
				return totals, sfe
			}
			select {
			case out <- batch:
				totals.Rows += int64(batch.Len())
				totals.Batches++
			case <-ctx.Done():
				batch.Free()
				finishTotals()
				return totals, ctx.Err()
			}
			batch = flight.GetBatch(opt.BatchSize)
		}
	}
}

func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[0] == '\t' || s[len(s)-1] == ' ' || s[len(s)-1] == '\t'
}
