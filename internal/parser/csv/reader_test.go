package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"flightetl/internal/flight"
	"flightetl/internal/schema"

	"golang.org/x/text/encoding/charmap"
)

// fakeRC is a small io.ReadCloser over a byte slice that records Close calls,
// so tests can verify the reader owns and releases its source.
type fakeRC struct {
	*bytes.Reader
	closed bool
}

func newFakeRC(b []byte) *fakeRC { return &fakeRC{Reader: bytes.NewReader(b)} }
func (f *fakeRC) Close() error   { f.closed = true; return nil }

// flightHeader returns the published 31-column header in dictionary order,
// upper-cased the way the carrier ships it.
func flightHeader() []string {
	r := schema.Flights()
	base := r.Base()
	hdr := make([]string, len(base))
	for i, d := range base {
		hdr[i] = strings.ToUpper(d.Name)
	}
	return hdr
}

// flightRow builds one 31-cell row from a sparse set of overrides keyed by
// canonical column name. Unset cells default to a plausible on-time flight.
func flightRow(overrides map[string]string) []string {
	defaults := map[string]string{
		"year": "2015", "month": "6", "day": "15", "day_of_week": "1",
		"airline": "AA", "flight_number": "100", "tail_number": "N001AA",
		"origin_airport": "JFK", "destination_airport": "LAX",
		"scheduled_departure": "0900", "departure_time": "0905",
		"departure_delay": "5", "taxi_out": "15", "wheels_off": "0920",
		"scheduled_time": "360", "elapsed_time": "355", "air_time": "330",
		"distance": "2475", "wheels_on": "1150", "taxi_in": "10",
		"scheduled_arrival": "1200", "arrival_time": "1205",
		"arrival_delay": "5", "diverted": "0", "cancelled": "0",
		"cancellation_reason": "", "air_system_delay": "", "security_delay": "",
		"airline_delay": "", "late_aircraft_delay": "", "weather_delay": "",
	}
	for k, v := range overrides {
		defaults[k] = v
	}
	base := schema.Flights().Base()
	row := make([]string, len(base))
	for i, d := range base {
		row[i] = defaults[d.Name]
	}
	return row
}

func makeCSV(header []string, rows [][]string) []byte {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	if header != nil {
		_ = w.Write(header)
	}
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	return b.Bytes()
}

// stream runs StreamBatches to completion, collecting batches from a
// generously buffered channel so the producer never blocks.
func stream(t *testing.T, data []byte, opt Options) ([]*flight.Batch, Totals, error) {
	t.Helper()
	out := make(chan *flight.Batch, 64)
	totals, err := StreamBatches(context.Background(), io.NopCloser(bytes.NewReader(data)), schema.Flights(), opt, out, nil)
	close(out)
	var batches []*flight.Batch
	for b := range out {
		batches = append(batches, b)
	}
	return batches, totals, err
}

func freeAll(batches []*flight.Batch) {
	for _, b := range batches {
		b.Free()
	}
}

func TestStreamBatchesHappyPath(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		flightRow(nil),
		flightRow(map[string]string{"airline": "DL", "arrival_delay": "-7", "tail_number": ""}),
		flightRow(map[string]string{
			"cancelled": "1", "cancellation_reason": "B",
			"departure_time": "", "arrival_time": "", "arrival_delay": "",
		}),
	}
	data := makeCSV(flightHeader(), rows)

	batches, totals, err := stream(t, data, Options{HasHeader: true, TrimSpace: true, BatchSize: 10})
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)

	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	b := batches[0]
	if b.Len() != 3 {
		t.Fatalf("batch rows = %d, want 3", b.Len())
	}
	if totals.Rows != 3 || totals.Lines != 3 || totals.Malformed != 0 || totals.Batches != 1 {
		t.Fatalf("totals = %+v, want rows=3 lines=3 malformed=0 batches=1", totals)
	}
	if len(totals.CastFailures) != 0 {
		t.Fatalf("CastFailures = %v, want none", totals.CastFailures)
	}

	if b.Airline[0] != "AA" || b.Airline[1] != "DL" {
		t.Fatalf("airline column = %q,%q", b.Airline[0], b.Airline[1])
	}
	if b.Year[0] != 2015 || b.SchedDep[0] != 900 || b.Distance[0] != 2475 {
		t.Fatalf("row 0 casts wrong: year=%d sched_dep=%d distance=%d", b.Year[0], b.SchedDep[0], b.Distance[0])
	}
	if b.ArrDelay[1] != -7 {
		t.Fatalf("ArrDelay[1] = %v, want -7", b.ArrDelay[1])
	}
	if b.TailNumber[1] != "" {
		t.Fatalf("empty tail number should stay empty, got %q", b.TailNumber[1])
	}
	if !b.Cancelled.Has(2) || b.Reason[2] != flight.ReasonWeather {
		t.Fatalf("row 2 cancellation: cancelled=%v reason=%v", b.Cancelled.Has(2), b.Reason[2])
	}
	if b.DepTime[2] != flight.NullInt16 || !flight.IsNullF32(b.ArrDelay[2]) {
		t.Fatalf("row 2 empty cells should be sentinels: dep_time=%d", b.DepTime[2])
	}
	// Line numbers are 1-based source lines; header is line 1.
	if b.Lines[0] != 2 || b.Lines[2] != 4 {
		t.Fatalf("Lines = %v, want [2 3 4]", b.Lines[:3])
	}
}

func TestStreamBatchesSplitsAtBatchSize(t *testing.T) {
	t.Parallel()

	var rows [][]string
	for i := 0; i < 7; i++ {
		rows = append(rows, flightRow(map[string]string{"day": fmt.Sprint(i + 1)}))
	}
	data := makeCSV(flightHeader(), rows)

	batches, totals, err := stream(t, data, Options{HasHeader: true, TrimSpace: true, BatchSize: 3})
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)

	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3 (3+3+1)", len(batches))
	}
	if got := []int{batches[0].Len(), batches[1].Len(), batches[2].Len()}; got[0] != 3 || got[1] != 3 || got[2] != 1 {
		t.Fatalf("batch sizes = %v, want [3 3 1]", got)
	}
	if totals.Rows != 7 || totals.Batches != 3 {
		t.Fatalf("totals = %+v, want rows=7 batches=3", totals)
	}
	// Partial last batch preserves order end-to-end.
	if batches[2].Day[0] != 7 {
		t.Fatalf("last row day = %d, want 7", batches[2].Day[0])
	}
}

func TestStreamBatchesCastFailuresFallToSentinels(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		flightRow(map[string]string{
			"arrival_delay":  "not-a-number",
			"departure_time": "9999", // outside HHMM range
			"month":          "13",   // outside declared range
			"weather_delay":  "-5",   // cause minutes are non-negative
		}),
		flightRow(map[string]string{"departure_time": "2354.0"}), // pandas float form
	}
	data := makeCSV(flightHeader(), rows)

	batches, totals, err := stream(t, data, Options{HasHeader: true, TrimSpace: true, BatchSize: 10})
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)

	b := batches[0]
	if !flight.IsNullF32(b.ArrDelay[0]) {
		t.Fatalf("unparseable arrival_delay should be NaN sentinel")
	}
	if b.DepTime[0] != flight.NullInt16 {
		t.Fatalf("out-of-range departure_time = %d, want sentinel", b.DepTime[0])
	}
	if b.Month[0] != flight.NullInt8 {
		t.Fatalf("month 13 = %d, want sentinel", b.Month[0])
	}
	if !flight.IsNullF32(b.WeatherDelay[0]) {
		t.Fatalf("negative weather_delay should be sentinel")
	}
	if b.DepTime[1] != 2354 {
		t.Fatalf("departure_time 2354.0 = %d, want 2354", b.DepTime[1])
	}

	for _, col := range []string{"arrival_delay", "departure_time", "month", "weather_delay"} {
		if totals.CastFailures[col] != 1 {
			t.Fatalf("CastFailures[%s] = %d, want 1 (all: %v)", col, totals.CastFailures[col], totals.CastFailures)
		}
	}
}

func TestStreamBatchesMalformedRowsSkipped(t *testing.T) {
	t.Parallel()

	good := makeCSV(flightHeader(), [][]string{flightRow(nil), flightRow(nil), flightRow(nil)})
	// Splice in a short line between data rows.
	lines := bytes.Split(bytes.TrimSuffix(good, []byte("\n")), []byte("\n"))
	var buf bytes.Buffer
	buf.Write(lines[0])
	buf.WriteByte('\n')
	buf.Write(lines[1])
	buf.WriteString("\nAA,only,three\n")
	buf.Write(lines[2])
	buf.WriteByte('\n')
	buf.Write(lines[3])
	buf.WriteByte('\n')

	var sawLines []int
	out := make(chan *flight.Batch, 8)
	totals, err := StreamBatches(context.Background(), io.NopCloser(bytes.NewReader(buf.Bytes())), schema.Flights(),
		Options{HasHeader: true, TrimSpace: true, BatchSize: 10, MaxMalformedFraction: 0.5},
		out, func(line int, err error) { sawLines = append(sawLines, line) })
	close(out)
	var batches []*flight.Batch
	for b := range out {
		batches = append(batches, b)
	}
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)

	if totals.Rows != 3 || totals.Malformed != 1 || totals.Lines != 4 {
		t.Fatalf("totals = %+v, want rows=3 malformed=1 lines=4", totals)
	}
	if len(sawLines) != 1 || sawLines[0] != 3 {
		t.Fatalf("onErr lines = %v, want [3]", sawLines)
	}
}

func TestStreamBatchesMalformedFractionAborts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write(makeCSV(flightHeader(), [][]string{flightRow(nil)}))
	for i := 0; i < 9; i++ {
		buf.WriteString("garbage,row\n")
	}

	_, totals, err := stream(t, buf.Bytes(), Options{HasHeader: true, TrimSpace: true, BatchSize: 100, MaxMalformedFraction: 0.01})
	var sfe *SourceFormatError
	if !errors.As(err, &sfe) {
		t.Fatalf("err = %v, want *SourceFormatError", err)
	}
	if sfe.Malformed != 9 || sfe.Scanned != 10 {
		t.Fatalf("SourceFormatError = %+v, want malformed=9 scanned=10", sfe)
	}
	if totals.Malformed != 9 {
		t.Fatalf("totals.Malformed = %d, want 9", totals.Malformed)
	}
}

func TestStreamBatchesSchemaDrift(t *testing.T) {
	t.Parallel()

	hdr := flightHeader()
	hdr[2] = "MYSTERY" // replaces DAY

	_, _, err := stream(t, makeCSV(hdr, [][]string{flightRow(nil)}), Options{HasHeader: true, BatchSize: 10})
	var drift *schema.DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("err = %v, want *schema.DriftError", err)
	}
	if len(drift.Unknown) != 1 || drift.Unknown[0] != "mystery" {
		t.Fatalf("Unknown = %v, want [mystery]", drift.Unknown)
	}
	if len(drift.Missing) != 1 || drift.Missing[0] != schema.ColDay {
		t.Fatalf("Missing = %v, want [day]", drift.Missing)
	}
}

func TestStreamBatchesHeaderMapAndBOM(t *testing.T) {
	t.Parallel()

	hdr := flightHeader()
	hdr[0] = "\ufeff" + hdr[0] // BOM on first cell
	hdr[4] = "CARRIER"         // renamed AIRLINE, mapped back via HeaderMap

	data := makeCSV(hdr, [][]string{flightRow(nil)})
	batches, _, err := stream(t, data, Options{
		HasHeader: true,
		TrimSpace: true,
		BatchSize: 10,
		HeaderMap: map[string]string{"CARRIER": schema.ColAirline},
	})
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)

	if batches[0].Airline[0] != "AA" {
		t.Fatalf("Airline[0] = %q, want AA", batches[0].Airline[0])
	}
}

func TestStreamBatchesHeaderOnlyFile(t *testing.T) {
	t.Parallel()

	batches, totals, err := stream(t, makeCSV(flightHeader(), nil), Options{HasHeader: true, BatchSize: 10})
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)
	if len(batches) != 0 || totals.Rows != 0 || totals.Batches != 0 {
		t.Fatalf("header-only file: batches=%d totals=%+v, want zero everything", len(batches), totals)
	}
}

func TestStreamBatchesLatin1Decoding(t *testing.T) {
	t.Parallel()

	raw := makeCSV(flightHeader(), [][]string{flightRow(map[string]string{"tail_number": "N-ÜBER"})})
	enc, err := charmap.ISO8859_1.NewEncoder().Bytes(raw)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	batches, _, err := stream(t, enc, Options{HasHeader: true, TrimSpace: true, BatchSize: 10, Encoding: "iso-8859-1"})
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)

	if got := batches[0].TailNumber[0]; got != "N-ÜBER" {
		t.Fatalf("TailNumber = %q, want N-ÜBER", got)
	}
}

func TestStreamBatchesUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	_, _, err := stream(t, makeCSV(flightHeader(), nil), Options{HasHeader: true, Encoding: "ebcdic"})
	if err == nil || !strings.Contains(err.Error(), "unsupported encoding") {
		t.Fatalf("err = %v, want unsupported encoding", err)
	}
}

func TestStreamBatchesCancelBetweenRows(t *testing.T) {
	t.Parallel()

	var rows [][]string
	for i := 0; i < 50; i++ {
		rows = append(rows, flightRow(nil))
	}
	data := makeCSV(flightHeader(), rows)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *flight.Batch) // unbuffered: producer must block

	src := newFakeRC(data)
	done := make(chan error, 1)
	go func() {
		_, err := StreamBatches(ctx, src, schema.Flights(), Options{HasHeader: true, BatchSize: 5}, out, nil)
		done <- err
	}()

	// Take one batch, then cancel while the reader is mid-stream.
	b := <-out
	b.Free()
	cancel()

	// Drain anything emitted before cancellation won the race.
	for {
		select {
		case b := <-out:
			b.Free()
			continue
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("err = %v, want context.Canceled", err)
			}
			if !src.closed {
				t.Fatalf("source not closed after cancel")
			}
			return
		}
	}
}

func TestStreamBatchesFlagNullTracking(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		flightRow(map[string]string{"cancelled": ""}),
		flightRow(map[string]string{"diverted": "maybe"}),
		flightRow(nil),
	}
	data := makeCSV(flightHeader(), rows)

	batches, totals, err := stream(t, data, Options{HasHeader: true, TrimSpace: true, BatchSize: 10})
	if err != nil {
		t.Fatalf("StreamBatches: %v", err)
	}
	defer freeAll(batches)

	b := batches[0]
	if !b.FlagNull.Has(0) {
		t.Fatalf("empty cancelled cell should set FlagNull")
	}
	if !b.FlagNull.Has(1) {
		t.Fatalf("unparseable diverted cell should set FlagNull")
	}
	if b.FlagNull.Has(2) {
		t.Fatalf("clean row should not set FlagNull")
	}
	if totals.CastFailures[schema.ColDiverted] != 1 {
		t.Fatalf("CastFailures[diverted] = %d, want 1", totals.CastFailures[schema.ColDiverted])
	}
	// An empty cell is a null, not a cast failure.
	if totals.CastFailures[schema.ColCancelled] != 0 {
		t.Fatalf("CastFailures[cancelled] = %d, want 0", totals.CastFailures[schema.ColCancelled])
	}
}
