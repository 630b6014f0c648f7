// Package probe samples the head of a flight extract and reports how its
// header and values line up with the declared dictionary, before anyone
// commits to a full multi-gigabyte run.
//
// The probe answers three questions about a candidate file:
//
//  1. Does the header match the flight dictionary, after the same
//     normalization the reader applies?
//  2. When it does not, which header_map renames would fix it?
//  3. Do the sampled values look like the kinds the dictionary declares?
//
// Sampling reads at most MaxBytes from the source (HTTP Range plus a
// client-side limit for remote files, a plain read limit for local ones) and
// drops the trailing partial row, so probing a 5 GB extract costs one small
// request.
package probe

import (
	"bytes"
	"compress/gzip"
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"flightetl/internal/datasource/file"
	"flightetl/internal/datasource/httpds"
	"flightetl/internal/parser/csv"
	"flightetl/internal/schema"
)

// Options configures one probe.
type Options struct {
	// Source is a local path, a file:// URL, or an http(s):// URL. Sources
	// whose path ends in .gz are decompressed transparently, in which case
	// MaxBytes caps the decompressed sample.
	Source string

	// MaxBytes caps the sample size. Default 64 KiB.
	MaxBytes int

	// Comma is the field delimiter. Default ','.
	Comma rune

	// HeaderMap carries renames already configured for the reader, so the
	// probe judges the header the way a real run would.
	HeaderMap map[string]string

	// Timeout bounds each HTTP request. 0 keeps the client default.
	Timeout time.Duration

	// Insecure skips TLS certificate verification for HTTP sources.
	Insecure bool
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = 64 * 1024
	}
	if o.Comma == 0 {
		o.Comma = ','
	}
	return o
}

// Column describes one sampled header cell and how it relates to the
// dictionary.
type Column struct {
	Header   string `json:"header"`             // raw cell as sampled
	Name     string `json:"name"`               // canonical name after normalization and renames
	Known    bool   `json:"known"`              // declared input column
	Declared string `json:"declared,omitempty"` // dictionary kind, empty for unknown columns
	Inferred string `json:"inferred,omitempty"` // kind guessed from the sampled values
	Suggest  string `json:"suggest,omitempty"`  // dictionary name this column probably means

	// Mismatch marks a known column whose sampled values do not look like
	// the declared kind, such as letters in a minutes column.
	Mismatch bool `json:"mismatch,omitempty"`
}

// Report is the probe verdict for one source.
type Report struct {
	Source     string   `json:"source"`
	SampleSize int      `json:"sample_size"` // bytes examined after dropping the partial tail
	Rows       int      `json:"rows"`        // complete data rows in the sample
	Columns    []Column `json:"columns"`

	// Drift is nil when the header matches the dictionary exactly.
	Drift *schema.DriftError `json:"drift,omitempty"`

	// HeaderMap holds suggested reader renames, keyed by the raw header cell
	// the reader will see. Merging it into reader.options.header_map fixes
	// every unknown column the probe could resolve.
	HeaderMap map[string]string `json:"header_map,omitempty"`
}

// Drifted reports whether the sampled header deviates from the dictionary.
func (r *Report) Drifted() bool { return r.Drift != nil }

// Run samples the source and diagnoses it against the flight dictionary.
// A non-nil error means the probe itself failed; a drifting header is a
// successful probe with r.Drifted() == true.
func Run(ctx context.Context, o Options) (*Report, error) {
	o = o.withDefaults()
	if o.Source == "" {
		return nil, errors.New("probe: source must not be empty")
	}

	raw, err := peek(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", o.Source, err)
	}
	sample := trimPartialLine(raw, o.MaxBytes)
	if len(sample) == 0 {
		return nil, fmt.Errorf("sample %s: no complete line in the first %d bytes", o.Source, o.MaxBytes)
	}

	header, rows, err := readSample(sample, o.Comma)
	if err != nil {
		return nil, fmt.Errorf("parse sample: %w", err)
	}

	rep := &Report{
		Source:     o.Source,
		SampleSize: len(sample),
		Rows:       len(rows),
	}
	diagnose(rep, header, rows, o.HeaderMap)
	return rep, nil
}

// peek fetches up to o.MaxBytes from the source. HTTP sources get a single
// Range request through the datasource client; everything else is treated as
// a local path.
func peek(ctx context.Context, o Options) ([]byte, error) {
	if strings.HasPrefix(o.Source, "http://") || strings.HasPrefix(o.Source, "https://") {
		client := httpds.NewClient(httpds.Config{
			Timeout:            o.Timeout,
			InsecureSkipVerify: o.Insecure,
		})
		raw, err := client.FetchFirstBytes(ctx, o.Source, o.MaxBytes)
		if err != nil {
			return nil, err
		}
		return gunzipHead(raw, o.Source, o.MaxBytes)
	}

	src := file.NewLocal(strings.TrimPrefix(o.Source, "file://"))
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(&io.LimitedReader{R: rc, N: int64(o.MaxBytes)})
}

// gunzipHead inflates a sampled head when the source path names a gzip
// stream. Local .gz sources inflate on the fly inside the file source, but a
// Range request fetches compressed bytes and usually cuts the stream
// mid-block, so inflation here is expected to fail at the tail. Whatever
// inflated cleanly is kept, trimmed to the last whole line when the stream
// was cut, and capped at max so the byte budget means the same thing for
// plain and compressed sources.
func gunzipHead(raw []byte, source string, max int) ([]byte, error) {
	if !strings.HasSuffix(strings.ToLower(sourcePath(source)), ".gz") {
		return raw, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gunzip %s: %w", source, err)
	}
	defer gz.Close()

	out := make([]byte, 0, max)
	buf := make([]byte, 32*1024)
	for len(out) < max {
		n, rerr := gz.Read(buf)
		if n > 0 {
			if n > max-len(out) {
				n = max - len(out)
			}
			out = append(out, buf[:n]...)
		}
		if rerr == io.EOF {
			// The whole compressed stream fit inside the sample.
			return out, nil
		}
		if rerr != nil {
			// The sample cut the stream; drop the half-inflated tail row.
			if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
				return out[:i+1], nil
			}
			return nil, fmt.Errorf("gunzip %s: no complete line inflated, raise the byte budget", source)
		}
	}
	return out, nil
}

// sourcePath strips the query string so gzip sniffing sees only the path.
func sourcePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// trimPartialLine drops the truncated row a byte-capped sample almost always
// ends with. A sample shorter than the cap was read to EOF and is complete as
// is. A full-cap sample without any newline is all tail and yields nothing.
func trimPartialLine(data []byte, maxBytes int) []byte {
	if len(data) < maxBytes {
		return data
	}
	i := bytes.LastIndexByte(data, '\n')
	if i < 0 {
		return nil
	}
	return data[:i+1]
}

// maxSampleRows caps type-inference work however large the byte budget is.
const maxSampleRows = 1000

// readSample parses the sample tolerantly: variable field counts are allowed,
// unparsable lines are skipped, and data rows whose width differs from the
// header are dropped so column indexes stay aligned.
func readSample(data []byte, comma rune) ([]string, [][]string, error) {
	cr := stdcsv.NewReader(bytes.NewReader(data))
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var header []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, nil, errors.New("no header line in sample")
		}
		if err != nil || len(rec) == 0 {
			continue
		}
		header = rec
		break
	}

	want := len(header)
	var rows [][]string
	for len(rows) < maxSampleRows {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) != want {
			continue
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// diagnose fills the schema comparison: canonical names, drift, per-column
// kinds, and rename suggestions for unknown columns.
func diagnose(rep *Report, header []string, rows [][]string, renames map[string]string) {
	reg := schema.Flights()
	names := csv.NormalizeHeader(header, renames)

	if err := reg.CheckHeader(names); err != nil {
		var drift *schema.DriftError
		if errors.As(err, &drift) {
			rep.Drift = drift
		}
	}

	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	rep.Columns = make([]Column, len(header))
	for i, h := range header {
		col := Column{
			Header:   h,
			Name:     names[i],
			Inferred: inferKind(columnValues(rows, i)),
		}
		if d, err := reg.Describe(col.Name); err == nil && !d.Derived {
			col.Known = true
			col.Declared = d.Kind.String()
			col.Mismatch = col.Inferred != "" && !kindsAgree(col.Declared, col.Inferred)
		} else if want, ok := suggestName(reg, col.Name, present); ok {
			col.Suggest = want
			if rep.HeaderMap == nil {
				rep.HeaderMap = make(map[string]string)
			}
			rep.HeaderMap[renameKey(h, i)] = want
		}
		rep.Columns[i] = col
	}
}

// renameKey returns the header cell as the reader's rename lookup will see
// it: edge whitespace trimmed, BOM stripped from the first cell.
func renameKey(h string, i int) string {
	h = strings.TrimSpace(h)
	if i == 0 {
		h = strings.TrimPrefix(h, "\ufeff")
	}
	return h
}

// columnValues gathers the sampled values at index i.
func columnValues(rows [][]string, i int) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if i < len(r) {
			out = append(out, r[i])
		}
	}
	return out
}
