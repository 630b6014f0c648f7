// Package config is the JSON model for one pipeline run. A document names
// the job, the source to pull the extract from, reader and clean and derive
// tuning, the sink for cleaned rows, and the report exports. cmd/flightetl
// decodes a file under configs/pipelines/, lints it with ValidatePipeline,
// and hands the result to the driver; nothing here touches the filesystem
// or the network.
//
// Example (trimmed):
//
//	{
//	  "job":    "flights-2015",
//	  "source": { "kind": "file", "file": { "path": "data/flights.csv" } },
//	  "reader": { "options": { "has_header": true, "encoding": "iso-8859-1" } },
//	  "clean":  { "policies": { "required_null": "reject" }, "dedup": true },
//	  "sink":   { "kind": "postgres", "db": { "dsn": "...", "table": "public.flights_clean" } }
//	}
package config

import "encoding/json"

// Pipeline describes one full run of the flight pipeline. It is the top-level
// object decoded from a pipeline file (e.g., configs/pipelines/*.json).
type Pipeline struct {
	// Job names the run for metrics labels and log lines. Required.
	Job string `json:"job"`

	// Source describes where the raw extract comes from (local file or HTTP).
	Source Source `json:"source"`

	// Reader configures how raw CSV bytes are turned into typed batches.
	Reader Reader `json:"reader"`

	// Clean configures the rule policies applied to each batch.
	Clean Clean `json:"clean"`

	// Derive configures computed columns (currently the month-to-season table).
	Derive Derive `json:"derive"`

	// Aggregate tunes the KPI report (ranking depth, route floor).
	Aggregate Aggregate `json:"aggregate"`

	// Sink describes where cleaned rows are written. Kind "none" (or an empty
	// kind) runs aggregation only.
	Sink Sink `json:"sink"`

	// Report selects optional report exports beyond the logged summary.
	Report  Report        `json:"report"`
	Runtime RuntimeConfig `json:"runtime"`
}

// RuntimeConfig tunes concurrency and batching. A zero value falls back to
// the matching environment variable (FLIGHTETL_WORKERS, FLIGHTETL_BATCH_SIZE,
// FLIGHTETL_CH_BUFFER) and then to the built-in default; a value set in the
// document always wins.
type RuntimeConfig struct {
	// Workers sets the clean/derive worker count. 0 or 1 selects the
	// sequential path, which preserves batch order and rejected-row samples.
	Workers       int `json:"workers"`
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Source selects where the raw extract is pulled from.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string `json:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file"`

	// HTTP carries options for the "http" source kind.
	HTTP SourceHTTP `json:"http"`
}

// SourceFile holds configuration for the "file" source kind. Paths ending in
// .gz are decompressed transparently.
type SourceFile struct {
	// Path is the local filesystem path to the input extract.
	Path string `json:"path"`
}

// SourceHTTP holds configuration for the "http" source kind. The body is
// streamed straight into the reader; transient failures are retried with
// exponential backoff before the pipeline sees an error.
type SourceHTTP struct {
	URL string `json:"url"`

	// TimeoutSeconds bounds each attempt including the body read. 0 keeps the
	// client default.
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxRetries caps retry attempts after the first try. 0 disables
	// retries.
	MaxRetries int `json:"max_retries"`

	// InsecureSkipVerify disables TLS certificate verification. Intended for
	// internal mirrors with self-signed certificates only.
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// Reader wraps the options bag interpreted by the CSV reader.
type Reader struct {
	// Options is a free-form map. Recognized keys:
	//   has_header (bool), comma (string), encoding (string),
	//   trim_space (bool), lazy_quotes (bool), header_map (object),
	//   max_malformed_fraction (number)
	Options Options `json:"options"`
}

// Clean tunes the rule engine applied between the reader and the deriver.
type Clean struct {
	// Policies overrides the per-rule defaults. Keys are rule names
	// (required_null, cancelled_no_reason, cancelled_residuals,
	// reason_without_cancel, cause_without_delay, duplicate_row); values are
	// "coerce", "reject", or "reject_batch".
	Policies map[string]string `json:"policies"`

	// MaxViolationFraction is the per-batch limit for reject_batch rules.
	// 0 keeps the default.
	MaxViolationFraction float64 `json:"max_violation_fraction"`

	// Dedup enables in-batch duplicate-row detection. Duplicates in the
	// published extracts are overwhelmingly adjacent, so the window catches
	// them without a run-wide seen set.
	Dedup bool `json:"dedup"`

	// SampleLimit caps rejected-row samples kept for the quality report.
	// 0 keeps the default; negative disables sampling.
	SampleLimit int `json:"sample_limit"`
}

// Derive configures computed columns.
type Derive struct {
	// SeasonMapping overrides the northern-hemisphere month-to-season table.
	// Keys are month numbers or English names ("1", "january"); values are
	// season names ("winter", "spring", "summer", "autumn"/"fall").
	SeasonMapping map[string]string `json:"season_mapping"`
}

// Aggregate tunes the KPI report.
type Aggregate struct {
	// TopN is the ranking depth for route tables. 0 keeps the default.
	TopN int `json:"top_n"`

	// MinRouteFlights is the volume floor below which a route is excluded
	// from the mean-delay ranking. 0 keeps the default.
	MinRouteFlights int `json:"min_route_flights"`
}

// Sink selects where cleaned rows are persisted.
type Sink struct {
	// Kind selects the storage backend: "sqlite", "postgres", "mysql",
	// "mssql", or "none". Empty means "none".
	Kind string `json:"kind"`

	// DB carries the connection settings shared by the database kinds.
	DB DBConfig `json:"db"`
}

// DBConfig configures the database sink. Destination columns are not
// configurable; they always follow the flight schema registry.
type DBConfig struct {
	// DSN is the backend-specific connection string.
	DSN string `json:"dsn"`

	// Table is the destination table name (qualified where the backend
	// expects it, e.g. "public.flights_clean").
	Table string `json:"table"`

	// AutoCreateTable issues CREATE TABLE IF NOT EXISTS before the first
	// batch, with column types derived from the schema registry.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Report selects optional exports of the KPI and quality report.
type Report struct {
	// JSONPath, when set, writes the canonical JSON report document there.
	JSONPath string `json:"json_path"`

	// XLSXPath, when set, writes a workbook with Summary, Routes, Airlines,
	// Monthly, and Causes sheets there.
	XLSXPath string `json:"xlsx_path"`
}

// Options fetches typed values out of a decoded JSON map. JSON hands every
// number over as float64, so the accessors coerce where that forces them to
// and return the caller's default when a key is absent or the wrong shape.
// The reader's open-ended options block decodes into this map rather than a
// struct.
type Options map[string]any

// String reads key as a string, def when absent or another type.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool reads key as a bool, def when absent or another type.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int reads key as an int. encoding/json delivers every number as float64,
// so both float64 and int are accepted; anything else yields def.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Float reads key as a float64. Plain int is accepted too, for Options maps
// assembled in code rather than decoded.
func (o Options) Float(key string, def float64) float64 {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

// Rune takes the first rune of the string at key, def when the key is absent
// or the string empty. Single-character reader settings like the delimiter
// and the quote come through here.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap reads key as an object of string values, dropping entries of any
// other type. The result is never nil; an absent key yields an empty map.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice reads key as an array of strings, skipping non-string elements.
// An absent key yields nil, which keeps "unspecified" distinguishable from an
// explicit empty list.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any hands back the raw decoded value at key, nil when absent. Nested
// blocks arrive as map[string]any or []any for the caller to interpret.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a null or missing options object into a non-nil
// empty map, so lookups on a sparse document behave exactly like lookups on
// a fully spelled one.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
