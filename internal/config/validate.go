// Static checks over a decoded Pipeline. A mistyped policy name or an
// unsupported encoding should fail before the run touches a multi-gigabyte
// extract, not twenty minutes into it.
package config

import (
	"fmt"
	"strings"

	"flightetl/internal/clean"
	"flightetl/internal/derive"
)

// IssueSeverity splits findings into those that block a run and those that
// only deserve a mention.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one validation finding. Path points into the document the way
// the JSON spells it ("sink.kind", "clean.policies.required_null").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidatePipeline lints p without mutating it. The caller decides what to
// do with the findings; cmd/flightetl prints every issue, refuses to run on
// errors, and runs through warnings.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; metrics grouping and report labels key off it",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateReader(p.Reader)...)
	issues = append(issues, validateClean(p.Clean)...)
	issues = append(issues, validateDerive(p.Derive)...)
	issues = append(issues, validateAggregate(p.Aggregate)...)
	issues = append(issues, validateSink(p.Sink)...)
	issues = append(issues, validateReport(p.Report)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	// An unrecognized kind is only a warning; the driver has the final say
	// on what it can open.
	known := map[string]struct{}{
		"file": {},
		"http": {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; the driver decides whether it can open one", s.Kind),
		})
	}

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		if strings.TrimSpace(s.HTTP.URL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  "http source requires a non-empty url",
			})
		}
		if s.HTTP.TimeoutSeconds < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.timeout_seconds",
				Message:  "timeout_seconds must not be negative",
			})
		}
		if s.HTTP.MaxRetries < 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.http.max_retries",
				Message:  fmt.Sprintf("max_retries=%d; negative values are treated as 0 (no retries)", s.HTTP.MaxRetries),
			})
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.http.insecure_skip_verify",
				Message:  "TLS verification is disabled; use only against internal mirrors",
			})
		}
	}

	return issues
}

// validateReader validates the CSV reader options bag.
func validateReader(r Reader) []Issue {
	var issues []Issue
	o := r.Options

	// Encoding must be one the reader can decode; anything else fails the run
	// on the first byte.
	enc := strings.ToLower(strings.TrimSpace(o.String("encoding", "")))
	switch enc {
	case "", "utf-8", "utf8", "iso-8859-1", "iso8859-1", "latin-1", "latin1", "windows-1252", "cp1252":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "reader.options.encoding",
			Message:  fmt.Sprintf("unsupported encoding %q; supported: utf-8, iso-8859-1, windows-1252", enc),
		})
	}

	if comma := o.String("comma", ","); len([]rune(comma)) > 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "reader.options.comma",
			Message:  fmt.Sprintf("comma %q has more than one character; only the first rune is used", comma),
		})
	}

	if f := o.Float("max_malformed_fraction", 0); f < 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "reader.options.max_malformed_fraction",
			Message:  fmt.Sprintf("max_malformed_fraction=%g; negative values fall back to the default", f),
		})
	}

	// header_map only applies when the first line is a header.
	if hm := o.Any("header_map"); hm != nil && !o.Bool("has_header", false) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "reader.options.header_map",
			Message:  "header_map is ignored when has_header is false; columns are mapped by position",
		})
	}

	return issues
}

// validateClean validates rule policies against the rule engine's vocabulary.
func validateClean(c Clean) []Issue {
	var issues []Issue

	for rule, policy := range c.Policies {
		path := "clean.policies." + rule
		if _, err := clean.ParseRule(rule); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  err.Error(),
			})
			continue
		}
		if _, err := clean.ParsePolicy(policy); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  err.Error(),
			})
		}
	}

	if c.MaxViolationFraction < 0 || c.MaxViolationFraction > 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "clean.max_violation_fraction",
			Message: fmt.Sprintf("max_violation_fraction=%g is outside [0,1]; 0 keeps the default, values above 1 never trip",
				c.MaxViolationFraction),
		})
	}

	return issues
}

// validateDerive validates the season mapping by running it through the same
// parser the deriver uses.
func validateDerive(d Derive) []Issue {
	var issues []Issue

	if len(d.SeasonMapping) > 0 {
		if _, err := derive.ParseSeasonMap(d.SeasonMapping); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "derive.season_mapping",
				Message:  err.Error(),
			})
		}
	}

	return issues
}

// validateAggregate validates report tuning knobs.
func validateAggregate(a Aggregate) []Issue {
	var issues []Issue

	if a.TopN < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "aggregate.top_n",
			Message:  "top_n must not be negative",
		})
	}
	if a.MinRouteFlights < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "aggregate.min_route_flights",
			Message:  "min_route_flights must not be negative",
		})
	}

	return issues
}

func validateSink(s Sink) []Issue {
	var issues []Issue

	// An empty kind selects the built-in "none" sink; that is a legitimate
	// aggregate-only run, but worth surfacing.
	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.kind",
			Message:  `sink.kind is empty; defaulting to "none" (cleaned rows will not be persisted)`,
		})
		return issues
	}

	known := map[string]struct{}{
		"none":     {},
		"sqlite":   {},
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.kind",
			Message:  fmt.Sprintf("unknown sink kind %q; no built-in backend answers to it", s.Kind),
		})
	}

	// DB-specific checks apply to every kind that actually opens a database.
	if s.Kind == "none" {
		return issues
	}
	db := s.DB
	if strings.TrimSpace(db.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.db.dsn",
			Message:  "sink.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(db.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.db.table",
			Message:  "sink.db.table must not be empty",
		})
	}

	return issues
}

// validateReport validates export paths.
func validateReport(r Report) []Issue {
	var issues []Issue

	if p := strings.TrimSpace(r.XLSXPath); p != "" && !strings.HasSuffix(strings.ToLower(p), ".xlsx") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "report.xlsx_path",
			Message:  fmt.Sprintf("xlsx_path %q does not end in .xlsx; downstream tooling may not open it", p),
		})
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; non-positive batch sizes fall back to the default", r.BatchSize),
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must not be negative",
		})
	}

	return issues
}
