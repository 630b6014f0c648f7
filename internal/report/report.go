// Package report defines the KPI document produced at the end of a run,
// plus its JSON, plain-text, and xlsx renderings. The struct is the contract
// with downstream consumers; field names are part of the output format.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Report is the full KPI document for one run. Partial marks a mid-run
// snapshot taken before the last batch was consumed; such a snapshot is
// internally consistent, just not complete.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Partial     bool      `json:"partial"`

	Totals       Totals       `json:"totals"`
	ArrivalDelay DelaySummary `json:"arrival_delay"`
	Cancellation Cancellation `json:"cancellation"`

	DelayCategories  map[string]int64 `json:"delay_categories"`
	DeparturePeriods map[string]int64 `json:"departure_periods"`
	DepartureHours   [24]int64        `json:"departure_hours"`

	CauseMinutes         []CauseStat `json:"delay_minutes_by_cause"`
	TopRoutesByVolume    []RouteStat `json:"top_routes_by_volume"`
	TopRoutesByMeanDelay []RouteStat `json:"top_routes_by_mean_delay"`

	Airlines []AirlineStat `json:"airlines"`
	Monthly  []MonthStat   `json:"monthly"`
	Seasonal []SeasonStat  `json:"seasonal"`

	Quality Quality `json:"quality"`
}

// Totals counts the rows that survived cleaning. OnTime and Delayed cover
// flown flights with a known arrival delay; their sum can be less than
// Flights when delays are unknown or the flight was cancelled.
type Totals struct {
	Flights     int64   `json:"flights"`
	Cancelled   int64   `json:"cancelled"`
	Diverted    int64   `json:"diverted"`
	OnTime      int64   `json:"on_time"`
	Delayed     int64   `json:"delayed"`
	OnTimeRatio float64 `json:"on_time_ratio"`
}

// DelaySummary describes an arrival-delay distribution in minutes. All
// fields are zero when Count is zero; none are ever NaN, so the struct is
// always JSON-encodable.
type DelaySummary struct {
	Count  int64   `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Cancellation breaks cancelled flights down by decoded reason name
// (carrier, weather, nas, security). Reasons holds only names that occurred.
type Cancellation struct {
	Count   int64            `json:"count"`
	Rate    float64          `json:"rate"`
	Reasons map[string]int64 `json:"reasons"`
}

// CauseStat attributes delay minutes to one published cause column.
type CauseStat struct {
	Cause   string  `json:"cause"`
	Minutes float64 `json:"minutes"`
	Flights int64   `json:"flights"`
	Share   float64 `json:"share"`
}

type RouteStat struct {
	Route     string  `json:"route"`
	Flights   int64   `json:"flights"`
	Cancelled int64   `json:"cancelled"`
	MeanDelay float64 `json:"mean_arrival_delay"`
}

type AirlineStat struct {
	Airline     string  `json:"airline"`
	Flights     int64   `json:"flights"`
	Cancelled   int64   `json:"cancelled"`
	OnTimeRatio float64 `json:"on_time_ratio"`
	MeanDelay   float64 `json:"mean_arrival_delay"`
}

type MonthStat struct {
	Month     int          `json:"month"`
	Flights   int64        `json:"flights"`
	Cancelled int64        `json:"cancelled"`
	Delay     DelaySummary `json:"arrival_delay"`
}

type SeasonStat struct {
	Season    string       `json:"season"`
	Flights   int64        `json:"flights"`
	Cancelled int64        `json:"cancelled"`
	Delay     DelaySummary `json:"arrival_delay"`
}

// Quality is the data-quality ledger for a run. It is filled by the driver
// from reader and cleaner tallies and is present on every report, including
// failed runs, so no dropped row goes unaccounted.
type Quality struct {
	LinesRead     int64            `json:"lines_read"`
	RowsParsed    int64            `json:"rows_parsed"`
	Malformed     int64            `json:"malformed"`
	CastFailures  map[string]int64 `json:"cast_failures,omitempty"`
	Violations    map[string]int64 `json:"rule_violations,omitempty"`
	RowsRejected  int64            `json:"rows_rejected"`
	CellsCoerced  int64            `json:"cells_coerced"`
	RowsCleaned   int64            `json:"rows_cleaned"`
	RowsStored    int64            `json:"rows_stored"`
	Batches       int64            `json:"batches"`
	Samples       []RejectedSample `json:"rejected_samples,omitempty"`
	FatalError    string           `json:"fatal_error,omitempty"`
}

// RejectedSample pins one rejected row to its source line for triage.
type RejectedSample struct {
	Line int32  `json:"line"`
	Rule string `json:"rule"`
}

// WriteJSON renders r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// SaveJSON writes the report to path, replacing any previous file.
func SaveJSON(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := WriteJSON(f, r); err != nil {
		f.Close()
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	return nil
}

// Text renders a human-readable summary for the run log.
func Text(r *Report) string {
	var b strings.Builder
	state := "final"
	if r.Partial {
		state = "partial"
	}
	fmt.Fprintf(&b, "run %s (%s)\n", r.RunID, state)
	fmt.Fprintf(&b, "  flights       %s (%s cancelled, %s diverted)\n",
		humanize.Comma(r.Totals.Flights),
		humanize.Comma(r.Totals.Cancelled),
		humanize.Comma(r.Totals.Diverted))
	fmt.Fprintf(&b, "  on-time ratio %.1f%%\n", r.Totals.OnTimeRatio*100)
	fmt.Fprintf(&b, "  arrival delay mean %.1f / median %.1f min (min %.0f, max %.0f)\n",
		r.ArrivalDelay.Mean, r.ArrivalDelay.Median, r.ArrivalDelay.Min, r.ArrivalDelay.Max)
	fmt.Fprintf(&b, "  cancellations %.2f%%", r.Cancellation.Rate*100)
	if len(r.Cancellation.Reasons) > 0 {
		names := make([]string, 0, len(r.Cancellation.Reasons))
		for name := range r.Cancellation.Reasons {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, humanize.Comma(r.Cancellation.Reasons[name])))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteByte('\n')
	for i, rt := range r.TopRoutesByVolume {
		if i == 0 {
			b.WriteString("  busiest routes:\n")
		}
		fmt.Fprintf(&b, "    %-11s %s flights, mean delay %.1f min\n",
			rt.Route, humanize.Comma(rt.Flights), rt.MeanDelay)
	}
	fmt.Fprintf(&b, "  quality: %s lines, %s cleaned, %s rejected, %s malformed\n",
		humanize.Comma(r.Quality.LinesRead),
		humanize.Comma(r.Quality.RowsCleaned),
		humanize.Comma(r.Quality.RowsRejected),
		humanize.Comma(r.Quality.Malformed))
	if r.Quality.FatalError != "" {
		fmt.Fprintf(&b, "  FAILED: %s\n", r.Quality.FatalError)
	}
	return b.String()
}
