package aggregate

import (
	"sort"
	"time"

	"flightetl/internal/flight"
	"flightetl/internal/report"
)

const (
	// DefaultTopN is the route-ranking length when the config leaves it unset.
	DefaultTopN = 10
	// DefaultMinRouteFlights keeps one-off routes out of the mean-delay
	// ranking, where a single 400-minute flight would otherwise top the list.
	DefaultMinRouteFlights = 30
)

// Options shape a snapshot. Zero fields fall back to the defaults above.
type Options struct {
	RunID           string
	TopN            int
	MinRouteFlights int
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.MinRouteFlights <= 0 {
		o.MinRouteFlights = DefaultMinRouteFlights
	}
	return o
}

// Finalize seals the accumulator and returns the complete report. Calling
// it again returns the same numbers; updates after sealing are a caller bug
// but are not detected here.
func (a *Accumulator) Finalize(opts Options) *report.Report {
	a.sealed = true
	return a.Snapshot(opts)
}

// Snapshot renders the current state without sealing it. Before Finalize
// the result is marked partial; it is still internally consistent, which is
// what makes mid-run progress reports safe.
func (a *Accumulator) Snapshot(opts Options) *report.Report {
	opts = opts.withDefaults()

	r := &report.Report{
		RunID:       opts.RunID,
		GeneratedAt: time.Now().UTC(),
		Partial:     !a.sealed,
	}

	ov := &a.overall
	r.Totals = report.Totals{
		Flights:     ov.flights,
		Cancelled:   ov.cancelled,
		Diverted:    ov.diverted,
		OnTime:      ov.onTime,
		Delayed:     ov.delayed,
		OnTimeRatio: ratio(ov.onTime, ov.onTime+ov.delayed),
	}
	r.ArrivalDelay = summary(ov, &a.hist)

	r.Cancellation = report.Cancellation{
		Count:   ov.cancelled,
		Rate:    ratio(ov.cancelled, ov.flights),
		Reasons: make(map[string]int64),
	}
	for re := flight.ReasonCarrier; re <= flight.ReasonSecurity; re++ {
		if c := a.reasons[re]; c > 0 {
			r.Cancellation.Reasons[re.String()] = c
		}
	}

	r.DelayCategories = make(map[string]int64, 6)
	for c := flight.CategoryOnTime; c <= flight.CategoryCancelled; c++ {
		r.DelayCategories[c.String()] = a.categories[c]
	}
	if unknown := a.categories[flight.CategoryNone]; unknown > 0 {
		r.DelayCategories["Unknown"] = unknown
	}

	r.DeparturePeriods = make(map[string]int64, 5)
	for p := flight.PeriodMorning; p <= flight.PeriodNight; p++ {
		r.DeparturePeriods[p.String()] = a.periods[p]
	}
	if unknown := a.periods[flight.PeriodNone]; unknown > 0 {
		r.DeparturePeriods["Unknown"] = unknown
	}

	r.DepartureHours = a.hours

	r.CauseMinutes = a.causeStats()
	r.TopRoutesByVolume, r.TopRoutesByMeanDelay = a.routeRankings(opts)
	r.Airlines = a.airlineStats()
	r.Monthly = a.monthlyStats()
	r.Seasonal = a.seasonalStats()

	return r
}

func (a *Accumulator) causeStats() []report.CauseStat {
	total := 0.0
	minutes := [numCauses]float64{}
	for c := 0; c < numCauses; c++ {
		minutes[c] = a.overall.causes[c].Value()
		total += minutes[c]
	}
	out := make([]report.CauseStat, 0, numCauses)
	for c := 0; c < numCauses; c++ {
		share := 0.0
		if total > 0 {
			share = minutes[c] / total
		}
		out = append(out, report.CauseStat{
			Cause:   causeNames[c],
			Minutes: minutes[c],
			Flights: a.overall.causeN[c],
			Share:   share,
		})
	}
	return out
}

func (a *Accumulator) routeRankings(opts Options) (byVolume, byDelay []report.RouteStat) {
	type row struct {
		name string
		s    *stat
	}
	rows := make([]row, 0, len(a.routes))
	for name, s := range a.routes {
		rows = append(rows, row{name, s})
	}

	// Ties break on route name so rankings are stable across runs.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].s.flights != rows[j].s.flights {
			return rows[i].s.flights > rows[j].s.flights
		}
		return rows[i].name < rows[j].name
	})
	for i := 0; i < len(rows) && i < opts.TopN; i++ {
		byVolume = append(byVolume, routeStat(rows[i].name, rows[i].s))
	}

	ranked := rows[:0]
	for _, rw := range rows {
		if rw.s.flights >= int64(opts.MinRouteFlights) && rw.s.delayN > 0 {
			ranked = append(ranked, rw)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		mi, mj := ranked[i].s.meanDelay(), ranked[j].s.meanDelay()
		if mi != mj {
			return mi > mj
		}
		return ranked[i].name < ranked[j].name
	})
	for i := 0; i < len(ranked) && i < opts.TopN; i++ {
		byDelay = append(byDelay, routeStat(ranked[i].name, ranked[i].s))
	}
	return byVolume, byDelay
}

func routeStat(name string, s *stat) report.RouteStat {
	return report.RouteStat{
		Route:     name,
		Flights:   s.flights,
		Cancelled: s.cancelled,
		MeanDelay: s.meanDelay(),
	}
}

func (a *Accumulator) airlineStats() []report.AirlineStat {
	rollup := make(map[string]*stat)
	for k, s := range a.airlines {
		r := rollup[k.airline]
		if r == nil {
			r = &stat{}
			rollup[k.airline] = r
		}
		r.merge(s)
	}

	out := make([]report.AirlineStat, 0, len(rollup))
	for name, s := range rollup {
		out = append(out, report.AirlineStat{
			Airline:     name,
			Flights:     s.flights,
			Cancelled:   s.cancelled,
			OnTimeRatio: ratio(s.onTime, s.onTime+s.delayed),
			MeanDelay:   s.meanDelay(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Flights != out[j].Flights {
			return out[i].Flights > out[j].Flights
		}
		return out[i].Airline < out[j].Airline
	})
	return out
}

func (a *Accumulator) monthlyStats() []report.MonthStat {
	var out []report.MonthStat
	for m := 1; m <= 12; m++ {
		s := &a.months[m]
		if s.flights == 0 {
			continue
		}
		out = append(out, report.MonthStat{
			Month:     m,
			Flights:   s.flights,
			Cancelled: s.cancelled,
			Delay:     summary(s, &a.monthHist[m]),
		})
	}
	return out
}

func (a *Accumulator) seasonalStats() []report.SeasonStat {
	var out []report.SeasonStat
	for se := flight.SeasonWinter; se <= flight.SeasonAutumn; se++ {
		s := &a.seasons[se]
		if s.flights == 0 {
			continue
		}
		out = append(out, report.SeasonStat{
			Season:    se.String(),
			Flights:   s.flights,
			Cancelled: s.cancelled,
			Delay:     summary(s, &a.seasonHist[se]),
		})
	}
	return out
}

func summary(s *stat, h *delayHist) report.DelaySummary {
	if s.delayN == 0 {
		return report.DelaySummary{}
	}
	return report.DelaySummary{
		Count:  s.delayN,
		Mean:   s.meanDelay(),
		Median: h.median(),
		Min:    s.delayMin,
		Max:    s.delayMax,
	}
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
