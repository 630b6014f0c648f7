// Package derive fills the derived columns of a cleaned batch: route key,
// departure hour and period, weekend flag, season, delay indicator, and the
// delay severity category. Every derivation reads base columns only, so
// running the deriver twice is a no-op, and null base fields yield null
// derived values rather than errors.
package derive

import "flightetl/internal/flight"

// Delay thresholds in minutes. A flight is on time within OnTimeMax; the
// severity buckets nest upward from there.
const (
	OnTimeMax   = 15
	MinorMax    = 45
	ModerateMax = 120
)

// RouteSep joins origin and destination codes. The route string is an
// aggregation key and an output column, so the format is a compatibility
// surface; changing it re-keys every downstream consumer.
const RouteSep = "-"

// Deriver computes derived columns in place. Safe for concurrent use; it
// holds only the season table.
type Deriver struct {
	seasons [13]flight.Season
}

// DefaultSeasons returns the northern meteorological mapping: Dec-Feb winter,
// then three-month blocks.
func DefaultSeasons() [13]flight.Season {
	var m [13]flight.Season
	for month := 1; month <= 12; month++ {
		switch {
		case month == 12 || month <= 2:
			m[month] = flight.SeasonWinter
		case month <= 5:
			m[month] = flight.SeasonSpring
		case month <= 8:
			m[month] = flight.SeasonSummer
		default:
			m[month] = flight.SeasonAutumn
		}
	}
	return m
}

// New builds a Deriver. A zero seasons table falls back to DefaultSeasons.
func New(seasons [13]flight.Season) *Deriver {
	empty := true
	for _, s := range seasons[1:] {
		if s != flight.SeasonNone {
			empty = false
			break
		}
	}
	if empty {
		seasons = DefaultSeasons()
	}
	return &Deriver{seasons: seasons}
}

// Derive fills every derived column for all rows of b. It is total: cleaned
// batches cannot make it fail, and unparseable-but-kept base fields
// propagate their nullness into the columns that depend on them.
func (d *Deriver) Derive(b *flight.Batch) {
	n := b.Len()
	for i := 0; i < n; i++ {
		if b.Origin[i] != "" && b.Dest[i] != "" {
			b.Route[i] = b.Origin[i] + RouteSep + b.Dest[i]
		} else {
			b.Route[i] = ""
		}

		h := hourOf(b.SchedDep[i])
		b.DepHour[i] = h
		b.Period[i] = periodOf(h)

		if dow := b.DayOfWeek[i]; dow == 6 || dow == 7 {
			b.Weekend.Add(i)
		} else {
			b.Weekend.Clear(i)
		}

		if m := b.Month[i]; m >= 1 && m <= 12 {
			b.Season[i] = d.seasons[m]
		} else {
			b.Season[i] = flight.SeasonNone
		}

		cancelled := b.Cancelled.Has(i)
		b.Delayed[i] = delayedOf(cancelled, b.ArrDelay[i])
		b.Category[i] = categoryOf(cancelled, b.ArrDelay[i])
	}
}

// hourOf extracts the hour from an HHMM clock value. 2400 is the published
// midnight-rollover spelling and maps to hour 0.
func hourOf(hhmm int16) int8 {
	if hhmm == flight.NullInt16 {
		return flight.NullInt8
	}
	if hhmm == 2400 {
		return 0
	}
	h := int8(hhmm / 100)
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}

func periodOf(hour int8) flight.Period {
	switch {
	case hour == flight.NullInt8:
		return flight.PeriodNone
	case hour >= 5 && hour < 12:
		return flight.PeriodMorning
	case hour >= 12 && hour < 17:
		return flight.PeriodAfternoon
	case hour >= 17 && hour < 21:
		return flight.PeriodEvening
	default:
		return flight.PeriodNight
	}
}

// delayedOf is null for cancelled flights: "was it more than 15 minutes
// late" has no answer for a flight that never arrived.
func delayedOf(cancelled bool, arrDelay float32) flight.Tri {
	if cancelled || flight.IsNullF32(arrDelay) {
		return flight.TriNull
	}
	return flight.TriOf(arrDelay > OnTimeMax)
}

func categoryOf(cancelled bool, arrDelay float32) flight.DelayCategory {
	if cancelled {
		return flight.CategoryCancelled
	}
	if flight.IsNullF32(arrDelay) {
		return flight.CategoryNone
	}
	switch {
	case arrDelay <= OnTimeMax:
		return flight.CategoryOnTime
	case arrDelay <= MinorMax:
		return flight.CategoryMinor
	case arrDelay <= ModerateMax:
		return flight.CategoryModerate
	default:
		return flight.CategorySevere
	}
}
