// Package aggregate keeps the running KPI state for a run. One Accumulator
// sees every cleaned, enriched batch exactly once; its memory grows with the
// number of distinct keys (routes, airline-month pairs), never with row
// count. Every per-key statistic is a monoid, so two Accumulators built from
// disjoint batch sets merge into the same state a single sequential pass
// would have produced, which is what permits parallel batch workers.
package aggregate

import (
	"flightetl/internal/flight"
	"flightetl/internal/kahan"
)

// Cause column order. Indexes into stat.causes and causeNames.
const (
	causeAirSystem = iota
	causeSecurity
	causeAirline
	causeLateAircraft
	causeWeather
	numCauses
)

var causeNames = [numCauses]string{
	"air_system", "security", "airline", "late_aircraft", "weather",
}

// stat is the fixed-shape per-key statistics record. All fields combine by
// addition except min and max, which combine by comparison; delayN guards
// the min and max fields, which are meaningless while it is zero.
type stat struct {
	flights   int64
	cancelled int64
	diverted  int64
	delayed   int64
	onTime    int64

	delaySum kahan.Sum
	delayN   int64
	delayMin float64
	delayMax float64

	causes  [numCauses]kahan.Sum
	causeN  [numCauses]int64
}

// rowObs is one row flattened to what the stats need.
type rowObs struct {
	cancelled bool
	diverted  bool
	delayed   flight.Tri
	delay     float64
	hasDelay  bool
	causes    [numCauses]float32
}

func (s *stat) observe(o *rowObs) {
	s.flights++
	if o.cancelled {
		s.cancelled++
	}
	if o.diverted {
		s.diverted++
	}
	switch o.delayed {
	case flight.TriTrue:
		s.delayed++
	case flight.TriFalse:
		s.onTime++
	}
	if o.hasDelay {
		if s.delayN == 0 || o.delay < s.delayMin {
			s.delayMin = o.delay
		}
		if s.delayN == 0 || o.delay > s.delayMax {
			s.delayMax = o.delay
		}
		s.delaySum.Add(o.delay)
		s.delayN++
	}
	for c := 0; c < numCauses; c++ {
		if v := o.causes[c]; !flight.IsNullF32(v) && v > 0 {
			s.causes[c].Add(float64(v))
			s.causeN[c]++
		}
	}
}

func (s *stat) merge(o *stat) {
	s.flights += o.flights
	s.cancelled += o.cancelled
	s.diverted += o.diverted
	s.delayed += o.delayed
	s.onTime += o.onTime

	if o.delayN > 0 {
		if s.delayN == 0 || o.delayMin < s.delayMin {
			s.delayMin = o.delayMin
		}
		if s.delayN == 0 || o.delayMax > s.delayMax {
			s.delayMax = o.delayMax
		}
	}
	s.delaySum.Merge(o.delaySum)
	s.delayN += o.delayN

	for c := 0; c < numCauses; c++ {
		s.causes[c].Merge(o.causes[c])
		s.causeN[c] += o.causeN[c]
	}
}

func (s *stat) meanDelay() float64 {
	if s.delayN == 0 {
		return 0
	}
	return s.delaySum.Value() / float64(s.delayN)
}

// airlineMonth keys the finest-grained map. Airline and month roll-ups are
// derived from it at snapshot time.
type airlineMonth struct {
	airline string
	month   int8
}

// Accumulator is the per-run (or per-worker) KPI state. Not safe for
// concurrent use; parallel drivers give each worker its own and Merge at
// the end.
type Accumulator struct {
	rows    int64
	overall stat
	hist    delayHist

	routes   map[string]*stat
	airlines map[airlineMonth]*stat

	months     [13]stat
	monthHist  [13]delayHist
	seasons    [5]stat
	seasonHist [5]delayHist

	periods    [5]int64
	hours      [24]int64
	categories [6]int64
	reasons    [5]int64

	sealed bool
}

func New() *Accumulator {
	return &Accumulator{
		routes:   make(map[string]*stat),
		airlines: make(map[airlineMonth]*stat),
	}
}

// Rows returns how many cleaned rows this accumulator has absorbed.
func (a *Accumulator) Rows() int64 { return a.rows }

// Update folds one enriched batch into the running state. The batch is read
// only; ownership stays with the caller.
func (a *Accumulator) Update(b *flight.Batch) {
	n := b.Len()
	for i := 0; i < n; i++ {
		var o rowObs
		o.cancelled = b.Cancelled.Has(i)
		o.diverted = b.Diverted.Has(i)
		o.delayed = b.Delayed[i]
		if d := b.ArrDelay[i]; !flight.IsNullF32(d) {
			o.delay = float64(d)
			o.hasDelay = true
		}
		o.causes = [numCauses]float32{
			b.AirSystemDelay[i],
			b.SecurityDelay[i],
			b.AirlineDelay[i],
			b.LateAircraftDelay[i],
			b.WeatherDelay[i],
		}

		a.rows++
		a.overall.observe(&o)
		if o.hasDelay {
			a.hist.observe(o.delay)
		}

		if r := b.Route[i]; r != "" {
			s := a.routes[r]
			if s == nil {
				s = &stat{}
				a.routes[r] = s
			}
			s.observe(&o)
		}

		m := b.Month[i]
		if al := b.Airline[i]; al != "" && m >= 1 && m <= 12 {
			k := airlineMonth{airline: al, month: m}
			s := a.airlines[k]
			if s == nil {
				s = &stat{}
				a.airlines[k] = s
			}
			s.observe(&o)
		}
		if m >= 1 && m <= 12 {
			a.months[m].observe(&o)
			if o.hasDelay {
				a.monthHist[m].observe(o.delay)
			}
		}
		if se := b.Season[i]; se >= flight.SeasonWinter && se <= flight.SeasonAutumn {
			a.seasons[se].observe(&o)
			if o.hasDelay {
				a.seasonHist[se].observe(o.delay)
			}
		}

		a.periods[b.Period[i]]++
		if h := b.DepHour[i]; h >= 0 && int(h) < len(a.hours) {
			a.hours[h]++
		}
		a.categories[b.Category[i]]++
		if o.cancelled {
			a.reasons[b.Reason[i]]++
		}
	}
}

// Merge folds another accumulator into a. Merging is associative and
// commutative, so any pairing order over worker partials lands on the same
// state. The argument must not be used afterwards for updates that are also
// expected in a.
func (a *Accumulator) Merge(o *Accumulator) {
	a.rows += o.rows
	a.overall.merge(&o.overall)
	a.hist.merge(&o.hist)

	for r, os := range o.routes {
		s := a.routes[r]
		if s == nil {
			s = &stat{}
			a.routes[r] = s
		}
		s.merge(os)
	}
	for k, os := range o.airlines {
		s := a.airlines[k]
		if s == nil {
			s = &stat{}
			a.airlines[k] = s
		}
		s.merge(os)
	}

	for m := range a.months {
		a.months[m].merge(&o.months[m])
		a.monthHist[m].merge(&o.monthHist[m])
	}
	for se := range a.seasons {
		a.seasons[se].merge(&o.seasons[se])
		a.seasonHist[se].merge(&o.seasonHist[se])
	}
	for i := range a.periods {
		a.periods[i] += o.periods[i]
	}
	for i := range a.hours {
		a.hours[i] += o.hours[i]
	}
	for i := range a.categories {
		a.categories[i] += o.categories[i]
	}
	for i := range a.reasons {
		a.reasons[i] += o.reasons[i]
	}
}
