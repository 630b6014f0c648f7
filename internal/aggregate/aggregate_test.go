package aggregate

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"flightetl/internal/derive"
	"flightetl/internal/flight"
	"flightetl/internal/report"
)

func addFlight(b *flight.Batch, airline, origin, dest string, month int8, schedDep int16, arrDelay float32) int {
	i := b.AppendRow(int32(b.Len() + 2))
	b.Year[i] = 2015
	b.Month[i] = month
	b.Day[i] = int8(i%28 + 1)
	b.DayOfWeek[i] = int8(i%7 + 1)
	b.Airline[i] = airline
	b.FlightNumber[i] = int16(100 + i)
	b.Origin[i] = origin
	b.Dest[i] = dest
	b.SchedDep[i] = schedDep
	b.ArrDelay[i] = arrDelay
	return i
}

func enrich(b *flight.Batch) {
	derive.New([13]flight.Season{}).Derive(b)
}

func TestUpdateTotalsAndBreakdowns(t *testing.T) {
	t.Parallel()

	b := flight.GetBatch(4)
	defer b.Free()

	addFlight(b, "AA", "JFK", "LAX", 6, 900, 5)
	i := addFlight(b, "AA", "JFK", "LAX", 6, 1300, 200)
	b.AirlineDelay[i] = 180
	i = addFlight(b, "DL", "ATL", "MIA", 12, 1800, flight.NullF32())
	b.Cancelled.Add(i)
	b.Reason[i] = flight.ReasonWeather
	i = addFlight(b, "UA", "ORD", "SFO", 6, 2330, -10)
	b.Diverted.Add(i)
	enrich(b)

	a := New()
	a.Update(b)
	r := a.Finalize(Options{RunID: "run-1", TopN: 5, MinRouteFlights: 1})

	wantTotals := report.Totals{
		Flights: 4, Cancelled: 1, Diverted: 1,
		OnTime: 2, Delayed: 1, OnTimeRatio: 2.0 / 3.0,
	}
	if r.Totals != wantTotals {
		t.Errorf("totals = %+v, want %+v", r.Totals, wantTotals)
	}

	wantDelay := report.DelaySummary{Count: 3, Mean: 65, Median: 5, Min: -10, Max: 200}
	if r.ArrivalDelay != wantDelay {
		t.Errorf("arrival delay = %+v, want %+v", r.ArrivalDelay, wantDelay)
	}

	if r.Cancellation.Count != 1 || r.Cancellation.Rate != 0.25 {
		t.Errorf("cancellation = %+v, want count 1 rate 0.25", r.Cancellation)
	}
	if got := r.Cancellation.Reasons["weather"]; got != 1 {
		t.Errorf("weather cancellations = %d, want 1", got)
	}

	wantCats := map[string]int64{
		"OnTime": 2, "Minor": 0, "Moderate": 0, "Severe": 1, "Cancelled": 1,
	}
	if !reflect.DeepEqual(r.DelayCategories, wantCats) {
		t.Errorf("categories = %v, want %v", r.DelayCategories, wantCats)
	}

	wantPeriods := map[string]int64{
		"Morning": 1, "Afternoon": 1, "Evening": 1, "Night": 1,
	}
	if !reflect.DeepEqual(r.DeparturePeriods, wantPeriods) {
		t.Errorf("periods = %v, want %v", r.DeparturePeriods, wantPeriods)
	}
	for hour, want := range map[int]int64{9: 1, 13: 1, 18: 1, 23: 1} {
		if got := r.DepartureHours[hour]; got != want {
			t.Errorf("hour %d count = %d, want %d", hour, got, want)
		}
	}

	var airline report.CauseStat
	for _, c := range r.CauseMinutes {
		if c.Cause == "airline" {
			airline = c
		} else if c.Minutes != 0 {
			t.Errorf("cause %s has %.0f minutes, want 0", c.Cause, c.Minutes)
		}
	}
	if airline.Minutes != 180 || airline.Flights != 1 || airline.Share != 1 {
		t.Errorf("airline cause = %+v, want 180 minutes / 1 flight / share 1", airline)
	}

	if len(r.TopRoutesByVolume) == 0 || r.TopRoutesByVolume[0].Route != "JFK-LAX" {
		t.Fatalf("busiest route = %+v, want JFK-LAX first", r.TopRoutesByVolume)
	}
	if got := r.TopRoutesByVolume[0].Flights; got != 2 {
		t.Errorf("JFK-LAX flights = %d, want 2", got)
	}

	if len(r.Airlines) != 3 || r.Airlines[0].Airline != "AA" {
		t.Fatalf("airlines = %+v, want AA first of three", r.Airlines)
	}
	if r.Airlines[1].Airline != "DL" || r.Airlines[2].Airline != "UA" {
		t.Errorf("airline tie-break = %s, %s, want DL then UA", r.Airlines[1].Airline, r.Airlines[2].Airline)
	}

	if len(r.Monthly) != 2 || r.Monthly[0].Month != 6 || r.Monthly[1].Month != 12 {
		t.Fatalf("monthly = %+v, want months 6 and 12", r.Monthly)
	}
	if r.Monthly[0].Flights != 3 || r.Monthly[1].Cancelled != 1 {
		t.Errorf("monthly counts = %+v", r.Monthly)
	}

	if len(r.Seasonal) != 2 || r.Seasonal[0].Season != "Winter" || r.Seasonal[1].Season != "Summer" {
		t.Fatalf("seasonal = %+v, want Winter and Summer", r.Seasonal)
	}
}

func TestSnapshotIsPartialUntilFinalize(t *testing.T) {
	t.Parallel()

	b := flight.GetBatch(2)
	defer b.Free()
	addFlight(b, "AA", "JFK", "BOS", 1, 800, 3)
	addFlight(b, "AA", "JFK", "BOS", 1, 900, 30)
	enrich(b)

	a := New()
	a.Update(b)

	snap := a.Snapshot(Options{})
	if !snap.Partial {
		t.Fatal("snapshot before finalize not marked partial")
	}
	if snap.Totals.Flights != 2 {
		t.Fatalf("partial snapshot flights = %d, want 2", snap.Totals.Flights)
	}

	fin := a.Finalize(Options{})
	if fin.Partial {
		t.Fatal("finalized report marked partial")
	}
	again := a.Finalize(Options{})
	if again.Totals != fin.Totals || again.ArrivalDelay != fin.ArrivalDelay {
		t.Fatal("second finalize changed the numbers")
	}
	if a.Snapshot(Options{}).Partial {
		t.Fatal("snapshot after finalize marked partial")
	}
}

func TestMeanDelayRankingHasVolumeFloor(t *testing.T) {
	t.Parallel()

	b := flight.GetBatch(42)
	defer b.Free()
	// Two flights at 500 minutes: dramatic mean, too few to rank.
	addFlight(b, "F9", "AAA", "BBB", 3, 700, 500)
	addFlight(b, "F9", "AAA", "BBB", 3, 700, 500)
	for i := 0; i < 40; i++ {
		addFlight(b, "WN", "CCC", "DDD", 3, 1200, 10)
	}
	enrich(b)

	a := New()
	a.Update(b)
	r := a.Finalize(Options{TopN: 5, MinRouteFlights: 30})

	if len(r.TopRoutesByMeanDelay) != 1 {
		t.Fatalf("delay ranking = %+v, want exactly one qualifying route", r.TopRoutesByMeanDelay)
	}
	if got := r.TopRoutesByMeanDelay[0].Route; got != "CCC-DDD" {
		t.Errorf("delay ranking winner = %s, want CCC-DDD", got)
	}
	if got := r.TopRoutesByVolume[0].Route; got != "CCC-DDD" {
		t.Errorf("volume ranking winner = %s, want CCC-DDD", got)
	}
}

func TestVolumeRankingTieBreaksOnName(t *testing.T) {
	t.Parallel()

	b := flight.GetBatch(4)
	defer b.Free()
	addFlight(b, "AA", "ZZZ", "YYY", 2, 900, 0)
	addFlight(b, "AA", "ZZZ", "YYY", 2, 900, 0)
	addFlight(b, "AA", "BBB", "CCC", 2, 900, 0)
	addFlight(b, "AA", "BBB", "CCC", 2, 900, 0)
	enrich(b)

	a := New()
	a.Update(b)
	r := a.Finalize(Options{TopN: 5, MinRouteFlights: 1})

	if r.TopRoutesByVolume[0].Route != "BBB-CCC" || r.TopRoutesByVolume[1].Route != "ZZZ-YYY" {
		t.Fatalf("tie-break order = %+v, want BBB-CCC before ZZZ-YYY", r.TopRoutesByVolume)
	}
}

// randomBatch builds a deterministic pseudo-random enriched batch so the
// merge tests cover a realistic spread of keys and nulls.
func randomBatch(rng *rand.Rand, rows int) *flight.Batch {
	airlines := []string{"AA", "DL", "UA", "WN", "B6"}
	airports := []string{"JFK", "LAX", "ORD", "ATL", "DEN", "SEA"}

	b := flight.GetBatch(rows)
	for n := 0; n < rows; n++ {
		org := airports[rng.Intn(len(airports))]
		dst := airports[rng.Intn(len(airports))]
		for dst == org {
			dst = airports[rng.Intn(len(airports))]
		}
		dep := int16(rng.Intn(24)*100 + rng.Intn(60))
		i := addFlight(b, airlines[rng.Intn(len(airlines))], org, dst,
			int8(rng.Intn(12)+1), dep, float32(rng.Intn(430)-30))

		switch rng.Intn(10) {
		case 0:
			b.Cancelled.Add(i)
			b.Reason[i] = flight.CancelReason(rng.Intn(4) + 1)
			b.ArrDelay[i] = flight.NullF32()
		case 1:
			b.ArrDelay[i] = flight.NullF32()
		case 2:
			b.LateAircraftDelay[i] = float32(rng.Intn(120))
			b.WeatherDelay[i] = float32(rng.Intn(60))
		}
	}
	enrich(b)
	return b
}

func TestMergeMatchesSequentialAndIsAssociative(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(20150601))
	batches := []*flight.Batch{
		randomBatch(rng, 120),
		randomBatch(rng, 80),
		randomBatch(rng, 150),
	}
	defer func() {
		for _, b := range batches {
			b.Free()
		}
	}()

	seq := New()
	for _, b := range batches {
		seq.Update(b)
	}

	// ([A,B]) + C
	ab := New()
	ab.Update(batches[0])
	ab.Update(batches[1])
	c := New()
	c.Update(batches[2])
	ab.Merge(c)

	// A + (B + C)
	bc := New()
	bc.Update(batches[1])
	bcc := New()
	bcc.Update(batches[2])
	bc.Merge(bcc)
	a := New()
	a.Update(batches[0])
	a.Merge(bc)

	opts := Options{RunID: "merge", TopN: 20, MinRouteFlights: 1}
	want := seq.Finalize(opts)
	sameReport(t, "left-grouped", ab.Finalize(opts), want)
	sameReport(t, "right-grouped", a.Finalize(opts), want)
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6
}

// sameReport compares the numeric content of two reports, allowing float
// rounding drift on means only. Everything counted in integers must match
// exactly.
func sameReport(t *testing.T, label string, got, want *report.Report) {
	t.Helper()

	if got.Totals != want.Totals {
		t.Errorf("%s: totals = %+v, want %+v", label, got.Totals, want.Totals)
	}
	if got.ArrivalDelay.Count != want.ArrivalDelay.Count ||
		!closeEnough(got.ArrivalDelay.Mean, want.ArrivalDelay.Mean) ||
		got.ArrivalDelay.Median != want.ArrivalDelay.Median ||
		got.ArrivalDelay.Min != want.ArrivalDelay.Min ||
		got.ArrivalDelay.Max != want.ArrivalDelay.Max {
		t.Errorf("%s: arrival delay = %+v, want %+v", label, got.ArrivalDelay, want.ArrivalDelay)
	}
	if !reflect.DeepEqual(got.Cancellation.Reasons, want.Cancellation.Reasons) {
		t.Errorf("%s: reasons = %v, want %v", label, got.Cancellation.Reasons, want.Cancellation.Reasons)
	}
	if !reflect.DeepEqual(got.DelayCategories, want.DelayCategories) {
		t.Errorf("%s: categories = %v, want %v", label, got.DelayCategories, want.DelayCategories)
	}
	if !reflect.DeepEqual(got.DeparturePeriods, want.DeparturePeriods) {
		t.Errorf("%s: periods = %v, want %v", label, got.DeparturePeriods, want.DeparturePeriods)
	}
	if got.DepartureHours != want.DepartureHours {
		t.Errorf("%s: hours = %v, want %v", label, got.DepartureHours, want.DepartureHours)
	}

	if len(got.CauseMinutes) != len(want.CauseMinutes) {
		t.Fatalf("%s: cause count = %d, want %d", label, len(got.CauseMinutes), len(want.CauseMinutes))
	}
	for i := range want.CauseMinutes {
		g, w := got.CauseMinutes[i], want.CauseMinutes[i]
		if g.Cause != w.Cause || g.Flights != w.Flights || !closeEnough(g.Minutes, w.Minutes) {
			t.Errorf("%s: cause %d = %+v, want %+v", label, i, g, w)
		}
	}

	sameRoutes(t, label+" volume ranking", got.TopRoutesByVolume, want.TopRoutesByVolume)
	sameRoutes(t, label+" delay ranking", got.TopRoutesByMeanDelay, want.TopRoutesByMeanDelay)

	if len(got.Airlines) != len(want.Airlines) {
		t.Fatalf("%s: airline count = %d, want %d", label, len(got.Airlines), len(want.Airlines))
	}
	for i := range want.Airlines {
		g, w := got.Airlines[i], want.Airlines[i]
		if g.Airline != w.Airline || g.Flights != w.Flights || g.Cancelled != w.Cancelled ||
			!closeEnough(g.MeanDelay, w.MeanDelay) || !closeEnough(g.OnTimeRatio, w.OnTimeRatio) {
			t.Errorf("%s: airline %d = %+v, want %+v", label, i, g, w)
		}
	}

	if len(got.Monthly) != len(want.Monthly) {
		t.Fatalf("%s: month count = %d, want %d", label, len(got.Monthly), len(want.Monthly))
	}
	for i := range want.Monthly {
		g, w := got.Monthly[i], want.Monthly[i]
		if g.Month != w.Month || g.Flights != w.Flights || g.Cancelled != w.Cancelled ||
			g.Delay.Median != w.Delay.Median || !closeEnough(g.Delay.Mean, w.Delay.Mean) {
			t.Errorf("%s: month %d = %+v, want %+v", label, g.Month, g, w)
		}
	}

	if len(got.Seasonal) != len(want.Seasonal) {
		t.Fatalf("%s: season count = %d, want %d", label, len(got.Seasonal), len(want.Seasonal))
	}
	for i := range want.Seasonal {
		g, w := got.Seasonal[i], want.Seasonal[i]
		if g.Season != w.Season || g.Flights != w.Flights || g.Cancelled != w.Cancelled ||
			g.Delay.Median != w.Delay.Median || !closeEnough(g.Delay.Mean, w.Delay.Mean) {
			t.Errorf("%s: season %s = %+v, want %+v", label, g.Season, g, w)
		}
	}
}

func sameRoutes(t *testing.T, label string, got, want []report.RouteStat) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length = %d, want %d", label, len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Route != w.Route || g.Flights != w.Flights || g.Cancelled != w.Cancelled ||
			!closeEnough(g.MeanDelay, w.MeanDelay) {
			t.Errorf("%s: rank %d = %+v, want %+v", label, i, g, w)
		}
	}
}
