// Package flight defines the columnar batch that flows between pipeline
// stages. Columns use the narrowest width that fits the declared range
// (int8/int16/float32, bitmaps for flags), so a 100k-row batch stays in the
// single-digit-MB range instead of the hundreds a naive []map row form costs.
//
// Batches are pooled. The contract mirrors the usual pooled-buffer rules:
//   - GetBatch hands ownership to the caller; exactly one stage owns a batch
//     at a time and ownership moves with the batch across channels.
//   - The final consumer must call Free. No stage may retain a reference
//     (including column slices) after handing the batch on or freeing it.
//   - Leased/MaxLeased expose the live-lease count so tests and ops can hold
//     the pipeline to its bounded-memory claim.
package flight

import (
	"math"
	"sync"
	"sync/atomic"

	"flightetl/internal/bitmap"
)

// Null sentinels, one per column family. Integral columns (temporal, HHMM
// clock, distance, flight number) use -1; float minute columns use NaN;
// strings use ""; enums use their zero code.
const (
	NullInt16 = int16(-1)
	NullInt8  = int8(-1)
)

// NullF32 returns the float sentinel.
func NullF32() float32 { return float32(math.NaN()) }

// IsNullF32 reports whether f is the float sentinel.
func IsNullF32(f float32) bool { return f != f }

// Batch is a fixed-capacity columnar block of flight records. Field order
// follows the data dictionary; derived columns sit at the end and are zero
// until the deriver runs.
type Batch struct {
	n int

	// Lines holds the 1-based source line per row for diagnostics.
	Lines []int32

	Year         []int16
	Month        []int8
	Day          []int8
	DayOfWeek    []int8
	Airline      []string
	FlightNumber []int16
	TailNumber   []string
	Origin       []string
	Dest         []string

	SchedDep  []int16
	DepTime   []int16
	DepDelay  []float32
	TaxiOut   []float32
	WheelsOff []int16
	SchedTime []float32
	Elapsed   []float32
	AirTime   []float32
	Distance  []int16
	WheelsOn  []int16
	TaxiIn    []float32
	SchedArr  []int16
	ArrTime   []int16
	ArrDelay  []float32

	Diverted  *bitmap.Bitmap
	Cancelled *bitmap.Bitmap
	// FlagNull marks rows whose diverted/cancelled cell was empty or
	// unparseable. Bits have no sentinel value of their own, so nullness for
	// the flag group lives here until cleaning rejects the row.
	FlagNull *bitmap.Bitmap
	Reason   []CancelReason

	AirSystemDelay    []float32
	SecurityDelay     []float32
	AirlineDelay      []float32
	LateAircraftDelay []float32
	WeatherDelay      []float32

	Route    []string
	DepHour  []int8
	Period   []Period
	Weekend  *bitmap.Bitmap
	Season   []Season
	Delayed  []Tri
	Category []DelayCategory
}

// Len returns the number of rows currently in the batch.
func (b *Batch) Len() int { return b.n }

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

func (b *Batch) grow(rows int) {
	b.Lines = resize(b.Lines, rows)

	b.Year = resize(b.Year, rows)
	b.Month = resize(b.Month, rows)
	b.Day = resize(b.Day, rows)
	b.DayOfWeek = resize(b.DayOfWeek, rows)
	b.Airline = resize(b.Airline, rows)
	b.FlightNumber = resize(b.FlightNumber, rows)
	b.TailNumber = resize(b.TailNumber, rows)
	b.Origin = resize(b.Origin, rows)
	b.Dest = resize(b.Dest, rows)

	b.SchedDep = resize(b.SchedDep, rows)
	b.DepTime = resize(b.DepTime, rows)
	b.DepDelay = resize(b.DepDelay, rows)
	b.TaxiOut = resize(b.TaxiOut, rows)
	b.WheelsOff = resize(b.WheelsOff, rows)
	b.SchedTime = resize(b.SchedTime, rows)
	b.Elapsed = resize(b.Elapsed, rows)
	b.AirTime = resize(b.AirTime, rows)
	b.Distance = resize(b.Distance, rows)
	b.WheelsOn = resize(b.WheelsOn, rows)
	b.TaxiIn = resize(b.TaxiIn, rows)
	b.SchedArr = resize(b.SchedArr, rows)
	b.ArrTime = resize(b.ArrTime, rows)
	b.ArrDelay = resize(b.ArrDelay, rows)

	if b.Diverted == nil {
		b.Diverted = bitmap.New(rows)
		b.Cancelled = bitmap.New(rows)
		b.FlagNull = bitmap.New(rows)
		b.Weekend = bitmap.New(rows)
	} else {
		b.Diverted.Reset(rows)
		b.Cancelled.Reset(rows)
		b.FlagNull.Reset(rows)
		b.Weekend.Reset(rows)
	}
	b.Reason = resize(b.Reason, rows)

	b.AirSystemDelay = resize(b.AirSystemDelay, rows)
	b.SecurityDelay = resize(b.SecurityDelay, rows)
	b.AirlineDelay = resize(b.AirlineDelay, rows)
	b.LateAircraftDelay = resize(b.LateAircraftDelay, rows)
	b.WeatherDelay = resize(b.WeatherDelay, rows)

	b.Route = resize(b.Route, rows)
	b.DepHour = resize(b.DepHour, rows)
	b.Period = resize(b.Period, rows)
	b.Season = resize(b.Season, rows)
	b.Delayed = resize(b.Delayed, rows)
	b.Category = resize(b.Category, rows)
}

// AppendRow makes room for one more row with every column at its null
// sentinel and returns the new row index. The caller then writes the cells it
// managed to cast; unparseable cells stay at the sentinel.
func (b *Batch) AppendRow(line int32) int {
	i := b.n
	if i >= len(b.Lines) {
		b.grow(i + i/2 + 1)
	}
	b.n = i + 1

	b.Lines[i] = line

	b.Year[i] = NullInt16
	b.Month[i] = NullInt8
	b.Day[i] = NullInt8
	b.DayOfWeek[i] = NullInt8
	b.Airline[i] = ""
	b.FlightNumber[i] = NullInt16
	b.TailNumber[i] = ""
	b.Origin[i] = ""
	b.Dest[i] = ""

	b.SchedDep[i] = NullInt16
	b.DepTime[i] = NullInt16
	b.DepDelay[i] = NullF32()
	b.TaxiOut[i] = NullF32()
	b.WheelsOff[i] = NullInt16
	b.SchedTime[i] = NullF32()
	b.Elapsed[i] = NullF32()
	b.AirTime[i] = NullF32()
	b.Distance[i] = NullInt16
	b.WheelsOn[i] = NullInt16
	b.TaxiIn[i] = NullF32()
	b.SchedArr[i] = NullInt16
	b.ArrTime[i] = NullInt16
	b.ArrDelay[i] = NullF32()

	b.Diverted.Clear(i)
	b.Cancelled.Clear(i)
	b.FlagNull.Clear(i)
	b.Reason[i] = ReasonNone

	b.AirSystemDelay[i] = NullF32()
	b.SecurityDelay[i] = NullF32()
	b.AirlineDelay[i] = NullF32()
	b.LateAircraftDelay[i] = NullF32()
	b.WeatherDelay[i] = NullF32()

	b.Route[i] = ""
	b.DepHour[i] = NullInt8
	b.Period[i] = PeriodNone
	b.Weekend.Clear(i)
	b.Season[i] = SeasonNone
	b.Delayed[i] = TriNull
	b.Category[i] = CategoryNone

	return i
}

// Compact removes the rows whose bits are set in mask, preserving relative
// order of the survivors, and returns the number removed. Runs in one pass;
// bitmap columns are rewritten in place (destination index never exceeds
// source index).
func (b *Batch) Compact(mask *bitmap.Bitmap) int {
	dst := 0
	for src := 0; src < b.n; src++ {
		if mask.Has(src) {
			continue
		}
		if dst != src {
			b.moveRow(dst, src)
		}
		dst++
	}
	removed := b.n - dst
	b.n = dst
	return removed
}

func (b *Batch) moveRow(dst, src int) {
	b.Lines[dst] = b.Lines[src]

	b.Year[dst] = b.Year[src]
	b.Month[dst] = b.Month[src]
	b.Day[dst] = b.Day[src]
	b.DayOfWeek[dst] = b.DayOfWeek[src]
	b.Airline[dst] = b.Airline[src]
	b.FlightNumber[dst] = b.FlightNumber[src]
	b.TailNumber[dst] = b.TailNumber[src]
	b.Origin[dst] = b.Origin[src]
	b.Dest[dst] = b.Dest[src]

	b.SchedDep[dst] = b.SchedDep[src]
	b.DepTime[dst] = b.DepTime[src]
	b.DepDelay[dst] = b.DepDelay[src]
	b.TaxiOut[dst] = b.TaxiOut[src]
	b.WheelsOff[dst] = b.WheelsOff[src]
	b.SchedTime[dst] = b.SchedTime[src]
	b.Elapsed[dst] = b.Elapsed[src]
	b.AirTime[dst] = b.AirTime[src]
	b.Distance[dst] = b.Distance[src]
	b.WheelsOn[dst] = b.WheelsOn[src]
	b.TaxiIn[dst] = b.TaxiIn[src]
	b.SchedArr[dst] = b.SchedArr[src]
	b.ArrTime[dst] = b.ArrTime[src]
	b.ArrDelay[dst] = b.ArrDelay[src]

	setBit(b.Diverted, dst, b.Diverted.Has(src))
	setBit(b.Cancelled, dst, b.Cancelled.Has(src))
	setBit(b.FlagNull, dst, b.FlagNull.Has(src))
	b.Reason[dst] = b.Reason[src]

	b.AirSystemDelay[dst] = b.AirSystemDelay[src]
	b.SecurityDelay[dst] = b.SecurityDelay[src]
	b.AirlineDelay[dst] = b.AirlineDelay[src]
	b.LateAircraftDelay[dst] = b.LateAircraftDelay[src]
	b.WeatherDelay[dst] = b.WeatherDelay[src]

	b.Route[dst] = b.Route[src]
	b.DepHour[dst] = b.DepHour[src]
	b.Period[dst] = b.Period[src]
	setBit(b.Weekend, dst, b.Weekend.Has(src))
	b.Season[dst] = b.Season[src]
	b.Delayed[dst] = b.Delayed[src]
	b.Category[dst] = b.Category[src]
}

func setBit(bm *bitmap.Bitmap, id int, v bool) {
	if v {
		bm.Add(id)
	} else {
		bm.Clear(id)
	}
}

var (
	batchPool sync.Pool

	leased    atomic.Int64
	maxLeased atomic.Int64
)

// GetBatch returns a pooled batch with capacity for rows rows and zero
// length. The caller owns the batch until it calls Free or hands ownership
// downstream.
func GetBatch(rows int) *Batch {
	n := leased.Add(1)
	for {
		hw := maxLeased.Load()
		if n <= hw || maxLeased.CompareAndSwap(hw, n) {
			break
		}
	}
	if v := batchPool.Get(); v != nil {
		b := v.(*Batch)
		b.grow(rows)
		b.n = 0
		return b
	}
	b := &Batch{}
	b.grow(rows)
	return b
}

// Free returns the batch to the pool. The caller must not touch b, or any
// slice previously read from it, after Free.
func (b *Batch) Free() {
	b.n = 0
	leased.Add(-1)
	batchPool.Put(b)
}

// Leased returns the number of batches currently checked out of the pool.
func Leased() int64 { return leased.Load() }

// MaxLeased returns the high-water mark of concurrently leased batches since
// the last ResetLeaseStats. The pipeline's memory bound is a small constant
// multiple of the batch size; this gauge is how that claim gets checked.
func MaxLeased() int64 { return maxLeased.Load() }

// ResetLeaseStats rewinds the high-water mark to the current lease count.
func ResetLeaseStats() { maxLeased.Store(leased.Load()) }
