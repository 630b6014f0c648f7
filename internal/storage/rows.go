package storage

import (
	"flightetl/internal/flight"
	"flightetl/internal/schema"
)

// Columns returns the output column order for CopyFrom, which is the
// declared registry order. AppendRows emits values in this same order; the
// pairing is covered by a test so the two cannot drift apart silently.
func Columns(reg *schema.Registry) []string {
	cols := reg.All()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// AppendRows flattens every row of b into driver-ready values and appends
// them to dst. Sentinels become nil so backends store real NULLs: no more
// NaN-means-missing once the data leaves the pipeline. Cancellation reasons
// are stored as their single-letter wire codes, enums as their labels.
func AppendRows(dst [][]any, b *flight.Batch) [][]any {
	n := b.Len()
	for i := 0; i < n; i++ {
		flagNull := b.FlagNull.Has(i)
		row := make([]any, 0, 38)
		row = append(row,
			i16(b.Year[i]),
			i8(b.Month[i]),
			i8(b.Day[i]),
			i8(b.DayOfWeek[i]),
			str(b.Airline[i]),
			i16(b.FlightNumber[i]),
			str(b.TailNumber[i]),
			str(b.Origin[i]),
			str(b.Dest[i]),
			i16(b.SchedDep[i]),
			i16(b.DepTime[i]),
			f32(b.DepDelay[i]),
			f32(b.TaxiOut[i]),
			i16(b.WheelsOff[i]),
			f32(b.SchedTime[i]),
			f32(b.Elapsed[i]),
			f32(b.AirTime[i]),
			i16(b.Distance[i]),
			i16(b.WheelsOn[i]),
			f32(b.TaxiIn[i]),
			i16(b.SchedArr[i]),
			i16(b.ArrTime[i]),
			f32(b.ArrDelay[i]),
			flag(b.Diverted.Has(i), flagNull),
			flag(b.Cancelled.Has(i), flagNull),
			reason(b.Reason[i]),
			f32(b.AirSystemDelay[i]),
			f32(b.SecurityDelay[i]),
			f32(b.AirlineDelay[i]),
			f32(b.LateAircraftDelay[i]),
			f32(b.WeatherDelay[i]),
			str(b.Route[i]),
			i8(b.DepHour[i]),
			label(b.Period[i].String()),
			b.Weekend.Has(i),
			label(b.Season[i].String()),
			tri(b.Delayed[i]),
			label(b.Category[i].String()),
		)
		dst = append(dst, row)
	}
	return dst
}

func i16(v int16) any {
	if v == flight.NullInt16 {
		return nil
	}
	return int64(v)
}

func i8(v int8) any {
	if v == flight.NullInt8 {
		return nil
	}
	return int64(v)
}

func f32(v float32) any {
	if flight.IsNullF32(v) {
		return nil
	}
	return float64(v)
}

func str(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// flag resolves a bit column: the bit itself has no null spelling, so rows
// whose flag cells were unreadable carry it out of band.
func flag(set, null bool) any {
	if null {
		return nil
	}
	return set
}

func reason(r flight.CancelReason) any {
	if r == flight.ReasonNone {
		return nil
	}
	return r.Code()
}

func label(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func tri(t flight.Tri) any {
	if v, ok := t.Bool(); ok {
		return v
	}
	return nil
}
