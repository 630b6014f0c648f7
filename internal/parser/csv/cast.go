package csv

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"flightetl/internal/flight"
	"flightetl/internal/schema"
)

// A castFn parses one non-empty cell and stores it into the batch column at
// row. It returns false when the cell cannot be represented, leaving the
// column at its null sentinel.
type castFn func(b *flight.Batch, row int, s string) bool

// colCast is one compiled plan entry. bit marks the two flag columns, whose
// empty or failed cells must be recorded in the batch's FlagNull mask since a
// bit has no sentinel of its own.
type colCast struct {
	cast castFn
	bit  bool
}

// Column accessors keep the plan closures free of per-row name lookups; the
// batch pointer changes every chunk, so accessors resolve slices late.
var int16Cols = map[string]func(*flight.Batch) []int16{
	schema.ColYear:               func(b *flight.Batch) []int16 { return b.Year },
	schema.ColFlightNumber:       func(b *flight.Batch) []int16 { return b.FlightNumber },
	schema.ColScheduledDeparture: func(b *flight.Batch) []int16 { return b.SchedDep },
	schema.ColDepartureTime:      func(b *flight.Batch) []int16 { return b.DepTime },
	schema.ColWheelsOff:          func(b *flight.Batch) []int16 { return b.WheelsOff },
	schema.ColDistance:           func(b *flight.Batch) []int16 { return b.Distance },
	schema.ColWheelsOn:           func(b *flight.Batch) []int16 { return b.WheelsOn },
	schema.ColScheduledArrival:   func(b *flight.Batch) []int16 { return b.SchedArr },
	schema.ColArrivalTime:        func(b *flight.Batch) []int16 { return b.ArrTime },
}

var int8Cols = map[string]func(*flight.Batch) []int8{
	schema.ColMonth:     func(b *flight.Batch) []int8 { return b.Month },
	schema.ColDay:       func(b *flight.Batch) []int8 { return b.Day },
	schema.ColDayOfWeek: func(b *flight.Batch) []int8 { return b.DayOfWeek },
}

var f32Cols = map[string]func(*flight.Batch) []float32{
	schema.ColDepartureDelay:    func(b *flight.Batch) []float32 { return b.DepDelay },
	schema.ColTaxiOut:           func(b *flight.Batch) []float32 { return b.TaxiOut },
	schema.ColScheduledTime:     func(b *flight.Batch) []float32 { return b.SchedTime },
	schema.ColElapsedTime:       func(b *flight.Batch) []float32 { return b.Elapsed },
	schema.ColAirTime:           func(b *flight.Batch) []float32 { return b.AirTime },
	schema.ColTaxiIn:            func(b *flight.Batch) []float32 { return b.TaxiIn },
	schema.ColArrivalDelay:      func(b *flight.Batch) []float32 { return b.ArrDelay },
	schema.ColAirSystemDelay:    func(b *flight.Batch) []float32 { return b.AirSystemDelay },
	schema.ColSecurityDelay:     func(b *flight.Batch) []float32 { return b.SecurityDelay },
	schema.ColAirlineDelay:      func(b *flight.Batch) []float32 { return b.AirlineDelay },
	schema.ColLateAircraftDelay: func(b *flight.Batch) []float32 { return b.LateAircraftDelay },
	schema.ColWeatherDelay:      func(b *flight.Batch) []float32 { return b.WeatherDelay },
}

var strCols = map[string]func(*flight.Batch) []string{
	schema.ColAirline:            func(b *flight.Batch) []string { return b.Airline },
	schema.ColTailNumber:         func(b *flight.Batch) []string { return b.TailNumber },
	schema.ColOriginAirport:      func(b *flight.Batch) []string { return b.Origin },
	schema.ColDestinationAirport: func(b *flight.Batch) []string { return b.Dest },
}

var bitCols = map[string]func(*flight.Batch) interface{ Add(int) }{
	schema.ColDiverted:  func(b *flight.Batch) interface{ Add(int) } { return b.Diverted },
	schema.ColCancelled: func(b *flight.Batch) interface{ Add(int) } { return b.Cancelled },
}

// compileCastPlan builds one cast entry per base column, in registry order.
// Compiling once per stream keeps the hot loop free of map lookups and type
// switches; each closure carries its own range bounds.
func compileCastPlan(base []schema.Descriptor) ([]colCast, error) {
	plan := make([]colCast, len(base))
	for i, d := range base {
		d := d
		switch {
		case d.Kind == schema.KindInt && d.Width == schema.WidthInt16:
			col, ok := int16Cols[d.Name]
			if !ok {
				return nil, fmt.Errorf("cast plan: no int16 column for %q", d.Name)
			}
			lo, hi := rangeOrDefault(d, math.MinInt16, math.MaxInt16)
			plan[i].cast = func(b *flight.Batch, row int, s string) bool {
				v, ok := parseIntCell(s)
				if !ok || v < lo || v > hi {
					return false
				}
				col(b)[row] = int16(v)
				return true
			}

		case d.Kind == schema.KindInt && d.Width == schema.WidthInt8:
			col, ok := int8Cols[d.Name]
			if !ok {
				return nil, fmt.Errorf("cast plan: no int8 column for %q", d.Name)
			}
			lo, hi := rangeOrDefault(d, math.MinInt8, math.MaxInt8)
			plan[i].cast = func(b *flight.Batch, row int, s string) bool {
				v, ok := parseIntCell(s)
				if !ok || v < lo || v > hi {
					return false
				}
				col(b)[row] = int8(v)
				return true
			}

		case d.Kind == schema.KindFloat:
			col, ok := f32Cols[d.Name]
			if !ok {
				return nil, fmt.Errorf("cast plan: no float column for %q", d.Name)
			}
			nonNeg := d.NonNegative
			plan[i].cast = func(b *flight.Batch, row int, s string) bool {
				v, ok := parseFloatCell(s)
				if !ok || (nonNeg && v < 0) {
					return false
				}
				col(b)[row] = v
				return true
			}

		case d.Kind == schema.KindString:
			col, ok := strCols[d.Name]
			if !ok {
				return nil, fmt.Errorf("cast plan: no string column for %q", d.Name)
			}
			maxLen := d.MaxLen
			plan[i].cast = func(b *flight.Batch, row int, s string) bool {
				if maxLen > 0 && len(s) > maxLen {
					return false
				}
				col(b)[row] = s
				return true
			}

		case d.Kind == schema.KindBool:
			col, ok := bitCols[d.Name]
			if !ok {
				return nil, fmt.Errorf("cast plan: no flag column for %q", d.Name)
			}
			plan[i].bit = true
			plan[i].cast = func(b *flight.Batch, row int, s string) bool {
				v, ok := parseBoolCell(s)
				if !ok {
					return false
				}
				if v {
					col(b).Add(row)
				}
				return true
			}

		case d.Kind == schema.KindEnum:
			if d.Name != schema.ColCancellationReason {
				return nil, fmt.Errorf("cast plan: no enum column for %q", d.Name)
			}
			plan[i].cast = func(b *flight.Batch, row int, s string) bool {
				code := d.EnumCode(strings.ToUpper(s))
				if code == 0 {
					return false
				}
				b.Reason[row] = flight.CancelReason(code)
				return true
			}

		default:
			return nil, fmt.Errorf("cast plan: unhandled column %q (%s/%s)", d.Name, d.Kind, d.Width)
		}
	}
	return plan, nil
}

func rangeOrDefault(d schema.Descriptor, lo, hi int64) (int64, int64) {
	if d.Min == 0 && d.Max == 0 {
		return lo, hi
	}
	return int64(d.Min), int64(d.Max)
}

// parseIntCell parses integers quickly and only falls back to float parsing
// when the field contains a '.'. Exports written through pandas render whole
// numbers as "2354.0"; those must still land in integer columns.
func parseIntCell(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == float64(int64(f)) {
				return int64(f), true
			}
		}
	}
	return 0, false
}

// parseFloatCell parses a minute value into float32. Textual NaN/Inf are
// rejected so they cannot masquerade as the null sentinel.
func parseFloatCell(s string) (float32, bool) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, false
	}
	v := float32(f)
	if v != v || math.IsInf(f, 0) {
		return 0, false
	}
	return v, true
}

// parseBoolCell resolves the 0/1 flag vocabulary, tolerating spelled-out forms.
func parseBoolCell(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "y", "yes":
		return true, true
	case "0", "f", "false", "n", "no":
		return false, true
	}
	return false, false
}
