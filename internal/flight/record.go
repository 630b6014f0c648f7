package flight

// Record is a row-wise view of one batch row with Go-native nullability.
// Hot paths stay columnar; Record exists for tests, rejected-row diagnostics,
// and anywhere a single flight needs to travel on its own.
type Record struct {
	Line int32

	Year      *int
	Month     *int
	Day       *int
	DayOfWeek *int

	Airline      string
	FlightNumber *int
	TailNumber   string
	Origin       string
	Dest         string

	SchedDep *int
	DepTime  *int
	DepDelay *float64
	ArrDelay *float64

	Diverted  bool
	Cancelled bool
	Reason    CancelReason

	AirSystemDelay    *float64
	SecurityDelay     *float64
	AirlineDelay      *float64
	LateAircraftDelay *float64
	WeatherDelay      *float64

	Route    string
	DepHour  *int
	Period   Period
	Weekend  bool
	Season   Season
	Delayed  Tri
	Category DelayCategory
}

func intPtr16(v int16) *int {
	if v == NullInt16 {
		return nil
	}
	n := int(v)
	return &n
}

func intPtr8(v int8) *int {
	if v == NullInt8 {
		return nil
	}
	n := int(v)
	return &n
}

func floatPtr(v float32) *float64 {
	if IsNullF32(v) {
		return nil
	}
	f := float64(v)
	return &f
}

// Record materializes row i. It allocates; do not call it per row on the
// batch-size path.
func (b *Batch) Record(i int) Record {
	return Record{
		Line: b.Lines[i],

		Year:      intPtr16(b.Year[i]),
		Month:     intPtr8(b.Month[i]),
		Day:       intPtr8(b.Day[i]),
		DayOfWeek: intPtr8(b.DayOfWeek[i]),

		Airline:      b.Airline[i],
		FlightNumber: intPtr16(b.FlightNumber[i]),
		TailNumber:   b.TailNumber[i],
		Origin:       b.Origin[i],
		Dest:         b.Dest[i],

		SchedDep: intPtr16(b.SchedDep[i]),
		DepTime:  intPtr16(b.DepTime[i]),
		DepDelay: floatPtr(b.DepDelay[i]),
		ArrDelay: floatPtr(b.ArrDelay[i]),

		Diverted:  b.Diverted.Has(i),
		Cancelled: b.Cancelled.Has(i),
		Reason:    b.Reason[i],

		AirSystemDelay:    floatPtr(b.AirSystemDelay[i]),
		SecurityDelay:     floatPtr(b.SecurityDelay[i]),
		AirlineDelay:      floatPtr(b.AirlineDelay[i]),
		LateAircraftDelay: floatPtr(b.LateAircraftDelay[i]),
		WeatherDelay:      floatPtr(b.WeatherDelay[i]),

		Route:    b.Route[i],
		DepHour:  intPtr8(b.DepHour[i]),
		Period:   b.Period[i],
		Weekend:  b.Weekend.Has(i),
		Season:   b.Season[i],
		Delayed:  b.Delayed[i],
		Category: b.Category[i],
	}
}
