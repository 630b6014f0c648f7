package schema

// Canonical column names. Input headers are normalized (and optionally
// header_map-renamed) to these before anything else looks at them.
const (
	ColYear               = "year"
	ColMonth              = "month"
	ColDay                = "day"
	ColDayOfWeek          = "day_of_week"
	ColAirline            = "airline"
	ColFlightNumber       = "flight_number"
	ColTailNumber         = "tail_number"
	ColOriginAirport      = "origin_airport"
	ColDestinationAirport = "destination_airport"
	ColScheduledDeparture = "scheduled_departure"
	ColDepartureTime      = "departure_time"
	ColDepartureDelay     = "departure_delay"
	ColTaxiOut            = "taxi_out"
	ColWheelsOff          = "wheels_off"
	ColScheduledTime      = "scheduled_time"
	ColElapsedTime        = "elapsed_time"
	ColAirTime            = "air_time"
	ColDistance           = "distance"
	ColWheelsOn           = "wheels_on"
	ColTaxiIn             = "taxi_in"
	ColScheduledArrival   = "scheduled_arrival"
	ColArrivalTime        = "arrival_time"
	ColArrivalDelay       = "arrival_delay"
	ColDiverted           = "diverted"
	ColCancelled          = "cancelled"
	ColCancellationReason = "cancellation_reason"
	ColAirSystemDelay     = "air_system_delay"
	ColSecurityDelay      = "security_delay"
	ColAirlineDelay       = "airline_delay"
	ColLateAircraftDelay  = "late_aircraft_delay"
	ColWeatherDelay       = "weather_delay"

	ColRoute           = "route"
	ColDepartureHour   = "departure_hour"
	ColDeparturePeriod = "departure_period"
	ColIsWeekend       = "is_weekend"
	ColSeason          = "season"
	ColIsDelayed       = "is_delayed"
	ColDelayCategory   = "delay_category"
)

// CancellationReasons are the accepted reason codes, in stored-code order
// (code 1..4): carrier, weather, national air system, security.
var CancellationReasons = []string{"A", "B", "C", "D"}

// Flights returns the declared registry for the on-time-performance extract:
// 31 base columns as published in the carrier data dictionary plus the seven
// derived columns the pipeline appends. The returned registry is freshly
// built and safe to share; descriptors are value copies.
func Flights() *Registry {
	cols := []Descriptor{
		{Name: ColYear, Kind: KindInt, Width: WidthInt16, Group: GroupTemporal, Required: true, Min: 1987, Max: 2100},
		{Name: ColMonth, Kind: KindInt, Width: WidthInt8, Group: GroupTemporal, Required: true, Min: 1, Max: 12},
		{Name: ColDay, Kind: KindInt, Width: WidthInt8, Group: GroupTemporal, Required: true, Min: 1, Max: 31},
		{Name: ColDayOfWeek, Kind: KindInt, Width: WidthInt8, Group: GroupTemporal, Required: true, Min: 1, Max: 7},
		{Name: ColAirline, Kind: KindString, Width: WidthString, Group: GroupIdent, Required: true, MaxLen: 3},
		{Name: ColFlightNumber, Kind: KindInt, Width: WidthInt16, Group: GroupIdent, Required: true, Min: 1, Max: 9999},
		{Name: ColTailNumber, Kind: KindString, Width: WidthString, Group: GroupIdent, MaxLen: 8},
		{Name: ColOriginAirport, Kind: KindString, Width: WidthString, Group: GroupRoute, Required: true, MaxLen: 5},
		{Name: ColDestinationAirport, Kind: KindString, Width: WidthString, Group: GroupRoute, Required: true, MaxLen: 5},
		{Name: ColScheduledDeparture, Kind: KindInt, Width: WidthInt16, Group: GroupTime, Min: 0, Max: 2400},
		{Name: ColDepartureTime, Kind: KindInt, Width: WidthInt16, Group: GroupTime, Min: 0, Max: 2400},
		{Name: ColDepartureDelay, Kind: KindFloat, Width: WidthFloat32, Group: GroupDelay},
		{Name: ColTaxiOut, Kind: KindFloat, Width: WidthFloat32, Group: GroupDelay, NonNegative: true},
		{Name: ColWheelsOff, Kind: KindInt, Width: WidthInt16, Group: GroupTime, Min: 0, Max: 2400},
		{Name: ColScheduledTime, Kind: KindFloat, Width: WidthFloat32, Group: GroupDelay, NonNegative: true},
		{Name: ColElapsedTime, Kind: KindFloat, Width: WidthFloat32, Group: GroupDelay, NonNegative: true},
		{Name: ColAirTime, Kind: KindFloat, Width: WidthFloat32, Group: GroupDelay, NonNegative: true},
		{Name: ColDistance, Kind: KindInt, Width: WidthInt16, Group: GroupRoute, Required: true, Min: 0, Max: 9999},
		{Name: ColWheelsOn, Kind: KindInt, Width: WidthInt16, Group: GroupTime, Min: 0, Max: 2400},
		{Name: ColTaxiIn, Kind: KindFloat, Width: WidthFloat32, Group: GroupDelay, NonNegative: true},
		{Name: ColScheduledArrival, Kind: KindInt, Width: WidthInt16, Group: GroupTime, Min: 0, Max: 2400},
		{Name: ColArrivalTime, Kind: KindInt, Width: WidthInt16, Group: GroupTime, Min: 0, Max: 2400},
		{Name: ColArrivalDelay, Kind: KindFloat, Width: WidthFloat32, Group: GroupDelay},
		{Name: ColDiverted, Kind: KindBool, Width: WidthBit, Group: GroupFlag, Required: true},
		{Name: ColCancelled, Kind: KindBool, Width: WidthBit, Group: GroupFlag, Required: true},
		{Name: ColCancellationReason, Kind: KindEnum, Width: WidthInt8, Group: GroupCancellation, Enum: CancellationReasons},
		{Name: ColAirSystemDelay, Kind: KindFloat, Width: WidthFloat32, Group: GroupCause, NonNegative: true},
		{Name: ColSecurityDelay, Kind: KindFloat, Width: WidthFloat32, Group: GroupCause, NonNegative: true},
		{Name: ColAirlineDelay, Kind: KindFloat, Width: WidthFloat32, Group: GroupCause, NonNegative: true},
		{Name: ColLateAircraftDelay, Kind: KindFloat, Width: WidthFloat32, Group: GroupCause, NonNegative: true},
		{Name: ColWeatherDelay, Kind: KindFloat, Width: WidthFloat32, Group: GroupCause, NonNegative: true},

		{Name: ColRoute, Kind: KindString, Width: WidthString, Group: GroupDerived, MaxLen: 11, Derived: true},
		{Name: ColDepartureHour, Kind: KindInt, Width: WidthInt8, Group: GroupDerived, Min: 0, Max: 23, Derived: true},
		{Name: ColDeparturePeriod, Kind: KindEnum, Width: WidthInt8, Group: GroupDerived, Enum: []string{"Morning", "Afternoon", "Evening", "Night"}, Derived: true},
		{Name: ColIsWeekend, Kind: KindBool, Width: WidthBit, Group: GroupDerived, Derived: true},
		{Name: ColSeason, Kind: KindEnum, Width: WidthInt8, Group: GroupDerived, Enum: []string{"Winter", "Spring", "Summer", "Autumn"}, Derived: true},
		{Name: ColIsDelayed, Kind: KindBool, Width: WidthInt8, Group: GroupDerived, Derived: true},
		{Name: ColDelayCategory, Kind: KindEnum, Width: WidthInt8, Group: GroupDerived, Enum: []string{"OnTime", "Minor", "Moderate", "Severe", "Cancelled"}, Derived: true},
	}
	r, err := NewRegistry(cols)
	if err != nil {
		// The dictionary is compiled in; a construction failure is a
		// programming error.
		panic(err)
	}
	return r
}
