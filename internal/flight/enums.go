package flight

// CancelReason is the coded cancellation reason. The wire codes A..D map to
// carrier, weather, national air system, and security; zero means "no reason
// recorded", which after cleaning implies the flight was not cancelled.
type CancelReason int8

const (
	ReasonNone CancelReason = iota
	ReasonCarrier
	ReasonWeather
	ReasonNAS
	ReasonSecurity
)

// Code returns the single-letter wire form, empty for ReasonNone.
func (r CancelReason) Code() string {
	switch r {
	case ReasonCarrier:
		return "A"
	case ReasonWeather:
		return "B"
	case ReasonNAS:
		return "C"
	case ReasonSecurity:
		return "D"
	}
	return ""
}

// String returns the decoded name used in reports.
func (r CancelReason) String() string {
	switch r {
	case ReasonCarrier:
		return "carrier"
	case ReasonWeather:
		return "weather"
	case ReasonNAS:
		return "nas"
	case ReasonSecurity:
		return "security"
	}
	return ""
}

// Period buckets the scheduled departure hour. PeriodNone marks rows whose
// departure time could not be parsed.
type Period int8

const (
	PeriodNone Period = iota
	PeriodMorning
	PeriodAfternoon
	PeriodEvening
	PeriodNight
)

func (p Period) String() string {
	switch p {
	case PeriodMorning:
		return "Morning"
	case PeriodAfternoon:
		return "Afternoon"
	case PeriodEvening:
		return "Evening"
	case PeriodNight:
		return "Night"
	}
	return ""
}

// Season is the meteorological season derived from the flight month.
type Season int8

const (
	SeasonNone Season = iota
	SeasonWinter
	SeasonSpring
	SeasonSummer
	SeasonAutumn
)

func (s Season) String() string {
	switch s {
	case SeasonWinter:
		return "Winter"
	case SeasonSpring:
		return "Spring"
	case SeasonSummer:
		return "Summer"
	case SeasonAutumn:
		return "Autumn"
	}
	return ""
}

// DelayCategory is the ordered severity bucket. Cancelled outranks every
// delay bucket; the others are a pure function of arrival delay minutes.
type DelayCategory int8

const (
	CategoryNone DelayCategory = iota
	CategoryOnTime
	CategoryMinor
	CategoryModerate
	CategorySevere
	CategoryCancelled
)

func (c DelayCategory) String() string {
	switch c {
	case CategoryOnTime:
		return "OnTime"
	case CategoryMinor:
		return "Minor"
	case CategoryModerate:
		return "Moderate"
	case CategorySevere:
		return "Severe"
	case CategoryCancelled:
		return "Cancelled"
	}
	return ""
}

// Tri is a nullable boolean held in one byte.
type Tri int8

const (
	TriNull  Tri = -1
	TriFalse Tri = 0
	TriTrue  Tri = 1
)

// TriOf converts a known boolean.
func TriOf(v bool) Tri {
	if v {
		return TriTrue
	}
	return TriFalse
}

// Bool returns the value and whether it is non-null.
func (t Tri) Bool() (value, ok bool) {
	switch t {
	case TriTrue:
		return true, true
	case TriFalse:
		return false, true
	}
	return false, false
}
