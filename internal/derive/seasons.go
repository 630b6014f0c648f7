package derive

import (
	"fmt"
	"strconv"
	"strings"

	"flightetl/internal/flight"
)

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

var seasonNames = map[string]flight.Season{
	"winter": flight.SeasonWinter,
	"spring": flight.SeasonSpring,
	"summer": flight.SeasonSummer,
	"autumn": flight.SeasonAutumn,
	"fall":   flight.SeasonAutumn,
}

// ParseSeasonMap turns a config month-to-season table into a season lookup.
// Keys are month numbers ("1".."12") or English month names; values are
// season names, with "fall" accepted for autumn. Months absent from the map
// keep their default assignment, so a partial override like
// {"december": "summer"} is enough for a southern-hemisphere tweak of one
// month, and an empty map means the defaults apply unchanged.
func ParseSeasonMap(m map[string]string) ([13]flight.Season, error) {
	out := DefaultSeasons()
	for k, v := range m {
		month, err := parseMonth(k)
		if err != nil {
			return out, err
		}
		season, ok := seasonNames[strings.ToLower(strings.TrimSpace(v))]
		if !ok {
			return out, fmt.Errorf("season_mapping: unknown season %q for month %q", v, k)
		}
		out[month] = season
	}
	return out, nil
}

func parseMonth(k string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(k))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, fmt.Errorf("season_mapping: month %d out of range", n)
		}
		return n, nil
	}
	if n, ok := monthNames[s]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("season_mapping: unknown month %q", k)
}
