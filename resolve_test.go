package bustime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/model"
)

func namedStops(names ...string) []model.Stop {
	stops := []model.Stop{}
	for _, name := range names {
		stops = append(stops, model.Stop{StopID: name, StopName: name})
	}
	return stops
}

func TestResolveStop(t *testing.T) {
	stops := namedStops("home", "work", "grandma")
	recent := &stops[0]
	workStops := namedStops("homes", "home", "work")
	shortStops := namedStops("xyz", "work")

	for _, tc := range []struct {
		name     string
		nickname string
		recent   *model.Stop
		stops    []model.Stop
		expected int
	}{
		{"empty nickname", "", recent, stops, bustime.ResolveUnchanged},
		{"matches recent", "home", recent, stops, bustime.ResolveUnchanged},
		{"exact other stop", "work", recent, stops, 1},
		{"distance one", "wirk", recent, stops, 1},
		{"distance one returns immediately", "grandpa", recent, namedStops("grand", "grandpa2"), 1},
		{"distance one before exact match", "home", &workStops[2], workStops, 0},
		{"distance must be shorter than nickname", "ab", &shortStops[1], shortStops, bustime.ResolveInvalid},
		{"exact match after closer misses", "work", nil, namedStops("grandma", "work"), 1},
		{"closest within tolerance", "grand", recent, stops, 2},
		{"ties go to first", "xxxx", recent, namedStops("xxaa", "xxbb"), 0},
		{"too far", "supermarket", recent, stops, bustime.ResolveInvalid},
		{"no stops", "home", nil, nil, bustime.ResolveInvalid},
		{"no recent", "wrk", nil, stops, 1},
		{"empty nickname no stops", "", nil, nil, bustime.ResolveUnchanged},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, bustime.ResolveStop(tc.nickname, tc.recent, tc.stops))
		})
	}
}
