package bustime

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"tidbyt.dev/bustime/model"
)

const (
	// The recent stop remains in focus.
	ResolveUnchanged = -1

	// Nothing matches the nickname closely enough.
	ResolveInvalid = -2

	// Largest edit distance accepted as a match.
	MaxResolveDistance = 3
)

// Resolves a spoken nickname to one of stops. Returns the index of
// the matching stop, ResolveUnchanged or ResolveInvalid.
//
// An empty nickname, or one matching recent exactly, leaves recent
// in focus. Stops are scanned in order and the first one at edit
// distance 1 is taken immediately. Otherwise the first stop with the
// smallest distance wins, provided that distance is shorter than the
// nickname and at most MaxResolveDistance.
func ResolveStop(nickname string, recent *model.Stop, stops []model.Stop) int {
	if nickname == "" || (recent != nil && nickname == recent.StopName) {
		return ResolveUnchanged
	}

	best := ResolveInvalid
	bestDistance := utf8.RuneCountInString(nickname)
	for i, stop := range stops {
		d := levenshtein.ComputeDistance(nickname, stop.StopName)
		if d == 1 {
			return i
		}
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if bestDistance > MaxResolveDistance {
		return ResolveInvalid
	}
	return best
}
