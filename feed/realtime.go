package feed

import (
	"sort"
	"time"

	"tidbyt.dev/bustime/parse"
)

// Realtime updates indexed by trip, ordered by stop sequence.
type tripUpdates struct {
	canceled map[string]bool
	byTrip   map[string][]*parse.StopTimeUpdate
}

func indexRealtime(rt *parse.Realtime) *tripUpdates {
	idx := &tripUpdates{
		canceled: rt.CanceledTrips,
		byTrip:   map[string][]*parse.StopTimeUpdate{},
	}
	for _, u := range rt.Updates {
		idx.byTrip[u.TripID] = append(idx.byTrip[u.TripID], u)
	}
	for _, updates := range idx.byTrip {
		sort.SliceStable(updates, func(i, j int) bool {
			return updates[i].StopSequence < updates[j].StopSequence
		})
	}
	if idx.canceled == nil {
		idx.canceled = map[string]bool{}
	}
	return idx
}

func eventTime(scheduled time.Time, explicit time.Time, d time.Duration) time.Time {
	if !explicit.IsZero() {
		return explicit.In(scheduled.Location())
	}
	return scheduled.Add(d)
}

func delay(update *parse.StopTimeUpdate) time.Duration {
	if update.ArrivalDelay != 0 {
		return update.ArrivalDelay
	}
	return update.DepartureDelay
}

// Predicted time for a scheduled arrival. The bool is false when no
// prediction applies, or when the trip or stop won't be served.
func (u *tripUpdates) predict(stopID string, a Arrival) (time.Time, bool) {
	if u.canceled[a.TripID] {
		return time.Time{}, false
	}

	updates := u.byTrip[a.TripID]
	if len(updates) == 0 {
		return time.Time{}, false
	}

	// An update for this very stop wins.
	for _, update := range updates {
		if update.StopID != stopID && (update.StopSequence == 0 || update.StopSequence != a.StopSequence) {
			continue
		}
		switch update.Type {
		case parse.StopTimeUpdateScheduled:
			if !update.ArrivalTime.IsZero() {
				return eventTime(a.Time, update.ArrivalTime, 0), true
			}
			return eventTime(a.Time, update.DepartureTime, delay(update)), true
		default:
			return time.Time{}, false
		}
	}

	// Otherwise the delay of the closest earlier stop propagates
	// down the trip.
	idx := sort.Search(len(updates), func(i int) bool {
		return updates[i].StopSequence >= a.StopSequence
	}) - 1
	for idx >= 0 && updates[idx].Type == parse.StopTimeUpdateSkipped {
		idx--
	}
	if idx < 0 || updates[idx].Type != parse.StopTimeUpdateScheduled {
		return time.Time{}, false
	}

	return a.Time.Add(delay(updates[idx])), true
}

// Applies realtime updates to scheduled arrivals at a stop, keeping
// those at or after now. Ordered by predicted time.
func applyRealtime(rt *parse.Realtime, stopID string, scheduled []Arrival, now time.Time) []time.Time {
	updates := indexRealtime(rt)

	predicted := []time.Time{}
	for _, a := range scheduled {
		t, ok := updates.predict(stopID, a)
		if !ok || t.Before(now) {
			continue
		}
		predicted = append(predicted, t)
	}

	sort.Slice(predicted, func(i, j int) bool {
		return predicted[i].Before(predicted[j])
	})

	return predicted
}
