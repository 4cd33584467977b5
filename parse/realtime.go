package parse

import (
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"
)

type StopTimeUpdateType int

const (
	StopTimeUpdateScheduled StopTimeUpdateType = iota
	StopTimeUpdateSkipped
	StopTimeUpdateNoData
)

// A single stop_time_update from a TripUpdate. Arrival/Departure
// times are zero unless given explicitly. Delays apply to the static
// schedule.
type StopTimeUpdate struct {
	TripID         string
	RouteID        string
	StopID         string
	StopSequence   uint32
	ArrivalTime    time.Time
	ArrivalDelay   time.Duration
	DepartureTime  time.Time
	DepartureDelay time.Duration
	Type           StopTimeUpdateType
}

// Key data from one or more GTFS-rt TripUpdates feeds.
type Realtime struct {
	// Timestamp of the last feed parsed.
	Timestamp     time.Time
	CanceledTrips map[string]bool
	Updates       []*StopTimeUpdate

	// Trips with schedule relationships we don't handle.
	NumIgnoredTrips int
}

// Updates for a stop, in feed order.
func (rt *Realtime) UpdatesForStop(stopID string) []*StopTimeUpdate {
	updates := []*StopTimeUpdate{}
	for _, u := range rt.Updates {
		if u.StopID == stopID {
			updates = append(updates, u)
		}
	}
	return updates
}

func ParseRealtime(feeds ...[]byte) (*Realtime, error) {
	rt := &Realtime{
		CanceledTrips: map[string]bool{},
		Updates:       []*StopTimeUpdate{},
	}

	for _, feed := range feeds {
		f := &gtfsproto.FeedMessage{}
		if err := proto.Unmarshal(feed, f); err != nil {
			return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
		}

		header := f.GetHeader()
		if v := header.GetGtfsRealtimeVersion(); v != "2.0" && v != "1.0" {
			return nil, fmt.Errorf("version %s not supported", v)
		}
		if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
			return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
		}
		rt.Timestamp = time.Unix(int64(header.GetTimestamp()), 0).UTC()

		for _, entity := range f.GetEntity() {
			if err := rt.processTripUpdate(entity.GetTripUpdate()); err != nil {
				return nil, fmt.Errorf("processing entity '%s': %w", entity.GetId(), err)
			}
		}
	}

	return rt, nil
}

func (rt *Realtime) processTripUpdate(tu *gtfsproto.TripUpdate) error {
	if tu == nil {
		return nil
	}

	trip := tu.GetTrip()
	if trip == nil {
		return fmt.Errorf("trip_update missing trip")
	}

	// Trips identified by route/direction/start time only are
	// not supported.
	tripID := trip.GetTripId()
	if tripID == "" {
		rt.NumIgnoredTrips++
		return nil
	}

	switch trip.GetScheduleRelationship() {
	case gtfsproto.TripDescriptor_SCHEDULED:
		for _, stu := range tu.GetStopTimeUpdate() {
			if err := rt.processStopTimeUpdate(tripID, trip.GetRouteId(), stu); err != nil {
				return err
			}
		}
	case gtfsproto.TripDescriptor_CANCELED:
		rt.CanceledTrips[tripID] = true
	default:
		rt.NumIgnoredTrips++
	}

	return nil
}

func stopTimeEvent(ev *gtfsproto.TripUpdate_StopTimeEvent) (time.Time, time.Duration) {
	if ev == nil {
		return time.Time{}, 0
	}
	var t time.Time
	if unix := ev.GetTime(); unix != 0 {
		t = time.Unix(unix, 0).UTC()
	}
	return t, time.Duration(ev.GetDelay()) * time.Second
}

func (rt *Realtime) processStopTimeUpdate(tripID string, routeID string, stu *gtfsproto.TripUpdate_StopTimeUpdate) error {
	if stu.GetStopId() == "" && stu.StopSequence == nil {
		return fmt.Errorf("stop_time_update missing stop_id and stop_sequence")
	}

	update := &StopTimeUpdate{
		TripID:       tripID,
		RouteID:      routeID,
		StopID:       stu.GetStopId(),
		StopSequence: stu.GetStopSequence(),
	}
	update.ArrivalTime, update.ArrivalDelay = stopTimeEvent(stu.GetArrival())
	update.DepartureTime, update.DepartureDelay = stopTimeEvent(stu.GetDeparture())

	switch stu.GetScheduleRelationship() {
	case gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED:
		update.Type = StopTimeUpdateScheduled
	case gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED:
		update.Type = StopTimeUpdateSkipped
	case gtfsproto.TripUpdate_StopTimeUpdate_NO_DATA:
		update.Type = StopTimeUpdateNoData
	default:
		return nil
	}

	rt.Updates = append(rt.Updates, update)
	return nil
}
