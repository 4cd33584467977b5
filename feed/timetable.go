package feed

import (
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/bustime/parse"
)

// In-memory index of a static GTFS feed. Populated by parse.ParseStatic
// and read-only once loaded.
type Timetable struct {
	Metadata *parse.Metadata
	Location *time.Location

	maxArrival time.Duration

	stops         map[string]*parse.Stop
	routes        map[string]*parse.Route
	trips         map[string]*parse.Trip
	calendars     []*parse.Calendar
	calendarDates map[string][]*parse.CalendarDate
	stopTimes     map[string][]*parse.StopTime
}

// A scheduled arrival of a trip at a stop.
type Arrival struct {
	TripID       string
	RouteID      string
	StopSequence uint32
	Time         time.Time
}

func newTimetable() *Timetable {
	return &Timetable{
		stops:         map[string]*parse.Stop{},
		routes:        map[string]*parse.Route{},
		trips:         map[string]*parse.Trip{},
		calendarDates: map[string][]*parse.CalendarDate{},
		stopTimes:     map[string][]*parse.StopTime{},
	}
}

// Parses a zipped static GTFS feed.
func LoadTimetable(buf []byte) (*Timetable, error) {
	tt := newTimetable()

	metadata, err := parse.ParseStatic(tt, buf)
	if err != nil {
		return nil, fmt.Errorf("parsing static feed: %w", err)
	}

	location, err := time.LoadLocation(metadata.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	tt.Metadata = metadata
	tt.Location = location
	tt.maxArrival = (&parse.StopTime{Arrival: metadata.MaxArrival}).ArrivalTime()

	for _, sts := range tt.stopTimes {
		sort.SliceStable(sts, func(i, j int) bool {
			return sts[i].Arrival < sts[j].Arrival
		})
	}

	return tt, nil
}

func (tt *Timetable) WriteAgency(agency *parse.Agency) error {
	return nil
}

func (tt *Timetable) WriteStop(stop *parse.Stop) error {
	tt.stops[stop.ID] = stop
	return nil
}

func (tt *Timetable) WriteRoute(route *parse.Route) error {
	tt.routes[route.ID] = route
	return nil
}

func (tt *Timetable) WriteTrip(trip *parse.Trip) error {
	tt.trips[trip.ID] = trip
	return nil
}

func (tt *Timetable) WriteCalendar(cal *parse.Calendar) error {
	tt.calendars = append(tt.calendars, cal)
	return nil
}

func (tt *Timetable) WriteCalendarDate(caldate *parse.CalendarDate) error {
	tt.calendarDates[caldate.Date] = append(tt.calendarDates[caldate.Date], caldate)
	return nil
}

func (tt *Timetable) WriteStopTime(stopTime *parse.StopTime) error {
	tt.stopTimes[stopTime.StopID] = append(tt.stopTimes[stopTime.StopID], stopTime)
	return nil
}

func (tt *Timetable) Stop(stopID string) (*parse.Stop, bool) {
	stop, ok := tt.stops[stopID]
	return stop, ok
}

func (tt *Timetable) Route(routeID string) (*parse.Route, bool) {
	route, ok := tt.routes[routeID]
	return route, ok
}

// Service IDs active on a date (YYYYMMDD), sorted.
func (tt *Timetable) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	services := map[string]bool{}
	for _, cal := range tt.calendars {
		if !cal.RunsOn(parsedDate.Weekday()) {
			continue
		}
		if cal.StartDate > date || cal.EndDate < date {
			continue
		}
		services[cal.ServiceID] = true
	}

	for _, cd := range tt.calendarDates[date] {
		switch cd.ExceptionType {
		case parse.ExceptionTypeAdded:
			services[cd.ServiceID] = true
		case parse.ExceptionTypeRemoved:
			services[cd.ServiceID] = false
		}
	}

	active := []string{}
	for serviceID, ok := range services {
		if ok {
			active = append(active, serviceID)
		}
	}
	sort.Strings(active)

	return active, nil
}

// Scheduled arrivals of a route at a stop, in a direction, within
// [start, start+window]. Ordered by time, returned in start's time
// zone.
func (tt *Timetable) Arrivals(
	stopID string,
	routeID string,
	directionID int8,
	start time.Time,
	window time.Duration,
) ([]Arrival, error) {
	arrivals := []Arrival{}

	origTz := start.Location()
	startTime := start.In(tt.Location)
	endTime := startTime.Add(window)

	for _, span := range rangePerDate(startTime, window, tt.maxArrival) {
		serviceIDs, err := tt.ActiveServices(span.Date)
		if err != nil {
			return nil, err
		}
		if len(serviceIDs) == 0 {
			continue
		}
		active := map[string]bool{}
		for _, id := range serviceIDs {
			active[id] = true
		}

		date, _ := time.ParseInLocation("20060102", span.Date, tt.Location)
		dateNoon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, tt.Location)

		for _, st := range tt.stopTimes[stopID] {
			if span.Start != "" && st.Arrival < span.Start {
				continue
			}
			if span.End != "" && st.Arrival > span.End {
				break
			}

			trip := tt.trips[st.TripID]
			if trip == nil || trip.RouteID != routeID || trip.DirectionID != directionID {
				continue
			}
			if !active[trip.ServiceID] {
				continue
			}

			t := dateNoon.Add(-12 * time.Hour).Add(st.ArrivalTime())
			if t.Before(startTime) || t.After(endTime) {
				continue
			}

			arrivals = append(arrivals, Arrival{
				TripID:       trip.ID,
				RouteID:      trip.RouteID,
				StopSequence: st.StopSequence,
				Time:         t.In(origTz),
			})
		}
	}

	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].Time.Before(arrivals[j].Time)
	})

	return arrivals, nil
}

// Translates a time offset into a GTFS style HHMMSS string.
func gtfsDate(offset time.Duration) string {
	h := int(offset.Hours())
	m := int(offset.Minutes()) - h*60
	s := int(offset.Seconds()) - h*3600 - m*60
	return fmt.Sprintf("%02d%02d%02d", h, m, s)
}

// Time range to inspect on a single service day. Empty Start or End
// leaves that side open.
type span struct {
	Date  string
	Start string
	End   string
}

// Splits a time window into per service day ranges. The previous day
// is included, since trips may run past midnight (up to maxTrip).
func rangePerDate(start time.Time, window time.Duration, maxTrip time.Duration) []span {
	end := start.Add(window)

	spans := []span{}

	date := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	for today := date.AddDate(0, 0, -1); today.Before(end); today = today.AddDate(0, 0, 1) {
		noon := time.Date(today.Year(), today.Month(), today.Day(), 12, 0, 0, 0, today.Location())
		tomorrow := today.AddDate(0, 0, 1)

		s := span{Date: today.Format("20060102")}

		if !start.Before(today) {
			x := start.Sub(noon) + 12*time.Hour
			if !start.Before(tomorrow) && x > maxTrip {
				continue
			}
			s.Start = gtfsDate(x)
		}

		if end.Before(tomorrow) {
			s.End = gtfsDate(end.Sub(noon) + 12*time.Hour)
		} else if x := end.Sub(noon) + 12*time.Hour; x <= maxTrip {
			s.End = gtfsDate(x)
		}

		spans = append(spans, s)
	}

	return spans
}
