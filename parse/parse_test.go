package parse_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/bustime/parse"
	"tidbyt.dev/bustime/testutil"
)

type recorder struct {
	agencies      []*parse.Agency
	stops         []*parse.Stop
	routes        []*parse.Route
	trips         []*parse.Trip
	calendars     []*parse.Calendar
	calendarDates []*parse.CalendarDate
	stopTimes     []*parse.StopTime
}

func (r *recorder) WriteAgency(a *parse.Agency) error { r.agencies = append(r.agencies, a); return nil }
func (r *recorder) WriteStop(s *parse.Stop) error     { r.stops = append(r.stops, s); return nil }
func (r *recorder) WriteRoute(rt *parse.Route) error  { r.routes = append(r.routes, rt); return nil }
func (r *recorder) WriteTrip(t *parse.Trip) error     { r.trips = append(r.trips, t); return nil }
func (r *recorder) WriteCalendar(c *parse.Calendar) error {
	r.calendars = append(r.calendars, c)
	return nil
}
func (r *recorder) WriteCalendarDate(cd *parse.CalendarDate) error {
	r.calendarDates = append(r.calendarDates, cd)
	return nil
}
func (r *recorder) WriteStopTime(st *parse.StopTime) error {
	r.stopTimes = append(r.stopTimes, st)
	return nil
}

func csv(lines ...string) *bytes.Buffer {
	return bytes.NewBufferString(strings.Join(lines, "\n"))
}

func validFeed() map[string][]string {
	return map[string][]string{
		"agency.txt": {
			"agency_id,agency_name,agency_url,agency_timezone",
			"1,MBTA,http://www.mbta.com,America/New_York",
		},
		"routes.txt": {
			"route_id,agency_id,route_short_name,route_long_name,route_type",
			"57,1,57,Watertown Yard - Kenmore,3",
		},
		"calendar.txt": {
			"service_id,start_date,end_date,monday,tuesday,wednesday,thursday,friday,saturday,sunday",
			"weekday,20240101,20241231,1,1,1,1,1,0,0",
		},
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"weekday,20240704,2",
			"holiday,20240704,1",
		},
		"trips.txt": {
			"trip_id,route_id,service_id,trip_headsign,direction_id",
			"t1,57,weekday,Kenmore,1",
		},
		"stops.txt": {
			"stop_id,stop_code,stop_name,location_type,parent_station",
			"86963,86963,Washington St @ Oak Sq,0,",
			"900,900,Kenmore,0,",
		},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
			"t1,86963,1,7:00:00,07:00:30",
			"t1,900,2,25:10:00,25:10:00",
		},
	}
}

func TestParseStatic(t *testing.T) {
	r := &recorder{}
	metadata, err := parse.ParseStatic(r, testutil.BuildZip(t, validFeed()))
	require.NoError(t, err)

	assert.Equal(t, &parse.Metadata{
		Timezone:          "America/New_York",
		CalendarStartDate: "20240101",
		CalendarEndDate:   "20241231",
		MaxArrival:        "251000",
		MaxDeparture:      "251000",
	}, metadata)

	assert.Equal(t, []*parse.Agency{{ID: "1", Name: "MBTA", Timezone: "America/New_York"}}, r.agencies)
	assert.Equal(t, []*parse.Route{{ID: "57", AgencyID: "1", ShortName: "57", LongName: "Watertown Yard - Kenmore", Type: parse.RouteTypeBus}}, r.routes)
	assert.Equal(t, []*parse.Trip{{ID: "t1", RouteID: "57", ServiceID: "weekday", Headsign: "Kenmore", DirectionID: 1}}, r.trips)
	assert.Equal(t, 2, len(r.stops))
	assert.Equal(t, 2, len(r.calendarDates))

	require.Equal(t, 1, len(r.calendars))
	assert.True(t, r.calendars[0].RunsOn(time.Monday))
	assert.True(t, r.calendars[0].RunsOn(time.Friday))
	assert.False(t, r.calendars[0].RunsOn(time.Sunday))

	require.Equal(t, 2, len(r.stopTimes))
	assert.Equal(t, "070000", r.stopTimes[0].Arrival)
	assert.Equal(t, "070030", r.stopTimes[0].Departure)
	assert.Equal(t, 7*time.Hour+30*time.Second, r.stopTimes[0].DepartureTime())
	assert.Equal(t, 25*time.Hour+10*time.Minute, r.stopTimes[1].ArrivalTime())
}

func TestParseStaticMissingFiles(t *testing.T) {
	for _, missing := range []string{"agency.txt", "routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		t.Run(missing, func(t *testing.T) {
			files := validFeed()
			delete(files, missing)
			_, err := parse.ParseStatic(&recorder{}, testutil.BuildZip(t, files))
			assert.ErrorContains(t, err, "missing "+missing)
		})
	}

	files := validFeed()
	delete(files, "calendar.txt")
	delete(files, "calendar_dates.txt")
	_, err := parse.ParseStatic(&recorder{}, testutil.BuildZip(t, files))
	assert.Error(t, err)

	_, err = parse.ParseStatic(&recorder{}, []byte("not a zip"))
	assert.Error(t, err)
}

func TestParseStaticSubdirectory(t *testing.T) {
	files := map[string][]string{}
	for name, content := range validFeed() {
		files["gtfs/"+name] = content
	}
	_, err := parse.ParseStatic(&recorder{}, testutil.BuildZip(t, files))
	assert.NoError(t, err)
}

func TestParseAgency(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []string
		ok   bool
	}{
		{"valid", []string{"agency_name,agency_url,agency_timezone", "A,http://a,UTC"}, true},
		{"empty", []string{"agency_name,agency_url,agency_timezone"}, false},
		{"no timezone", []string{"agency_name,agency_url,agency_timezone", "A,http://a,"}, false},
		{"bad timezone", []string{"agency_name,agency_url,agency_timezone", "A,http://a,Mars/Olympus"}, false},
		{"mixed timezones", []string{"agency_id,agency_name,agency_url,agency_timezone", "a,A,http://a,UTC", "b,B,http://b,America/New_York"}, false},
		{"duplicate id", []string{"agency_id,agency_name,agency_url,agency_timezone", "a,A,http://a,UTC", "a,B,http://b,UTC"}, false},
		{"no name", []string{"agency_name,agency_url,agency_timezone", ",http://a,UTC"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parse.ParseAgency(&recorder{}, csv(tc.data...))
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseRoutes(t *testing.T) {
	agency := map[string]bool{"a": true}
	for _, tc := range []struct {
		name string
		data []string
		ok   bool
	}{
		{"valid", []string{"route_id,route_short_name,route_type", "57,57,3"}, true},
		{"no id", []string{"route_id,route_short_name,route_type", ",57,3"}, false},
		{"repeated", []string{"route_id,route_short_name,route_type", "57,57,3", "57,57,3"}, false},
		{"no names", []string{"route_id,route_type", "57,3"}, false},
		{"bad type", []string{"route_id,route_short_name,route_type", "57,57,9"}, false},
		{"missing type", []string{"route_id,route_short_name,route_type", "57,57,"}, false},
		{"unknown agency", []string{"route_id,agency_id,route_short_name,route_type", "57,b,57,3"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse.ParseRoutes(&recorder{}, csv(tc.data...), agency)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseStops(t *testing.T) {
	_, err := parse.ParseStops(&recorder{}, csv("stop_id,stop_name,parent_station", "s,Stop,p", "p,Station,"))
	assert.NoError(t, err)

	_, err = parse.ParseStops(&recorder{}, csv("stop_id,stop_name,parent_station", "s,Stop,nope"))
	assert.ErrorContains(t, err, "unknown parent_station")

	_, err = parse.ParseStops(&recorder{}, csv("stop_id,stop_name", "s,"))
	assert.ErrorContains(t, err, "empty stop_name")

	// Generic nodes don't need names
	_, err = parse.ParseStops(&recorder{}, csv("stop_id,stop_name,location_type", "s,,3"))
	assert.NoError(t, err)

	_, err = parse.ParseStops(&recorder{}, csv("stop_id,stop_name", "s,A", "s,B"))
	assert.ErrorContains(t, err, "repeated stop_id")
}

func TestParseTrips(t *testing.T) {
	routes := map[string]bool{"r": true}
	services := map[string]bool{"s": true}

	_, err := parse.ParseTrips(&recorder{}, csv("trip_id,route_id,service_id,direction_id", "t,r,s,1"), routes, services)
	assert.NoError(t, err)

	_, err = parse.ParseTrips(&recorder{}, csv("trip_id,route_id,service_id", "t,x,s"), routes, services)
	assert.ErrorContains(t, err, "unknown route_id")

	_, err = parse.ParseTrips(&recorder{}, csv("trip_id,route_id,service_id", "t,r,x"), routes, services)
	assert.ErrorContains(t, err, "unknown service_id")

	_, err = parse.ParseTrips(&recorder{}, csv("trip_id,route_id,service_id,direction_id", "t,r,s,2"), routes, services)
	assert.ErrorContains(t, err, "invalid direction_id")
}

func TestParseCalendar(t *testing.T) {
	header := "service_id,start_date,end_date,monday,tuesday,wednesday,thursday,friday,saturday,sunday"

	services, minDate, maxDate, err := parse.ParseCalendar(&recorder{}, csv(
		header,
		"a,20240101,20240601,1,0,0,0,0,0,0",
		"b,20231201,20240301,0,0,0,0,0,1,1",
	))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, services)
	assert.Equal(t, "20231201", minDate)
	assert.Equal(t, "20240601", maxDate)

	_, _, _, err = parse.ParseCalendar(&recorder{}, csv(header, "a,20240101,20240601,2,0,0,0,0,0,0"))
	assert.ErrorContains(t, err, "invalid Monday value")

	_, _, _, err = parse.ParseCalendar(&recorder{}, csv(header, "a,2024-01-01,20240601,1,0,0,0,0,0,0"))
	assert.ErrorContains(t, err, "start_date")

	_, _, _, err = parse.ParseCalendar(&recorder{}, csv(header, "a,20240101,20240601,1,0,0,0,0,0,0", "a,20240101,20240601,1,0,0,0,0,0,0"))
	assert.ErrorContains(t, err, "repeated service_id")
}

func TestParseCalendarDates(t *testing.T) {
	services, minDate, maxDate, err := parse.ParseCalendarDates(&recorder{}, csv(
		"service_id,date,exception_type",
		"a,20240704,1",
		"b,20240101,2",
	))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, services)
	assert.Equal(t, "20240101", minDate)
	assert.Equal(t, "20240704", maxDate)

	_, _, _, err = parse.ParseCalendarDates(&recorder{}, csv("service_id,date,exception_type", "a,20240704,3"))
	assert.ErrorContains(t, err, "illegal exception_type")

	_, _, _, err = parse.ParseCalendarDates(&recorder{}, csv("service_id,date,exception_type", "a,20240704,1", "a,20240704,2"))
	assert.ErrorContains(t, err, "duplicate service/date")
}

func TestParseStopTimes(t *testing.T) {
	trips := map[string]bool{"t": true}
	stops := map[string]bool{"s1": true, "s2": true}
	header := "trip_id,stop_id,stop_sequence,arrival_time,departure_time"

	for _, tc := range []struct {
		name string
		rows []string
		err  string
	}{
		{"unknown trip", []string{"x,s1,1,10:00:00,10:00:00"}, "unknown trip_id"},
		{"unknown stop", []string{"t,x,1,10:00:00,10:00:00"}, "unknown stop_id"},
		{"missing stop", []string{"t,,1,10:00:00,10:00:00"}, "missing stop_id"},
		{"bad arrival", []string{"t,s1,1,10:00,10:00:00"}, "parsing arrival_time"},
		{"bad minute", []string{"t,s1,1,10:00:00,10:60:00"}, "invalid minute"},
		{"duplicate seq", []string{"t,s1,1,10:00:00,10:00:00", "t,s2,1,10:05:00,10:05:00"}, "duplicate stop_sequence"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parse.ParseStopTimes(&recorder{}, csv(append([]string{header}, tc.rows...)...), trips, stops)
			assert.ErrorContains(t, err, tc.err)
		})
	}
}
