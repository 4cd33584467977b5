package parse

import (
	"strconv"
	"time"
)

// Receives GTFS records as they are parsed.
type Writer interface {
	WriteAgency(agency *Agency) error
	WriteStop(stop *Stop) error
	WriteRoute(route *Route) error
	WriteTrip(trip *Trip) error
	WriteCalendar(cal *Calendar) error
	WriteCalendarDate(caldate *CalendarDate) error
	WriteStopTime(stopTime *StopTime) error
}

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

type Agency struct {
	ID       string
	Name     string
	Timezone string
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	LocationType  LocationType
	ParentStation string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Type      RouteType
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	DirectionID int8
}

// Weekday is a bitmask, with bit n set if service runs on
// time.Weekday(n).
type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

func (c *Calendar) RunsOn(day time.Weekday) bool {
	return c.Weekday&(1<<day) != 0
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

// Arrival and Departure are HHMMSS, with hours possibly exceeding 23
// for trips running past midnight.
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Arrival      string
	Departure    string
}

func hhmmss(s string) time.Duration {
	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	sec, _ := strconv.Atoi(s[4:6])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}

// Offset from noon minus 12h of the service day.
func (st *StopTime) ArrivalTime() time.Duration {
	return hhmmss(st.Arrival)
}

func (st *StopTime) DepartureTime() time.Duration {
	return hhmmss(st.Departure)
}

// Summary of a parsed static feed.
type Metadata struct {
	Timezone          string
	CalendarStartDate string
	CalendarEndDate   string
	MaxArrival        string
	MaxDeparture      string
}
