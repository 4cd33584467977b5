package model

import (
	"fmt"
	"strings"
	"time"
)

// Holds all external facing types and constants.

// Maximum number of routes tracked per stop.
const MaxRoutes = 3

// Direction of travel at a stop, as per GTFS/MBTA direction_id.
type Direction int8

const (
	DirectionOutbound Direction = 0
	DirectionInbound  Direction = 1
)

func (d Direction) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// Anything other than "inbound" is treated as outbound.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), "inbound") {
		return DirectionInbound
	}
	return DirectionOutbound
}

// A transit stop saved by a device.
type Stop struct {
	DeviceID    string    `json:"deviceId"`
	StopID      string    `json:"stopId"`
	Direction   Direction `json:"direction"`
	StopName    string    `json:"stopName"`
	RouteIDs    []string  `json:"routeIds"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Key uniquely identifying a stop for its device.
func (s Stop) Key() string {
	return fmt.Sprintf("%s-%d", s.StopID, s.Direction)
}

func (s Stop) Clone() Stop {
	c := s
	c.RouteIDs = append([]string{}, s.RouteIDs...)
	return c
}

// Appends a route ID, keeping at most MaxRoutes. Routes already
// present are left in place. When full, the oldest route (index 0)
// is evicted.
func AddRoute(routes []string, routeID string) []string {
	out := make([]string, 0, len(routes)+1)
	seen := map[string]bool{}
	for _, r := range append(append([]string(nil), routes...), routeID) {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	for len(out) > MaxRoutes {
		out = out[1:]
	}
	return out
}

// Removes a route ID. No-op if absent.
func RemoveRoute(routes []string, routeID string) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		if r != routeID {
			out = append(out, r)
		}
	}
	return out
}

// Entry in a transit provider's stop registry.
type StopInfo struct {
	ID   string
	Name string
}

// Outcome of a single turn, rendered by a platform adapter.
type Response struct {
	Speech     string `json:"speech"`
	Display    string `json:"display"`
	Reprompt   string `json:"reprompt,omitempty"`
	EndSession bool   `json:"endSession"`
}

// Prediction results for a single route.
type RouteResult struct {
	RouteID     string
	Predictions []string
	Scheduled   string
}

func (r RouteResult) HasTime() bool {
	return len(r.Predictions) > 0 || r.Scheduled != ""
}
