package parse

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Type      string `csv:"route_type"`
}

func legalRouteType(t RouteType) bool {
	return (t >= 0 && t <= 7) || t == 11 || t == 12
}

func ParseRoutes(writer Writer, data io.Reader, agency map[string]bool) (map[string]bool, error) {
	rows := []*RouteCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling routes csv: %w", err)
	}

	routes := map[string]bool{}
	for _, r := range rows {
		if r.ID == "" {
			return nil, fmt.Errorf("route has no route_id")
		}
		if routes[r.ID] {
			return nil, fmt.Errorf("repeated route_id: '%s'", r.ID)
		}
		routes[r.ID] = true

		if len(agency) > 1 && r.AgencyID == "" {
			return nil, fmt.Errorf("route_id '%s' has no agency_id", r.ID)
		}
		if r.AgencyID != "" && !agency[r.AgencyID] {
			return nil, fmt.Errorf("unknown agency_id: '%s'", r.AgencyID)
		}

		if r.ShortName == "" && r.LongName == "" {
			return nil, fmt.Errorf("route_id '%s' has no short_name or long_name", r.ID)
		}

		routeType, err := strconv.Atoi(r.Type)
		if err != nil {
			return nil, fmt.Errorf("route_id '%s' has invalid route_type: %w", r.ID, err)
		}
		if !legalRouteType(RouteType(routeType)) {
			return nil, fmt.Errorf("route_id '%s' has invalid route_type: %d", r.ID, routeType)
		}

		err = writer.WriteRoute(&Route{
			ID:        r.ID,
			AgencyID:  r.AgencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Type:      RouteType(routeType),
		})
		if err != nil {
			return nil, fmt.Errorf("writing route: %w", err)
		}
	}

	return routes, nil
}
