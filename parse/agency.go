package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

type AgencyCSV struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
}

// Returns the set of agency IDs and the feed's timezone.
func ParseAgency(writer Writer, data io.Reader) (map[string]bool, string, error) {
	rows := []*AgencyCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, "", fmt.Errorf("unmarshaling agency csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, "", fmt.Errorf("no agency record found")
	}

	// All agencies in a feed share a timezone.
	tz := rows[0].Timezone
	if tz == "" {
		return nil, "", fmt.Errorf("missing agency_timezone")
	}
	for _, a := range rows[1:] {
		if a.Timezone != tz {
			return nil, "", fmt.Errorf("multiple agency_timezone")
		}
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, "", fmt.Errorf("agency_timezone '%s' is invalid: %w", tz, err)
	}

	agency := map[string]bool{}
	for _, a := range rows {
		if agency[a.ID] {
			return nil, "", fmt.Errorf("duplicated agency_id: '%s'", a.ID)
		}
		agency[a.ID] = true

		if a.Name == "" {
			return nil, "", fmt.Errorf("missing agency_name")
		}

		err := writer.WriteAgency(&Agency{
			ID:       a.ID,
			Name:     a.Name,
			Timezone: tz,
		})
		if err != nil {
			return nil, "", fmt.Errorf("writing agency: %w", err)
		}
	}

	return agency, tz, nil
}
