package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

func (c *CalendarCSV) weekday() (int8, error) {
	days := []struct {
		day   time.Weekday
		value int8
	}{
		{time.Monday, c.Monday},
		{time.Tuesday, c.Tuesday},
		{time.Wednesday, c.Wednesday},
		{time.Thursday, c.Thursday},
		{time.Friday, c.Friday},
		{time.Saturday, c.Saturday},
		{time.Sunday, c.Sunday},
	}

	var mask int8
	for _, d := range days {
		switch d.value {
		case 0:
		case 1:
			mask |= 1 << d.day
		default:
			return 0, fmt.Errorf("invalid %s value '%d'", d.day, d.value)
		}
	}
	return mask, nil
}

// Returns set of all service IDs, min date and max date.
func ParseCalendar(writer Writer, data io.Reader) (map[string]bool, string, string, error) {
	rows := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, "", "", fmt.Errorf("unmarshaling calendar csv: %w", err)
	}

	services := map[string]bool{}
	var minDate, maxDate string

	for _, c := range rows {
		if c.ServiceID == "" {
			return nil, "", "", fmt.Errorf("empty service_id")
		}
		if services[c.ServiceID] {
			return nil, "", "", fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		services[c.ServiceID] = true

		weekday, err := c.weekday()
		if err != nil {
			return nil, "", "", err
		}

		if _, err := time.Parse("20060102", c.StartDate); err != nil {
			return nil, "", "", fmt.Errorf("parsing start_date: %w", err)
		}
		if _, err := time.Parse("20060102", c.EndDate); err != nil {
			return nil, "", "", fmt.Errorf("parsing end_date: %w", err)
		}

		if minDate == "" || c.StartDate < minDate {
			minDate = c.StartDate
		}
		if maxDate == "" || c.EndDate > maxDate {
			maxDate = c.EndDate
		}

		err = writer.WriteCalendar(&Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
		if err != nil {
			return nil, "", "", fmt.Errorf("writing calendar: %w", err)
		}
	}

	return services, minDate, maxDate, nil
}
