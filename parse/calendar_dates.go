package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int8   `csv:"exception_type"`
}

// Returns set of all service IDs, min date and max date.
func ParseCalendarDates(writer Writer, data io.Reader) (map[string]bool, string, string, error) {
	rows := []*CalendarDateCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, "", "", fmt.Errorf("unmarshaling calendar_dates csv: %w", err)
	}

	services := map[string]bool{}
	seen := map[[2]string]bool{}
	var minDate, maxDate string

	for _, cd := range rows {
		exceptionType := ExceptionType(cd.ExceptionType)
		if exceptionType != ExceptionTypeAdded && exceptionType != ExceptionTypeRemoved {
			return nil, "", "", fmt.Errorf("illegal exception_type: '%d'", cd.ExceptionType)
		}

		if _, err := time.Parse("20060102", cd.Date); err != nil {
			return nil, "", "", fmt.Errorf("parsing date '%s': %w", cd.Date, err)
		}

		key := [2]string{cd.ServiceID, cd.Date}
		if seen[key] {
			return nil, "", "", fmt.Errorf("duplicate service/date: '%s-%s'", cd.Date, cd.ServiceID)
		}
		seen[key] = true
		services[cd.ServiceID] = true

		if minDate == "" || cd.Date < minDate {
			minDate = cd.Date
		}
		if maxDate == "" || cd.Date > maxDate {
			maxDate = cd.Date
		}

		err := writer.WriteCalendarDate(&CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: exceptionType,
		})
		if err != nil {
			return nil, "", "", fmt.Errorf("writing calendar date: %w", err)
		}
	}

	return services, minDate, maxDate, nil
}
