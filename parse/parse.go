package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"
)

var staticFiles = []string{
	"agency.txt",
	"routes.txt",
	"stops.txt",
	"trips.txt",
	"stop_times.txt",
	"calendar.txt",
	"calendar_dates.txt",
}

func init() {
	// LazyCSVReader survives sloppy use of quotes. The BOM
	// reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

func openStaticFiles(buf []byte) (map[string]io.ReadCloser, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	wanted := map[string]bool{}
	for _, name := range staticFiles {
		wanted[name] = true
	}

	files := map[string]io.ReadCloser{}
	for _, f := range r.File {
		// Some agencies put everything in a subdirectory.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		name := path[len(path)-1]
		if !wanted[name] {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		files[name] = rc
	}

	return files, nil
}

func closeAll(files map[string]io.ReadCloser) {
	for _, rc := range files {
		rc.Close()
	}
}

// Parses a zipped static GTFS feed into writer.
func ParseStatic(writer Writer, buf []byte) (*Metadata, error) {
	files, err := openStaticFiles(buf)
	if err != nil {
		return nil, err
	}
	defer closeAll(files)

	if files["calendar.txt"] == nil && files["calendar_dates.txt"] == nil {
		return nil, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}
	for _, required := range []string{"agency.txt", "routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		if files[required] == nil {
			return nil, fmt.Errorf("missing %s", required)
		}
	}

	metadata := &Metadata{}

	agency, timezone, err := ParseAgency(writer, files["agency.txt"])
	if err != nil {
		return nil, fmt.Errorf("parsing agency.txt: %w", err)
	}
	metadata.Timezone = timezone

	routes, err := ParseRoutes(writer, files["routes.txt"], agency)
	if err != nil {
		return nil, fmt.Errorf("parsing routes.txt: %w", err)
	}

	services := map[string]bool{}
	if files["calendar.txt"] != nil {
		services, metadata.CalendarStartDate, metadata.CalendarEndDate, err = ParseCalendar(writer, files["calendar.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar.txt: %w", err)
		}
	}
	if files["calendar_dates.txt"] != nil {
		cdServices, minDate, maxDate, err := ParseCalendarDates(writer, files["calendar_dates.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar_dates.txt: %w", err)
		}
		for serviceID := range cdServices {
			services[serviceID] = true
		}
		if metadata.CalendarStartDate == "" || minDate < metadata.CalendarStartDate {
			metadata.CalendarStartDate = minDate
		}
		if metadata.CalendarEndDate == "" || maxDate > metadata.CalendarEndDate {
			metadata.CalendarEndDate = maxDate
		}
	}

	trips, err := ParseTrips(writer, files["trips.txt"], routes, services)
	if err != nil {
		return nil, fmt.Errorf("parsing trips.txt: %w", err)
	}

	stops, err := ParseStops(writer, files["stops.txt"])
	if err != nil {
		return nil, fmt.Errorf("parsing stops.txt: %w", err)
	}

	metadata.MaxArrival, metadata.MaxDeparture, err = ParseStopTimes(writer, files["stop_times.txt"], trips, stops)
	if err != nil {
		return nil, fmt.Errorf("parsing stop_times.txt: %w", err)
	}

	return metadata, nil
}
