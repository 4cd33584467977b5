package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
}

// Converts H:MM:SS or HH:MM:SS into HHMMSS. Hours may exceed 23.
func parseStopTimeTime(s string) (string, error) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return "", fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	var hms [3]int
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return "", fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	switch {
	case hms[0] < 0 || hms[0] > 99:
		return "", fmt.Errorf("invalid hour in '%s'", s)
	case hms[1] < 0 || hms[1] > 59:
		return "", fmt.Errorf("invalid minute in '%s'", s)
	case hms[2] < 0 || hms[2] > 59:
		return "", fmt.Errorf("invalid second in '%s'", s)
	}

	return fmt.Sprintf("%02d%02d%02d", hms[0], hms[1], hms[2]), nil
}

// Returns max arrival and max departure, as HHMMSS.
func ParseStopTimes(
	writer Writer,
	data io.Reader,
	trips map[string]bool,
	stops map[string]bool,
) (string, string, error) {
	seqSeen := map[string]map[uint32]bool{}
	maxArrival := "000000"
	maxDeparture := "000000"

	row := 0
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		row++
		if !trips[st.TripID] {
			return fmt.Errorf("unknown trip_id: '%s' (row %d)", st.TripID, row)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", row)
		}
		if !stops[st.StopID] {
			return fmt.Errorf("unknown stop_id: '%s' (row %d)", st.StopID, row)
		}

		arrival, err := parseStopTimeTime(st.ArrivalTime)
		if err != nil {
			return errors.Wrapf(err, "parsing arrival_time (row %d)", row)
		}
		departure, err := parseStopTimeTime(st.DepartureTime)
		if err != nil {
			return errors.Wrapf(err, "parsing departure_time (row %d)", row)
		}

		if seqSeen[st.TripID] == nil {
			seqSeen[st.TripID] = map[uint32]bool{}
		}
		if seqSeen[st.TripID][st.StopSequence] {
			return fmt.Errorf("duplicate stop_sequence %d for trip_id '%s'", st.StopSequence, st.TripID)
		}
		seqSeen[st.TripID][st.StopSequence] = true

		if arrival > maxArrival {
			maxArrival = arrival
		}
		if departure > maxDeparture {
			maxDeparture = departure
		}

		err = writer.WriteStopTime(&StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			StopSequence: st.StopSequence,
			Arrival:      arrival,
			Departure:    departure,
		})
		if err != nil {
			return errors.Wrapf(err, "writing stop_time (row %d)", row)
		}
		return nil
	})
	if err != nil {
		return "", "", errors.Wrap(err, "unmarshaling stop_times csv")
	}

	return maxArrival, maxDeparture, nil
}
