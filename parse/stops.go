package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

type StopCSV struct {
	ID            string `csv:"stop_id"`
	Code          string `csv:"stop_code"`
	Name          string `csv:"stop_name"`
	LocationType  int8   `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
}

func ParseStops(writer Writer, data io.Reader) (map[string]bool, error) {
	rows := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	stopIDs := map[string]bool{}
	parentRef := map[string]string{}
	for _, st := range rows {
		if st.ID == "" {
			return nil, fmt.Errorf("empty stop_id")
		}
		if stopIDs[st.ID] {
			return nil, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		stopIDs[st.ID] = true

		// stop_name is optional only for generic nodes and
		// boarding areas
		locationType := LocationType(st.LocationType)
		if locationType != LocationTypeGenericNode && locationType != LocationTypeBoardingArea && st.Name == "" {
			return nil, fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
		}

		if st.ParentStation != "" {
			parentRef[st.ID] = st.ParentStation
		}

		err := writer.WriteStop(&Stop{
			ID:            st.ID,
			Code:          st.Code,
			Name:          st.Name,
			LocationType:  locationType,
			ParentStation: st.ParentStation,
		})
		if err != nil {
			return nil, fmt.Errorf("writing stop '%s': %w", st.ID, err)
		}
	}

	for stopID, parentID := range parentRef {
		if !stopIDs[parentID] {
			return nil, fmt.Errorf("stop '%s' references unknown parent_station '%s'", stopID, parentID)
		}
	}

	return stopIDs, nil
}
