package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tidbyt.dev/bustime"
)

func TestMapIntent(t *testing.T) {
	assert.Equal(t, bustime.IntentGetSummary, mapIntent("GetSummaryIntentStreet"))
	assert.Equal(t, bustime.IntentName, mapIntent("CityIntent"))
	assert.Equal(t, bustime.IntentYes, mapIntent("AMAZON.YesIntent"))
	assert.Equal(t, bustime.IntentDeleteRoute, mapIntent("DeleteRoute"))
	assert.Equal(t, bustime.IntentFallback, mapIntent("BookFlightIntent"))
	assert.Equal(t, bustime.IntentFallback, mapIntent(""))
}

func TestMapSlots(t *testing.T) {
	for _, tc := range []struct {
		name     string
		intent   bustime.Intent
		slots    map[string]string
		expected map[string]string
	}{
		{"summary nickname from city", bustime.IntentGetSummary, map[string]string{"City": "work"}, map[string]string{bustime.SlotStop: "work"}},
		{"summary nickname from street", bustime.IntentGetSummary, map[string]string{"Street": "oak square"}, map[string]string{bustime.SlotStop: "oak square"}},
		{"street wins over city", bustime.IntentGetSummary, map[string]string{"City": "work", "Street": "oak square"}, map[string]string{bustime.SlotStop: "oak square"}},
		{"route with nickname", bustime.IntentGetRoute, map[string]string{"Route": "57", "City": "work"}, map[string]string{bustime.SlotRoute: "57", bustime.SlotStop: "work"}},
		{"add route with nickname", bustime.IntentAddRoute, map[string]string{"Route": "57", "Street": "home"}, map[string]string{bustime.SlotRoute: "57", bustime.SlotStop: "home"}},
		{"name from city", bustime.IntentName, map[string]string{"City": "home"}, map[string]string{bustime.SlotName: "home"}},
		{"add stop id", bustime.IntentAddStop, map[string]string{"Stop": "86963"}, map[string]string{bustime.SlotNumber: "86963"}},
		{"canonical slots pass through", bustime.IntentGetSummary, map[string]string{bustime.SlotStop: "work"}, map[string]string{bustime.SlotStop: "work"}},
		{"empty values dropped", bustime.IntentGetSummary, map[string]string{"City": "  ", "Route": ""}, map[string]string{}},
		{"direction untouched", bustime.IntentDirection, map[string]string{"Direction": "inbound"}, map[string]string{bustime.SlotDirection: "inbound"}},
		{"nickname ignored elsewhere", bustime.IntentDeleteStop, map[string]string{"City": "work"}, map[string]string{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mapSlots(tc.intent, tc.slots))
		})
	}
}
