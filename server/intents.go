package server

import (
	"strings"

	"tidbyt.dev/bustime"
)

// Voice platform intent names. Canonical names are accepted as well.
var platformIntents = map[string]bustime.Intent{
	"LaunchRequest":          bustime.IntentLaunch,
	"GetSummaryIntent":       bustime.IntentGetSummary,
	"GetSummaryIntentStreet": bustime.IntentGetSummary,
	"GetRouteIntent":         bustime.IntentGetRoute,
	"GetRouteIntentStreet":   bustime.IntentGetRoute,
	"AddStopIntent":          bustime.IntentAddStop,
	"ListStopIntent":         bustime.IntentListStop,
	"AddRouteIntent":         bustime.IntentAddRoute,
	"AddRouteIntentStreet":   bustime.IntentAddRoute,
	"DeleteStopIntent":       bustime.IntentDeleteStop,
	"DeleteRouteIntent":      bustime.IntentDeleteRoute,
	"NumberIntent":           bustime.IntentNumber,
	"CityIntent":             bustime.IntentName,
	"StreetIntent":           bustime.IntentName,
	"DirectionIntent":        bustime.IntentDirection,
	"AMAZON.YesIntent":       bustime.IntentYes,
	"AMAZON.NoIntent":        bustime.IntentNo,
	"AMAZON.HelpIntent":      bustime.IntentHelp,
	"AMAZON.CancelIntent":    bustime.IntentCancel,
	"AMAZON.StopIntent":      bustime.IntentStop,
	"AMAZON.FallbackIntent":  bustime.IntentFallback,
	"SessionEndedRequest":    bustime.IntentSessionEnded,
	"Unhandled":              bustime.IntentFallback,
}

var canonicalIntents = map[bustime.Intent]bool{}

func init() {
	for _, intent := range platformIntents {
		canonicalIntents[intent] = true
	}
}

// Maps a platform or canonical intent name. Anything unknown is a
// fallback.
func mapIntent(name string) bustime.Intent {
	if intent, ok := platformIntents[name]; ok {
		return intent
	}
	if canonicalIntents[bustime.Intent(name)] {
		return bustime.Intent(name)
	}
	return bustime.IntentFallback
}

// Platform slots carrying a spoken stop nickname or name. Street
// takes precedence when both are filled.
var nameSlots = []string{"City", "Street"}

// Platform slot carrying the stop ID of AddStopIntent.
const stopIDSlot = "Stop"

// Maps platform slot names to the canonical slots intent reads, and
// drops empty values. City and Street hold the nickname of a saved
// stop for the prediction and route intents, and the name given to a
// new stop for the name intent.
func mapSlots(intent bustime.Intent, slots map[string]string) map[string]string {
	mapped := map[string]string{}
	for name, value := range slots {
		if value = strings.TrimSpace(value); value != "" {
			mapped[name] = value
		}
	}

	name := ""
	for _, slot := range nameSlots {
		if value, ok := mapped[slot]; ok {
			name = value
			delete(mapped, slot)
		}
	}

	switch intent {
	case bustime.IntentLaunch, bustime.IntentGetSummary, bustime.IntentGetRoute, bustime.IntentAddRoute:
		if name != "" && mapped[bustime.SlotStop] == "" {
			mapped[bustime.SlotStop] = name
		}
	case bustime.IntentName:
		if name != "" && mapped[bustime.SlotName] == "" {
			mapped[bustime.SlotName] = name
		}
	case bustime.IntentAddStop:
		if stopID, ok := mapped[stopIDSlot]; ok {
			delete(mapped, stopIDSlot)
			if mapped[bustime.SlotNumber] == "" {
				mapped[bustime.SlotNumber] = stopID
			}
		}
	}

	return mapped
}
