package bustime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tidbyt.dev/bustime/model"
)

const (
	DefaultTimeZone       = "America/New_York"
	DefaultMaxPredictions = 3

	// Times are spoken and displayed like "03:04 PM".
	TimeFormat = "03:04 PM"
)

// Fetches live predictions and fallback schedules for a set of
// routes, and merges them into a single narrative.
type Aggregator struct {
	Provider       Provider
	Location       *time.Location
	MaxPredictions int
}

func NewAggregator(provider Provider, location *time.Location) *Aggregator {
	return &Aggregator{
		Provider:       provider,
		Location:       location,
		MaxPredictions: DefaultMaxPredictions,
	}
}

type Summary struct {
	Speech  string
	Display string

	// One per requested route, in request order.
	Results []model.RouteResult
}

// Fetches predictions and the earliest schedule for all routes
// concurrently. The first failure cancels the remaining fetches and
// fails the aggregation.
func (a *Aggregator) Predictions(
	ctx context.Context,
	stopID string,
	direction model.Direction,
	routeIDs []string,
	now time.Time,
) (Summary, error) {
	results := make([]model.RouteResult, len(routeIDs))
	predictions := make([][]time.Time, len(routeIDs))
	scheduled := make([]*time.Time, len(routeIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, routeID := range routeIDs {
		results[i].RouteID = routeID

		g.Go(func() error {
			p, err := a.Provider.Predictions(gctx, stopID, direction, routeID)
			if err != nil {
				return fmt.Errorf("getting predictions for route %s: %w", routeID, err)
			}
			predictions[i] = p
			return nil
		})

		g.Go(func() error {
			t, ok, err := a.Provider.EarliestSchedule(gctx, stopID, direction, routeID, now)
			if err != nil {
				return fmt.Errorf("getting schedule for route %s: %w", routeID, err)
			}
			if ok {
				scheduled[i] = &t
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	for i := range results {
		if len(predictions[i]) > 0 {
			for _, p := range predictions[i] {
				if len(results[i].Predictions) >= a.maxPredictions() {
					break
				}
				results[i].Predictions = append(results[i].Predictions, a.format(p))
			}
		} else if scheduled[i] != nil {
			results[i].Scheduled = a.format(*scheduled[i])
		}
	}

	speech, display := Render(results)
	return Summary{
		Speech:  speech,
		Display: display,
		Results: results,
	}, nil
}

func (a *Aggregator) maxPredictions() int {
	if a.MaxPredictions <= 0 {
		return DefaultMaxPredictions
	}
	return a.MaxPredictions
}

func (a *Aggregator) format(t time.Time) string {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimeFormat)
}

// Renders route results as speech and display text. Routes with
// times come first, followed by a single sentence for all routes
// without any.
func Render(results []model.RouteResult) (string, string) {
	speech := []string{}
	display := []string{}

	noTime := []string{}
	noTimeDisplay := []string{}

	for _, r := range results {
		switch {
		case len(r.Predictions) > 1:
			speech = append(speech, fmt.Sprintf(
				"The next predicted times for route %s are at %s.",
				Digits(r.RouteID), Join(r.Predictions),
			))
			display = append(display, fmt.Sprintf("%s: %s", r.RouteID, Join(r.Predictions)))
		case len(r.Predictions) == 1:
			speech = append(speech, fmt.Sprintf(
				"The next predicted time for route %s is at %s.",
				Digits(r.RouteID), r.Predictions[0],
			))
			display = append(display, fmt.Sprintf("%s: %s", r.RouteID, r.Predictions[0]))
		case r.Scheduled != "":
			speech = append(speech, fmt.Sprintf(
				"The next scheduled trip for route %s is at %s.",
				Digits(r.RouteID), r.Scheduled,
			))
			display = append(display, fmt.Sprintf("%s: %s", r.RouteID, r.Scheduled))
		default:
			noTime = append(noTime, Digits(r.RouteID))
			noTimeDisplay = append(noTimeDisplay, fmt.Sprintf("%s: None", r.RouteID))
		}
	}

	if len(noTime) > 0 {
		noun := "route"
		if len(noTime) > 1 {
			noun = "routes"
		}
		speech = append(speech, fmt.Sprintf(
			"There are no more scheduled trips for %s %s today.",
			noun, Join(noTime),
		))
		display = append(display, noTimeDisplay...)
	}

	return strings.Join(speech, " "), strings.Join(display, "\n")
}
