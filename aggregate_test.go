package bustime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/model"
	"tidbyt.dev/bustime/testutil"
)

func boston(t testing.TB) *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// Time of day on 2024-03-01 in Boston.
func bostonTime(t testing.TB, hour, minute int) time.Time {
	return time.Date(2024, 3, 1, hour, minute, 0, 0, boston(t))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "", bustime.Join(nil))
	assert.Equal(t, "10:00 AM", bustime.Join([]string{"10:00 AM"}))
	assert.Equal(t, "10:00 AM and 10:15 AM", bustime.Join([]string{"10:00 AM", "10:15 AM"}))
	assert.Equal(t, "10:00 AM, 10:15 AM and 10:30 AM", bustime.Join([]string{"10:00 AM", "10:15 AM", "10:30 AM"}))
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "route 57 at Oak Sq", bustime.StripMarkup("route "+bustime.Digits("57")+" at "+bustime.Address("Oak Sq")))
}

func TestAggregatorPredictions(t *testing.T) {
	p := testutil.NewFakeProvider()
	p.Live["57"] = []time.Time{
		bostonTime(t, 10, 0),
		bostonTime(t, 10, 15),
		bostonTime(t, 10, 30),
		bostonTime(t, 10, 45),
	}
	p.Live["66"] = []time.Time{bostonTime(t, 11, 5).UTC()}
	p.Schedules["66"] = bostonTime(t, 11, 0)
	p.Schedules["1"] = bostonTime(t, 13, 20)

	a := bustime.NewAggregator(p, boston(t))
	summary, err := a.Predictions(context.Background(), "86963", model.DirectionInbound, []string{"57", "66", "1", "70"}, bostonTime(t, 9, 55))
	require.NoError(t, err)

	assert.Equal(t, []model.RouteResult{
		{RouteID: "57", Predictions: []string{"10:00 AM", "10:15 AM", "10:30 AM"}},
		{RouteID: "66", Predictions: []string{"11:05 AM"}},
		{RouteID: "1", Scheduled: "01:20 PM"},
		{RouteID: "70"},
	}, summary.Results)

	assert.Equal(t,
		`The next predicted times for route <say-as interpret-as="digits">57</say-as> are at 10:00 AM, 10:15 AM and 10:30 AM. `+
			`The next predicted time for route <say-as interpret-as="digits">66</say-as> is at 11:05 AM. `+
			`The next scheduled trip for route <say-as interpret-as="digits">1</say-as> is at 01:20 PM. `+
			`There are no more scheduled trips for route <say-as interpret-as="digits">70</say-as> today.`,
		summary.Speech,
	)
	assert.Equal(t, "57: 10:00 AM, 10:15 AM and 10:30 AM\n66: 11:05 AM\n1: 01:20 PM\n70: None", summary.Display)

	assert.Contains(t, p.Calls(), "predictions 86963 inbound 57")
	assert.Contains(t, p.Calls(), "schedule 86963 inbound 70")
}

func TestAggregatorNoTimeRoutes(t *testing.T) {
	p := testutil.NewFakeProvider()
	a := bustime.NewAggregator(p, boston(t))

	summary, err := a.Predictions(context.Background(), "1", model.DirectionOutbound, []string{"1", "57", "66"}, bostonTime(t, 23, 30))
	require.NoError(t, err)
	assert.Equal(t,
		`There are no more scheduled trips for routes <say-as interpret-as="digits">1</say-as>, `+
			`<say-as interpret-as="digits">57</say-as> and <say-as interpret-as="digits">66</say-as> today.`,
		summary.Speech,
	)
	assert.Equal(t, "1: None\n57: None\n66: None", summary.Display)
}

func TestAggregatorPreservesInputOrder(t *testing.T) {
	p := testutil.NewFakeProvider()
	for _, route := range []string{"1", "57", "66"} {
		p.Schedules[route] = bostonTime(t, 12, 0)
	}
	p.Delays["1"] = 60 * time.Millisecond
	p.Delays["66"] = 30 * time.Millisecond

	a := bustime.NewAggregator(p, boston(t))
	summary, err := a.Predictions(context.Background(), "1", model.DirectionOutbound, []string{"1", "57", "66"}, bostonTime(t, 9, 0))
	require.NoError(t, err)

	ids := []string{}
	for _, r := range summary.Results {
		ids = append(ids, r.RouteID)
	}
	assert.Equal(t, []string{"1", "57", "66"}, ids)
	assert.Equal(t, "1: 12:00 PM\n57: 12:00 PM\n66: 12:00 PM", summary.Display)
}

func TestAggregatorFailsOnFirstError(t *testing.T) {
	p := testutil.NewFakeProvider()
	p.Errors["57"] = errors.New("upstream down")
	p.Delays["1"] = 5 * time.Second

	a := bustime.NewAggregator(p, boston(t))

	start := time.Now()
	_, err := a.Predictions(context.Background(), "1", model.DirectionOutbound, []string{"1", "57"}, bostonTime(t, 9, 0))
	require.Error(t, err)
	assert.ErrorContains(t, err, "upstream down")

	// The slow sibling was cancelled rather than waited for
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAggregatorCanceledContext(t *testing.T) {
	p := testutil.NewFakeProvider()
	p.Delays["57"] = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := bustime.NewAggregator(p, boston(t))
	_, err := a.Predictions(ctx, "1", model.DirectionOutbound, []string{"57"}, bostonTime(t, 9, 0))
	assert.ErrorIs(t, err, context.Canceled)
}
