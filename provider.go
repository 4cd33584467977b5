package bustime

import (
	"context"
	"errors"
	"time"

	"tidbyt.dev/bustime/metrics"
	"tidbyt.dev/bustime/model"
)

var ErrStopNotFound = errors.New("stop not found")

// Source of transit data.
type Provider interface {
	// Looks up a stop in the registry. Returns ErrStopNotFound if
	// the stop doesn't exist.
	Stop(ctx context.Context, stopID string) (model.StopInfo, error)

	// Live arrival predictions for a route at a stop, in order.
	Predictions(ctx context.Context, stopID string, direction model.Direction, routeID string) ([]time.Time, error)

	// Earliest scheduled arrival at or after when, on when's
	// service day. The bool is false if there is none.
	EarliestSchedule(ctx context.Context, stopID string, direction model.Direction, routeID string, when time.Time) (time.Time, bool, error)
}

// Wraps a Provider with per call timeouts and metrics.
type InstrumentedProvider struct {
	Provider Provider
	Metrics  *metrics.Metrics
	Timeout  time.Duration
}

func (p *InstrumentedProvider) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.Timeout)
}

func (p *InstrumentedProvider) Stop(ctx context.Context, stopID string) (model.StopInfo, error) {
	ctx, cancel := p.context(ctx)
	defer cancel()

	start := time.Now()
	info, err := p.Provider.Stop(ctx, stopID)
	if errors.Is(err, ErrStopNotFound) {
		p.Metrics.ObserveUpstream("stop", start, nil)
	} else {
		p.Metrics.ObserveUpstream("stop", start, err)
	}
	return info, err
}

func (p *InstrumentedProvider) Predictions(ctx context.Context, stopID string, direction model.Direction, routeID string) ([]time.Time, error) {
	ctx, cancel := p.context(ctx)
	defer cancel()

	start := time.Now()
	predictions, err := p.Provider.Predictions(ctx, stopID, direction, routeID)
	p.Metrics.ObserveUpstream("predictions", start, err)
	return predictions, err
}

func (p *InstrumentedProvider) EarliestSchedule(ctx context.Context, stopID string, direction model.Direction, routeID string, when time.Time) (time.Time, bool, error) {
	ctx, cancel := p.context(ctx)
	defer cancel()

	start := time.Now()
	t, ok, err := p.Provider.EarliestSchedule(ctx, stopID, direction, routeID, when)
	p.Metrics.ObserveUpstream("schedule", start, err)
	return t, ok, err
}
