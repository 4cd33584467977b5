// Package feed serves stops, predictions and schedules from a static
// GTFS feed and an optional GTFS-rt TripUpdates feed.
package feed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/clock"
	"tidbyt.dev/bustime/downloader"
	"tidbyt.dev/bustime/model"
	"tidbyt.dev/bustime/parse"
)

const (
	DefaultStaticRefreshInterval = 12 * time.Hour
	DefaultRealtimeTTL           = 1 * time.Minute
	DefaultRealtimeTimeout       = 30 * time.Second
	DefaultRealtimeMaxSize       = 1 << 20 // 1 MB
	DefaultStaticTimeout         = 60 * time.Second
	DefaultStaticMaxSize         = 800 << 20 // 800 MB

	// How far ahead realtime predictions are looked for, and how far
	// back scheduled arrivals are considered to catch delayed trips.
	DefaultPredictionWindow = 2 * time.Hour
	DefaultMaxDelay         = 30 * time.Minute
)

var ErrNoTimetable = errors.New("no timetable loaded")

var _ bustime.Provider = (*Provider)(nil)

// Provider backed by GTFS feeds.
type Provider struct {
	StaticURL   string
	RealtimeURL string
	Headers     map[string]string

	StaticRefreshInterval time.Duration
	StaticTimeout         time.Duration
	StaticMaxSize         int
	RealtimeTTL           time.Duration
	RealtimeTimeout       time.Duration
	RealtimeMaxSize       int
	PredictionWindow      time.Duration
	MaxDelay              time.Duration

	Downloader downloader.Downloader
	Clock      clock.Clock
	Logger     *slog.Logger

	mu          sync.RWMutex
	timetable   *Timetable
	hash        string
	refreshedAt time.Time
}

// Creates a Provider for the given feed URLs. realtimeURL may be
// empty, in which case there are never any predictions.
func NewProvider(staticURL string, realtimeURL string) *Provider {
	return &Provider{
		StaticURL:             staticURL,
		RealtimeURL:           realtimeURL,
		Headers:               map[string]string{},
		StaticRefreshInterval: DefaultStaticRefreshInterval,
		StaticTimeout:         DefaultStaticTimeout,
		StaticMaxSize:         DefaultStaticMaxSize,
		RealtimeTTL:           DefaultRealtimeTTL,
		RealtimeTimeout:       DefaultRealtimeTimeout,
		RealtimeMaxSize:       DefaultRealtimeMaxSize,
		PredictionWindow:      DefaultPredictionWindow,
		MaxDelay:              DefaultMaxDelay,
		Downloader:            downloader.NewMemoryDownloader(),
		Clock:                 clock.RealClock{},
		Logger:                slog.Default(),
	}
}

// Downloads the static feed, and re-indexes it if its content
// changed since the last refresh.
func (p *Provider) Refresh(ctx context.Context) error {
	body, err := p.Downloader.Get(ctx, p.StaticURL, p.Headers, downloader.GetOptions{
		Cache:   false,
		Timeout: p.StaticTimeout,
		MaxSize: p.StaticMaxSize,
	})
	if err != nil {
		return fmt.Errorf("downloading static feed: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))

	p.mu.RLock()
	unchanged := p.timetable != nil && p.hash == hash
	p.mu.RUnlock()

	if unchanged {
		p.mu.Lock()
		p.refreshedAt = p.Clock.Now()
		p.mu.Unlock()
		p.Logger.Debug("static feed unchanged", "url", p.StaticURL, "hash", hash)
		return nil
	}

	tt, err := LoadTimetable(body)
	if err != nil {
		// Broken data still counts as a refresh.
		p.mu.Lock()
		p.refreshedAt = p.Clock.Now()
		p.mu.Unlock()
		return fmt.Errorf("loading timetable: %w", err)
	}

	p.mu.Lock()
	p.timetable = tt
	p.hash = hash
	p.refreshedAt = p.Clock.Now()
	p.mu.Unlock()

	p.Logger.Info(
		"static feed loaded",
		"url", p.StaticURL,
		"hash", hash,
		"calendar_start", tt.Metadata.CalendarStartDate,
		"calendar_end", tt.Metadata.CalendarEndDate,
	)

	return nil
}

// Refreshes the static feed on StaticRefreshInterval until ctx is
// done.
func (p *Provider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.StaticRefreshInterval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); err != nil {
			p.Logger.Error("refreshing static feed", "url", p.StaticURL, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// The current timetable, loading it on first use. A stale timetable
// is refreshed, but kept if the refresh fails.
func (p *Provider) Timetable(ctx context.Context) (*Timetable, error) {
	p.mu.RLock()
	tt := p.timetable
	stale := p.Clock.Now().Sub(p.refreshedAt) >= p.StaticRefreshInterval
	p.mu.RUnlock()

	if tt != nil && !stale {
		return tt, nil
	}

	if err := p.Refresh(ctx); err != nil {
		if tt == nil {
			return nil, errors.Join(ErrNoTimetable, err)
		}
		p.Logger.Warn("using stale timetable", "url", p.StaticURL, "error", err)
		return tt, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.timetable, nil
}

func (p *Provider) Stop(ctx context.Context, stopID string) (model.StopInfo, error) {
	tt, err := p.Timetable(ctx)
	if err != nil {
		return model.StopInfo{}, err
	}

	stop, ok := tt.Stop(stopID)
	if !ok {
		return model.StopInfo{}, fmt.Errorf("stop %s: %w", stopID, bustime.ErrStopNotFound)
	}

	return model.StopInfo{ID: stop.ID, Name: stop.Name}, nil
}

// Route IDs spoken by riders are the short names. Falls back to the
// ID itself when there's no such route.
func resolveRoute(tt *Timetable, routeID string) string {
	if _, ok := tt.Route(routeID); ok {
		return routeID
	}
	for id, route := range tt.routes {
		if route.ShortName == routeID {
			return id
		}
	}
	return routeID
}

func (p *Provider) Predictions(ctx context.Context, stopID string, direction model.Direction, routeID string) ([]time.Time, error) {
	if p.RealtimeURL == "" {
		return []time.Time{}, nil
	}

	tt, err := p.Timetable(ctx)
	if err != nil {
		return nil, err
	}

	body, err := p.Downloader.Get(ctx, p.RealtimeURL, p.Headers, downloader.GetOptions{
		Cache:    true,
		CacheTTL: p.RealtimeTTL,
		Timeout:  p.RealtimeTimeout,
		MaxSize:  p.RealtimeMaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading realtime feed: %w", err)
	}

	rt, err := parse.ParseRealtime(body)
	if err != nil {
		return nil, fmt.Errorf("parsing realtime feed: %w", err)
	}

	now := p.Clock.Now()
	scheduled, err := tt.Arrivals(
		stopID,
		resolveRoute(tt, routeID),
		int8(direction),
		now.Add(-p.MaxDelay),
		p.MaxDelay+p.PredictionWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("getting scheduled arrivals: %w", err)
	}

	return applyRealtime(rt, stopID, scheduled, now), nil
}

func (p *Provider) EarliestSchedule(ctx context.Context, stopID string, direction model.Direction, routeID string, when time.Time) (time.Time, bool, error) {
	tt, err := p.Timetable(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	local := when.In(tt.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tt.Location).AddDate(0, 0, 1)

	arrivals, err := tt.Arrivals(stopID, resolveRoute(tt, routeID), int8(direction), when, midnight.Sub(local)-time.Second)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("getting scheduled arrivals: %w", err)
	}
	if len(arrivals) == 0 {
		return time.Time{}, false, nil
	}

	return arrivals[0].Time, true, nil
}

// Describes the loaded feed, for diagnostics.
func (p *Provider) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.timetable == nil {
		return fmt.Sprintf("gtfs(%s, not loaded)", p.StaticURL)
	}
	return fmt.Sprintf(
		"gtfs(%s, %s..%s, %d stops)",
		p.StaticURL,
		p.timetable.Metadata.CalendarStartDate,
		p.timetable.Metadata.CalendarEndDate,
		len(p.timetable.stops),
	)
}
