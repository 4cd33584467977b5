// Package mbta is a Provider backed by the MBTA v3 API.
package mbta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/clock"
	"tidbyt.dev/bustime/downloader"
	"tidbyt.dev/bustime/model"
)

const (
	DefaultBaseURL = "https://api-v3.mbta.com"

	DefaultTimeout = 10 * time.Second
	DefaultMaxSize = 4 << 20 // 4 MB

	DefaultStopTTL       = 24 * time.Hour
	DefaultPredictionTTL = 15 * time.Second
	DefaultScheduleTTL   = 1 * time.Minute

	DefaultRequestsPerSecond = 15
	DefaultBurst             = 10

	routeTypeBus = "3"
)

// JSON:API document.
type document[T any] struct {
	Data []resource[T] `json:"data"`
}

type resource[T any] struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes T      `json:"attributes"`
}

type stopAttributes struct {
	Name         string `json:"name"`
	LocationType int    `json:"location_type"`
}

// Shared by predictions and schedules. Either time may be null.
type timeAttributes struct {
	ArrivalTime   *time.Time `json:"arrival_time"`
	DepartureTime *time.Time `json:"departure_time"`
	DirectionID   int        `json:"direction_id"`
	StopSequence  int        `json:"stop_sequence"`
}

func (a timeAttributes) time() (time.Time, bool) {
	if a.ArrivalTime != nil {
		return *a.ArrivalTime, true
	}
	if a.DepartureTime != nil {
		return *a.DepartureTime, true
	}
	return time.Time{}, false
}

var _ bustime.Provider = (*Client)(nil)

type Client struct {
	BaseURL  string
	APIKey   string
	Location *time.Location

	Timeout       time.Duration
	MaxSize       int
	StopTTL       time.Duration
	PredictionTTL time.Duration
	ScheduleTTL   time.Duration

	Downloader downloader.Downloader
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Creates a client for the MBTA v3 API. The API key may be empty.
func NewClient(apiKey string, location *time.Location) *Client {
	return &Client{
		BaseURL:       DefaultBaseURL,
		APIKey:        apiKey,
		Location:      location,
		Timeout:       DefaultTimeout,
		MaxSize:       DefaultMaxSize,
		StopTTL:       DefaultStopTTL,
		PredictionTTL: DefaultPredictionTTL,
		ScheduleTTL:   DefaultScheduleTTL,
		Downloader:    downloader.NewRateLimitedDownloader(DefaultRequestsPerSecond, DefaultBurst),
		Clock:         clock.RealClock{},
		Logger:        slog.Default(),
	}
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values, ttl time.Duration) ([]resource[T], error) {
	u := c.BaseURL + path + "?" + query.Encode()

	headers := map[string]string{"Accept": "application/vnd.api+json"}
	if c.APIKey != "" {
		headers["x-api-key"] = c.APIKey
	}

	body, err := c.Downloader.Get(ctx, u, headers, downloader.GetOptions{
		Cache:    ttl > 0,
		CacheTTL: ttl,
		Timeout:  c.Timeout,
		MaxSize:  c.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}

	doc := document[T]{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	c.Logger.Debug("mbta request", "path", path, "query", query.Encode(), "results", len(doc.Data))

	return doc.Data, nil
}

func (c *Client) Stop(ctx context.Context, stopID string) (model.StopInfo, error) {
	query := url.Values{}
	query.Set("filter[id]", stopID)
	query.Set("filter[route_type]", routeTypeBus)

	stops, err := get[stopAttributes](ctx, c, "/stops", query, c.StopTTL)
	var statusErr *downloader.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return model.StopInfo{}, fmt.Errorf("stop %s: %w", stopID, bustime.ErrStopNotFound)
	}
	if err != nil {
		return model.StopInfo{}, err
	}

	if len(stops) == 0 {
		return model.StopInfo{}, fmt.Errorf("stop %s: %w", stopID, bustime.ErrStopNotFound)
	}

	return model.StopInfo{ID: stops[0].ID, Name: stops[0].Attributes.Name}, nil
}

func (c *Client) Predictions(ctx context.Context, stopID string, direction model.Direction, routeID string) ([]time.Time, error) {
	query := url.Values{}
	query.Set("filter[stop]", stopID)
	query.Set("filter[route]", routeID)
	query.Set("filter[direction_id]", fmt.Sprintf("%d", direction))
	query.Set("sort", "arrival_time")

	predictions, err := get[timeAttributes](ctx, c, "/predictions", query, c.PredictionTTL)
	if err != nil {
		return nil, err
	}

	now := c.Clock.Now()
	times := []time.Time{}
	for _, p := range predictions {
		t, ok := p.Attributes.time()
		if !ok || t.Before(now) {
			continue
		}
		times = append(times, t)
	}

	return times, nil
}

func (c *Client) EarliestSchedule(ctx context.Context, stopID string, direction model.Direction, routeID string, when time.Time) (time.Time, bool, error) {
	local := clock.At(when, c.location())

	query := url.Values{}
	query.Set("filter[stop]", stopID)
	query.Set("filter[route]", routeID)
	query.Set("filter[direction_id]", fmt.Sprintf("%d", direction))
	query.Set("filter[date]", local.Date)
	query.Set("filter[min_time]", local.TimeOfDay)
	query.Set("filter[max_time]", "23:59")
	query.Set("sort", "arrival_time")
	query.Set("page[offset]", "0")
	query.Set("page[limit]", "1")

	schedules, err := get[timeAttributes](ctx, c, "/schedules", query, c.ScheduleTTL)
	if err != nil {
		return time.Time{}, false, err
	}

	for _, s := range schedules {
		if t, ok := s.Attributes.time(); ok {
			return t, true, nil
		}
	}

	return time.Time{}, false, nil
}

func (c *Client) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
