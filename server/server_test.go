package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/metrics"
	"tidbyt.dev/bustime/model"
	"tidbyt.dev/bustime/server"
	"tidbyt.dev/bustime/storage"
	"tidbyt.dev/bustime/testutil"
)

func newServer(t *testing.T) *httptest.Server {
	ts, _, _ := newServerWithBackends(t)
	return ts
}

func newServerWithBackends(t *testing.T) (*httptest.Server, storage.Storage, *testutil.FakeProvider) {
	s := testutil.BuildStorage(t, "memory")
	p := testutil.NewFakeProvider()
	p.Stops["86963"] = "Washington St @ Oak Sq"

	m := metrics.New()
	skill := bustime.NewSkill(s, p, time.UTC)
	skill.Metrics = m

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(server.New(skill, m, logger).Handler())
	t.Cleanup(ts.Close)
	return ts, s, p
}

func postTurn(t *testing.T, ts *httptest.Server, body any) (*http.Response, server.TurnResponse) {
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/turns", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := server.TurnResponse{}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestTurnRoundTrip(t *testing.T) {
	ts := newServer(t)

	resp, out := postTurn(t, ts, server.TurnRequest{
		DeviceID: "device-1",
		Intent:   "LaunchRequest",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "No stops related to this device.", out.Display)
	assert.False(t, out.EndSession)
	assert.Equal(t, model.StateAwaitingStopID, out.Session.State.Kind)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	// Session is carried by the client between turns.
	resp, out = postTurn(t, ts, server.TurnRequest{
		DeviceID: "device-1",
		Intent:   "NumberIntent",
		Slots:    map[string]string{"Number": "86963"},
		Session:  &out.Session,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Stop (86963) Washington St @ Oak Sq added.", out.Display)
	assert.Equal(t, model.StateAwaitingStopDirection, out.Session.State.Kind)
	require.NotNil(t, out.Session.Pending)
	assert.Equal(t, "86963", out.Session.Pending.StopID)
}

func TestTurnIntentMapping(t *testing.T) {
	ts := newServer(t)

	for _, intent := range []string{"AMAZON.StopIntent", "Stop"} {
		resp, out := postTurn(t, ts, server.TurnRequest{DeviceID: "device-1", Intent: intent})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, out.EndSession, intent)
	}

	// Unknown intents are treated as fallback, which never ends the
	// session.
	resp, out := postTurn(t, ts, server.TurnRequest{DeviceID: "device-1", Intent: "BookFlightIntent"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out.EndSession)
	assert.NotEmpty(t, out.Speech)
}

func TestTurnBadRequest(t *testing.T) {
	ts := newServer(t)

	resp, _ := postTurn(t, ts, server.TurnRequest{Intent: "LaunchRequest"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(ts.URL+"/v1/turns", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	// Index out of range for an empty stop list.
	resp, _ = postTurn(t, ts, map[string]any{
		"deviceId": "device-1",
		"intent":   "LaunchRequest",
		"session":  map[string]any{"index": 2, "stops": []any{}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	req.Header.Set("X-Request-ID", "bad id with spaces")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, "bad id with spaces", resp.Header.Get("X-Request-ID"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newServer(t)

	postTurn(t, ts, server.TurnRequest{DeviceID: "device-1", Intent: "AMAZON.HelpIntent"})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `bustime_turns_total{intent="Help",outcome="ok"} 1`)
	assert.Contains(t, string(body), `path="/v1/turns"`)
}

func TestTurnPlatformSlots(t *testing.T) {
	ts, s, p := newServerWithBackends(t)
	p.Stops["1234"] = "Brighton Ave @ Harvard Ave"
	p.Live["70"] = []time.Time{time.Date(2030, 1, 1, 15, 0, 0, 0, time.UTC)}

	for i, stop := range []model.Stop{
		{StopID: "86963", StopName: "home", RouteIDs: []string{"57"}},
		{StopID: "1234", StopName: "work", RouteIDs: []string{"70"}},
	} {
		stop.DeviceID = "device-1"
		stop.LastUpdated = time.Date(2024, 3, 1, 10-i, 0, 0, 0, time.UTC)
		require.NoError(t, s.WriteStop(context.Background(), stop))
	}

	// The nickname in City selects the stop for the summary.
	resp, out := postTurn(t, ts, server.TurnRequest{
		DeviceID: "device-1",
		Intent:   "GetSummaryIntent",
		Slots:    map[string]string{"City": "Work"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Session.Index)
	assert.Equal(t, "70: 03:00 PM", out.Display)
	assert.Contains(t, p.Calls(), "predictions 1234 outbound 70")

	// Street works for routes too.
	resp, out = postTurn(t, ts, server.TurnRequest{
		DeviceID: "device-1",
		Intent:   "GetRouteIntentStreet",
		Slots:    map[string]string{"Route": "57", "Street": "home"},
		Session:  &out.Session,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, out.Session.Index)
	assert.Contains(t, p.Calls(), "predictions 86963 outbound 57")

	// AddStopIntent carries the stop ID in Stop.
	resp, out = postTurn(t, ts, server.TurnRequest{
		DeviceID: "device-1",
		Intent:   "AddStopIntent",
		Slots:    map[string]string{"Stop": "86963"},
		Session:  &out.Session,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Stop (86963) Washington St @ Oak Sq added.", out.Display)
	assert.Equal(t, model.StateAwaitingStopDirection, out.Session.State.Kind)

	resp, out = postTurn(t, ts, server.TurnRequest{
		DeviceID: "device-1",
		Intent:   "DirectionIntent",
		Slots:    map[string]string{"Direction": "inbound"},
		Session:  &out.Session,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StateAwaitingStopName, out.Session.State.Kind)

	// CityIntent carries the new stop's name.
	resp, out = postTurn(t, ts, server.TurnRequest{
		DeviceID: "device-1",
		Intent:   "CityIntent",
		Slots:    map[string]string{"City": "Gym"},
		Session:  &out.Session,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StateAwaitingNameConfirmation, out.Session.State.Kind)
	require.NotNil(t, out.Session.Pending)
	assert.Equal(t, "gym", out.Session.Pending.StopName)
}
