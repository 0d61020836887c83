package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/stopdisplay/pkg/api/routes"
	"github.com/travigo/stopdisplay/pkg/clock"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/filter"
	"github.com/travigo/stopdisplay/pkg/freshness"
)

var epoch = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

type stubRefresher struct {
	mu       sync.Mutex
	running  bool
	inFlight bool
	calls    int
}

func (r *stubRefresher) RefreshNow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if !r.running || r.inFlight {
		return false
	}
	r.inFlight = true
	return true
}

func (r *stubRefresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *stubRefresher) IsRefreshing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

type fixture struct {
	store     *freshness.Store
	refresher *stubRefresher
	board     *routes.Board
	fake      *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := clock.NewFake(epoch)
	store := freshness.NewStore(fake)
	refresher := &stubRefresher{running: true}

	return &fixture{
		store:     store,
		refresher: refresher,
		fake:      fake,
		board: &routes.Board{
			Store:         store,
			Refresher:     refresher,
			StopReference: "STIF:StopPoint:Q:29631:",
			DisplayCount:  2,
			Clock:         fake,
		},
	}
}

func (f *fixture) do(t *testing.T, method string, target string) (*http.Response, map[string]interface{}) {
	t.Helper()

	app := NewApp(f.board, prometheus.NewRegistry())
	response, err := app.Test(httptest.NewRequest(method, target, nil), -1)
	require.NoError(t, err)

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if strings.HasPrefix(response.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(body, &decoded))
	}
	return response, decoded
}

func seed(store *freshness.Store) {
	store.SetLoading()
	store.SetSuccess([]ctdf.DepartureRecord{
		{LineID: "C01742", DestinationName: "Gare de Lyon", ExpectedTime: epoch.Add(150 * time.Second), Status: ctdf.DepartureStatusOnTime, JourneyRef: "RATP:VehicleJourney::1"},
		{LineID: "C01371", DestinationID: "STIF:StopArea:SP:43", ExpectedTime: epoch.Add(500 * time.Second), Status: ctdf.DepartureStatusDelayed},
		{LineID: "C01742", DestinationName: "Nation", ExpectedTime: epoch.Add(900 * time.Second), Status: ctdf.DepartureStatusOnTime},
	})
}

func TestHealthAndVersion(t *testing.T) {
	f := newFixture(t)

	response, body := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, true, body["ok"])

	response, body = f.do(t, http.MethodGet, "/version")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, routes.Version, body["version"])
}

func TestDepartures(t *testing.T) {
	f := newFixture(t)
	seed(f.store)

	response, body := f.do(t, http.MethodGet, "/departures")
	require.Equal(t, http.StatusOK, response.StatusCode)

	assert.Equal(t, "STIF:StopPoint:Q:29631:", body["stop_reference"])
	assert.Equal(t, "success", body["state"])
	assert.Equal(t, false, body["stale"])
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(0), body["age_seconds"])

	items := body["items"].([]interface{})
	require.Len(t, items, 2)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "C01742", first["line"])
	assert.Equal(t, "Gare de Lyon", first["destination"])
	assert.Equal(t, "on-time", first["status"])
	assert.Equal(t, float64(3), first["wait_minutes"])
	second := items[1].(map[string]interface{})
	assert.Equal(t, "STIF:StopArea:SP:43", second["destination"])
	assert.Equal(t, float64(9), second["wait_minutes"])
}

func TestDeparturesCountAndFilter(t *testing.T) {
	f := newFixture(t)
	seed(f.store)

	compiled, err := filter.Compile(`line == "C01742"`)
	require.NoError(t, err)
	f.board.Filter = compiled

	_, body := f.do(t, http.MethodGet, "/departures?count=5")
	items := body["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "Nation", items[1].(map[string]interface{})["destination"])

	for _, count := range []string{"0", "abc", "21"} {
		response, body := f.do(t, http.MethodGet, "/departures?count="+count)
		assert.Equal(t, http.StatusBadRequest, response.StatusCode, count)
		assert.Contains(t, body["error"], "count must be")
	}
}

func TestDeparturesStaleAfterError(t *testing.T) {
	f := newFixture(t)
	seed(f.store)
	f.store.SetLoading()
	f.store.SetError("request timed out")
	f.fake.Advance(90 * time.Second)

	_, body := f.do(t, http.MethodGet, "/departures")
	assert.Equal(t, "error", body["state"])
	assert.Equal(t, true, body["stale"])
	assert.Equal(t, "request timed out", body["error"])
	assert.Equal(t, float64(90), body["age_seconds"])

	items := body["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, float64(1), items[0].(map[string]interface{})["wait_minutes"])
}

func TestDeparturesBeforeFirstFetch(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/departures")
	assert.Equal(t, "idle", body["state"])
	assert.Nil(t, body["last_success_at"])
	assert.Empty(t, body["items"])
}

func TestSnapshotGroups(t *testing.T) {
	f := newFixture(t)
	seed(f.store)

	_, body := f.do(t, http.MethodGet, "/snapshot")
	assert.Equal(t, "success", body["state"])
	assert.Equal(t, float64(2), body["version"])

	departures := body["departures"].([]interface{})
	require.Len(t, departures, 3)
	basic := departures[0].(map[string]interface{})
	assert.Equal(t, "C01742", basic["line_id"])
	assert.NotContains(t, basic, "journey_ref")

	_, body = f.do(t, http.MethodGet, "/snapshot?groups=detailed")
	detailed := body["departures"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "RATP:VehicleJourney::1", detailed["journey_ref"])

	response, _ := f.do(t, http.MethodGet, "/snapshot?groups=secret")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	response, body := f.do(t, http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusAccepted, response.StatusCode)
	assert.Equal(t, true, body["accepted"])

	response, body = f.do(t, http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusConflict, response.StatusCode)
	assert.Equal(t, false, body["accepted"])

	f.refresher.mu.Lock()
	f.refresher.running = false
	f.refresher.mu.Unlock()

	response, _ = f.do(t, http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)

	f.refresher.mu.Lock()
	defer f.refresher.mu.Unlock()
	assert.Equal(t, 2, f.refresher.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "stopdisplay_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	app := NewApp(f.board, registry)
	response, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stopdisplay_test_total 1")
}

func TestMetricsDisabled(t *testing.T) {
	f := newFixture(t)

	app := NewApp(f.board, nil)
	response, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}
