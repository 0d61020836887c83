package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/stopdisplay/pkg/clock"
	"github.com/travigo/stopdisplay/pkg/config"
	"github.com/travigo/stopdisplay/pkg/freshness"
)

const testStop = "STIF:StopPoint:Q:29631:"

func upstream(t *testing.T, now time.Time) *httptest.Server {
	t.Helper()

	body := `{"Siri":{"ServiceDelivery":{"StopMonitoringDelivery":[{"MonitoredStopVisit":[
		{"MonitoringRef":{"value":"` + testStop + `"},"MonitoredVehicleJourney":{"LineRef":{"value":"C01742"},"DestinationName":[{"value":"Nation"}],
			"MonitoredCall":{"StopPointRef":{"value":"` + testStop + `"},"ExpectedDepartureTime":"` + now.Add(500*time.Second).Format(time.RFC3339) + `","DepartureStatus":"onTime"}}},
		{"MonitoringRef":{"value":"` + testStop + `"},"MonitoredVehicleJourney":{"LineRef":{"value":"C01371"},"DestinationName":[{"value":"Gare de Lyon"}],
			"MonitoredCall":{"StopPointRef":{"value":"` + testStop + `"},"ExpectedDepartureTime":"` + now.Add(150*time.Second).Format(time.RFC3339) + `","DepartureStatus":"delayed"}}}
	]}]}}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(endpoint string) config.Config {
	cfg := config.Default()
	cfg.StopReference = testStop
	cfg.Endpoint = endpoint
	cfg.APIKey = "secret"
	cfg.RequestTimeout = config.Duration(2 * time.Second)
	return cfg
}

func TestServiceServesFreshDepartures(t *testing.T) {
	now := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)
	server := upstream(t, now)

	service, err := NewService(context.Background(), testConfig(server.URL), fake)
	require.NoError(t, err)
	defer service.Close()

	service.Coordinator.Start(context.Background(), true)
	defer service.Coordinator.Stop()

	require.Equal(t, freshness.Success, service.Store.Snapshot().State)

	response, err := service.App.Test(httptest.NewRequest(http.MethodGet, "/departures", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode)

	var body struct {
		State string                    `json:"state"`
		Items []freshness.FormattedItem `json:"items"`
	}
	require.NoError(t, json.NewDecoder(response.Body).Decode(&body))

	assert.Equal(t, "success", body.State)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "C01371", body.Items[0].Line)
	assert.Equal(t, "Gare de Lyon", body.Items[0].Destination)
	assert.Equal(t, 3, body.Items[0].WaitMinutes)
	assert.Equal(t, 9, body.Items[1].WaitMinutes)

	response, err = service.App.Test(httptest.NewRequest(http.MethodPost, "/refresh", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, response.StatusCode)
	service.Coordinator.Wait()
}

func TestServiceReportsMissingAPIKey(t *testing.T) {
	server := upstream(t, time.Now())
	cfg := testConfig(server.URL)
	cfg.APIKey = ""

	service, err := NewService(context.Background(), cfg, clock.NewFake(time.Now()))
	require.NoError(t, err)
	defer service.Close()

	service.Coordinator.Start(context.Background(), true)
	defer service.Coordinator.Stop()

	snapshot := service.Store.Snapshot()
	assert.Equal(t, freshness.Error, snapshot.State)
	assert.Contains(t, snapshot.ErrorDetail, "API key")
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.ResultLimit = 0

	_, err := NewService(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = testConfig("http://127.0.0.1:1")
	cfg.Filter = "line =="
	_, err = NewService(context.Background(), cfg, nil)
	assert.Error(t, err)
}
