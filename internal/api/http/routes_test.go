package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/temperature-etl/internal/etl"
	"github.com/i474232898/temperature-etl/internal/metrics"
	"github.com/i474232898/temperature-etl/internal/sensor"
	"github.com/i474232898/temperature-etl/internal/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
	Stats   *sensor.Stats   `json:"stats"`
	Error   string          `json:"error"`
	Running bool            `json:"running"`
}

func newTestApp(t *testing.T, opts Options, temps ...float64) (*fiber.App, *etl.Service, *store.MemoryStore) {
	t.Helper()

	reg := prometheus.NewRegistry()
	st := store.NewMemoryStore(100)
	tr := sensor.NewTransformer(sensor.DefaultAcceptance, st, nil)
	svc := etl.NewService(st, sensor.NewFixtureTemperatures(temps...), tr, etl.WithMetrics(metrics.New(reg)))
	t.Cleanup(svc.Reset)

	app := NewApp(AppConfig{Name: "temperature-etl-test", Gatherer: reg})
	RegisterRoutes(app, svc, opts)
	return app, svc, st
}

func doJSON(t *testing.T, app *fiber.App, method, target string) (int, envelope) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func decodeRecords(t *testing.T, raw json.RawMessage) []sensor.Record {
	t.Helper()
	var records []sensor.Record
	require.NoError(t, json.Unmarshal(raw, &records))
	return records
}

func TestListTemperatures(t *testing.T) {
	app, svc, _ := newTestApp(t, Options{}, 20, 21, 150, 22)
	for i := 0; i < 4; i++ {
		svc.RunCycle(context.Background())
	}

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/temperature")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.Count)
	assert.Len(t, decodeRecords(t, body.Data), 3)

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/temperature?limit=2")
	require.Equal(t, http.StatusOK, code)
	records := decodeRecords(t, body.Data)
	require.Len(t, records, 2)
	assert.Equal(t, 21.0, records[0].Temperature)
	assert.Equal(t, 22.0, records[1].Temperature)

	// Invalid limits are ignored.
	for _, limit := range []string{"abc", "0", "-4"} {
		_, body = doJSON(t, app, http.MethodGet, "/api/v1/temperature?limit="+limit)
		assert.Equal(t, 3, body.Count, "limit=%s", limit)
	}
}

func TestListEmptyReturnsArray(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/temperature")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body.Data))
	assert.Zero(t, body.Count)
}

func TestLatestTemperature(t *testing.T) {
	app, svc, _ := newTestApp(t, Options{}, 20, 23.5)

	_, body := doJSON(t, app, http.MethodGet, "/api/v1/temperature?latest=true")
	assert.True(t, body.Success)
	assert.Equal(t, "null", string(body.Data))

	svc.RunCycle(context.Background())
	svc.RunCycle(context.Background())

	_, body = doJSON(t, app, http.MethodGet, "/api/v1/temperature?latest=true")
	var latest sensor.Record
	require.NoError(t, json.Unmarshal(body.Data, &latest))
	assert.Equal(t, 23.5, latest.Temperature)
	assert.True(t, latest.Processed)
}

func TestStatsQuery(t *testing.T) {
	app, svc, _ := newTestApp(t, Options{}, 20, -80)
	svc.RunCycle(context.Background())
	svc.RunCycle(context.Background())

	_, body := doJSON(t, app, http.MethodGet, "/api/v1/temperature?stats=true")
	require.NotNil(t, body.Stats)
	assert.Equal(t, int64(1), body.Stats.TotalRecords)
	assert.Equal(t, int64(1), body.Stats.ValidRecords)
	assert.Equal(t, int64(1), body.Stats.InvalidRecords)
	assert.NotZero(t, body.Stats.LastProcessed)
}

func TestRangeQueryValidation(t *testing.T) {
	app, _, st := newTestApp(t, Options{})
	for _, ts := range []int64{100, 200, 300} {
		require.NoError(t, st.Append(sensor.Record{Temperature: 20, Timestamp: ts, SensorID: "TEMP_001", Processed: true}))
	}

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/temperature/range?start=150&end=300")
	require.Equal(t, http.StatusOK, code)
	records := decodeRecords(t, body.Data)
	require.Len(t, records, 2)
	assert.Equal(t, int64(200), records[0].Timestamp)
	assert.Equal(t, int64(300), records[1].Timestamp)

	for _, q := range []string{
		"",
		"?start=100",
		"?start=abc&end=200",
		"?start=100&end=xyz",
		"?start=300&end=100",
		"?start=-5&end=100",
	} {
		code, body := doJSON(t, app, http.MethodGet, "/api/v1/temperature/range"+q)
		assert.Equal(t, http.StatusBadRequest, code, "query %q", q)
		assert.False(t, body.Success)
		assert.NotEmpty(t, body.Error)
	}
}

func TestResetEndpoint(t *testing.T) {
	app, svc, _ := newTestApp(t, Options{PollingInterval: time.Hour}, 20, 21)
	svc.RunCycle(context.Background())

	code, body := doJSON(t, app, http.MethodPost, "/api/v1/pipeline/reset")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	assert.True(t, body.Running)
	assert.True(t, svc.Running())
}

func TestResetEndpointWithoutRestart(t *testing.T) {
	app, svc, _ := newTestApp(t, Options{}, 20)
	svc.RunCycle(context.Background())

	_, body := doJSON(t, app, http.MethodPost, "/api/v1/pipeline/reset")
	assert.False(t, body.Running)
	assert.False(t, svc.Running())
	assert.Empty(t, svc.AllRecords(0))
	assert.Equal(t, sensor.Stats{}, svc.Stats())
}

func TestDashboardRedirect(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
	assert.Equal(t, "/api/v1/temperature", resp.Header.Get("Location"))
}

func TestCORSHeaders(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/temperature", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	app, svc, _ := newTestApp(t, Options{}, 20)
	svc.RunCycle(context.Background())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `etl_cycles_total{outcome="loaded"} 1`)
}

func TestNotFoundUsesErrorEnvelope(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}
