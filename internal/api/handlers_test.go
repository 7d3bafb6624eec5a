package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-parking-core/internal/analytics"
	"smart-parking-core/internal/auth"
	"smart-parking-core/internal/history"
	"smart-parking-core/internal/ingest"
	"smart-parking-core/internal/parking"
	"smart-parking-core/internal/websocket"
)

type fixture struct {
	handler *APIHandler
	zones   *parking.ZoneStateStore
	events  *history.MemoryEventStore
	snaps   *history.MemorySnapshotStore
	api     http.Handler
	data    http.Handler
}

func newFixture(t *testing.T, keys ...string) *fixture {
	t.Helper()

	zones := parking.NewZoneStateStore()
	zones.Register(parking.Zone{ID: 1, Code: "A1", Name: "North Lot", TotalSpots: 100})
	events := history.NewMemoryEventStore(0)
	snaps := history.NewMemorySnapshotStore(0)
	hub := websocket.NewHub()
	go hub.Run()

	engine := analytics.NewEngine(analytics.DefaultConfig())
	ingestor := ingest.NewIngestor(zones, events, hub)
	handler := NewAPIHandler(zones, events, snaps, engine, hub, ingestor, 0, 0)

	return &fixture{
		handler: handler,
		zones:   zones,
		events:  events,
		snaps:   snaps,
		api:     SetupAPIRouter(handler),
		data:    SetupDataRouter(handler, auth.NewManager(auth.Config{APIKeys: keys})),
	}
}

func (f *fixture) do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.data, http.MethodPost, "/events",
		`{"zone_id":1,"event_type":"entry","license_plate":"XYZ-123"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := f.decode(t, rec)
	assert.Equal(t, "A1", body["zone_code"])
	assert.NotEmpty(t, body["id"])

	occupied, _, err := f.zones.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1, occupied)
}

func TestCreateEventRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown zone", `{"zone_id":42,"event_type":"entry"}`, http.StatusNotFound},
		{"invalid kind", `{"zone_id":1,"event_type":"hover"}`, http.StatusBadRequest},
		{"malformed json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, f.data, http.MethodPost, "/events", tt.body, nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	occupied, _, err := f.zones.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0, occupied, "rejected events must not mutate state")
}

func TestCreateEventAPIKeyGuard(t *testing.T) {
	f := newFixture(t, "secret-key")
	body := `{"zone_id":1,"event_type":"entry"}`

	rec := f.do(t, f.data, http.MethodPost, "/events", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, f.data, http.MethodPost, "/events", body,
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, f.data, http.MethodPost, "/events", body,
		map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	_, err := f.zones.Apply(1, +1)
	require.NoError(t, err)

	rec := f.do(t, f.api, http.MethodGet, "/zones/availability", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "A1", out[0]["zone_code"])
	assert.Equal(t, 99.0, out[0]["available_spots"])
	assert.Equal(t, 1.0, out[0]["occupancy_rate"])
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	require.NoError(t, f.events.Append(parking.ParkingEvent{
		ZoneID: 1, EventType: parking.EventEntry, Timestamp: now,
	}))
	_, err := f.zones.Apply(1, +1)
	require.NoError(t, err)

	rec := f.do(t, f.api, http.MethodGet, "/analytics/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := f.decode(t, rec)
	assert.Equal(t, 1.0, body["total_zones"])
	assert.Equal(t, 100.0, body["total_spots"])
	assert.Equal(t, 1.0, body["total_occupied"])
	assert.Equal(t, 99.0, body["total_available"])
	assert.Equal(t, 1.0, body["events_today"])
}

func TestOccupancyTrend(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	// Stable history with one spike in the middle.
	for i := 0; i < 30; i++ {
		rate := 50.0
		if i == 25 {
			rate = 95.0
		}
		require.NoError(t, f.snaps.Append(parking.OccupancySnapshot{
			ZoneID:        1,
			OccupancyRate: rate,
			Timestamp:     now.Add(time.Duration(i-30) * 10 * time.Minute),
		}))
	}

	rec := f.do(t, f.api, http.MethodGet, "/analytics/occupancy-trend?zone_id=1&hours=24", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := f.decode(t, rec)
	raw := body["raw"].([]interface{})
	smoothed := body["smoothed"].([]interface{})
	anomalies := body["anomalies"].([]interface{})

	assert.Len(t, raw, 30)
	assert.Len(t, smoothed, 30)
	require.Len(t, anomalies, 1)
	spike := anomalies[0].(map[string]interface{})
	assert.Equal(t, 95.0, spike["value"])
}

func TestOccupancyTrendEmptyHistory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.api, http.MethodGet, "/analytics/occupancy-trend?zone_id=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := f.decode(t, rec)
	assert.Empty(t, body["raw"])
	assert.Empty(t, body["anomalies"])
}

func TestAnalyticsZoneValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.api, http.MethodGet, "/analytics/occupancy-trend", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, f.api, http.MethodGet, "/analytics/forecast?zone_id=42", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastFlatWithLittleHistory(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	require.NoError(t, f.snaps.Append(parking.OccupancySnapshot{
		ZoneID: 1, OccupancyRate: 70.0, Timestamp: now.Add(-time.Hour),
	}))

	rec := f.do(t, f.api, http.MethodGet, "/analytics/forecast?zone_id=1&horizon=6", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := f.decode(t, rec)
	forecast := body["forecast"].([]interface{})
	require.Len(t, forecast, 6)
	for _, p := range forecast {
		point := p.(map[string]interface{})
		assert.Equal(t, 70.0, point["predicted"])
		assert.Equal(t, 55.0, point["lower_bound"])
		assert.Equal(t, 85.0, point["upper_bound"])
	}
}

func TestArrivalRate(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	// 13 entries every 5 minutes plus one exit that must be ignored.
	for i := 0; i < 13; i++ {
		require.NoError(t, f.events.Append(parking.ParkingEvent{
			ID: fmt.Sprintf("e%d", i), ZoneID: 1, EventType: parking.EventEntry,
			Timestamp: now.Add(time.Duration(i-13) * 5 * time.Minute),
		}))
	}
	require.NoError(t, f.events.Append(parking.ParkingEvent{
		ID: "x", ZoneID: 1, EventType: parking.EventExit, Timestamp: now.Add(-time.Minute),
	}))

	rec := f.do(t, f.api, http.MethodGet, "/analytics/arrival-rate?zone_id=1&hours=4", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := f.decode(t, rec)
	assert.Equal(t, 13.0, body["total_arrivals"])
	assert.InDelta(t, 13.0, body["lambda"].(float64), 0.01)
	assert.InDelta(t, 5.0, body["mean_inter_arrival_min"].(float64), 0.01)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.events.Append(parking.ParkingEvent{
			ID: fmt.Sprintf("e%d", i), ZoneID: 1, EventType: parking.EventEntry,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := f.do(t, f.api, http.MethodGet, "/events?zone_id=1&limit=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, "e4", out[0]["id"], "newest first")
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, f.api, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
