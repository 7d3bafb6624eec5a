package api

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict

	"smart-parking-core/internal/analytics"
	"smart-parking-core/internal/history"
	"smart-parking-core/internal/ingest"
	"smart-parking-core/internal/parking"
	"smart-parking-core/internal/websocket"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Origin checks belong to the outer API layer.
}

// APIHandler serves the event input, the analytics query interface, and the
// websocket streaming endpoint.
type APIHandler struct {
	zones    *parking.ZoneStateStore
	events   history.EventStore
	snaps    history.SnapshotStore
	engine   *analytics.Engine
	hub      *websocket.Hub
	ingestor *ingest.Ingestor

	wsIdleTimeout time.Duration
	wsSendBuffer  int
}

func NewAPIHandler(
	zones *parking.ZoneStateStore,
	events history.EventStore,
	snaps history.SnapshotStore,
	engine *analytics.Engine,
	hub *websocket.Hub,
	ingestor *ingest.Ingestor,
	wsIdleTimeout time.Duration,
	wsSendBuffer int,
) *APIHandler {
	return &APIHandler{
		zones:         zones,
		events:        events,
		snaps:         snaps,
		engine:        engine,
		hub:           hub,
		ingestor:      ingestor,
		wsIdleTimeout: wsIdleTimeout,
		wsSendBuffer:  wsSendBuffer,
	}
}

// HandleCreateEvent records a parking entry/exit event.
func (h *APIHandler) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req ingest.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse JSON body")
		return
	}

	ev, err := h.ingestor.Record(req)
	if err != nil {
		switch {
		case errors.Is(err, parking.ErrUnknownZone):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, parking.ErrInvalidEventKind):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("api: recording event: %v", err)
			writeError(w, http.StatusInternalServerError, "could not record event")
		}
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// HandleListEvents returns recent events, newest first.
func (h *APIHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	zoneID := queryInt(r, "zone_id", 0, 0, math.MaxInt32)
	limit := queryInt(r, "limit", 50, 1, 500)

	events, err := h.events.Recent(zoneID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleAvailability lists live availability for every zone.
func (h *APIHandler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	type zoneAvailability struct {
		ZoneCode       string  `json:"zone_code"`
		ZoneName       string  `json:"zone_name"`
		TotalSpots     int     `json:"total_spots"`
		AvailableSpots int     `json:"available_spots"`
		OccupancyRate  float64 `json:"occupancy_rate"`
	}

	zones := h.zones.Snapshot()
	out := make([]zoneAvailability, 0, len(zones))
	for _, z := range zones {
		out = append(out, zoneAvailability{
			ZoneCode:       z.Code,
			ZoneName:       z.Name,
			TotalSpots:     z.TotalSpots,
			AvailableSpots: z.AvailableSpots(),
			OccupancyRate:  z.OccupancyRate(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDashboard returns an aggregate occupancy summary.
func (h *APIHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	zones := h.zones.Snapshot()

	totalSpots, totalOccupied := 0, 0
	for _, z := range zones {
		totalSpots += z.TotalSpots
		totalOccupied += z.OccupiedSpots
	}
	overallRate := 0.0
	if totalSpots > 0 {
		overallRate = round2(float64(totalOccupied) / float64(totalSpots) * 100)
	}

	todayStart := time.Now().UTC().Truncate(24 * time.Hour)
	eventsToday, err := h.events.CountSince(todayStart)
	if err != nil {
		eventsToday = 0
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_zones":            len(zones),
		"total_spots":            totalSpots,
		"total_occupied":         totalOccupied,
		"total_available":        totalSpots - totalOccupied,
		"overall_occupancy_rate": overallRate,
		"events_today":           eventsToday,
		"zones":                  zones,
	})
}

// HandleOccupancyTrend returns raw and EMA-smoothed rate series plus flagged
// anomalies for one zone.
func (h *APIHandler) HandleOccupancyTrend(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := h.requireZone(w, r)
	if !ok {
		return
	}
	hours := queryInt(r, "hours", 24, 1, 168)

	now := time.Now().UTC()
	series, err := h.snaps.Range(zoneID, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read snapshots")
		return
	}
	if len(series) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"raw": []interface{}{}, "smoothed": []interface{}{}, "anomalies": []interface{}{},
		})
		return
	}

	rates := make([]float64, len(series))
	stamps := make([]string, len(series))
	for i, snap := range series {
		rates[i] = snap.OccupancyRate
		stamps[i] = snap.Timestamp.Format(time.RFC3339)
	}

	smoothed := h.engine.Smooth(rates)
	observations := h.engine.DetectAnomalies(rates)

	type ratePoint struct {
		Timestamp     string  `json:"timestamp"`
		OccupancyRate float64 `json:"occupancy_rate"`
	}
	raw := make([]ratePoint, len(series))
	smooth := make([]ratePoint, len(series))
	for i := range series {
		raw[i] = ratePoint{Timestamp: stamps[i], OccupancyRate: rates[i]}
		smooth[i] = ratePoint{Timestamp: stamps[i], OccupancyRate: round2(smoothed[i])}
	}

	anomalies := make([]map[string]interface{}, 0)
	for i, obs := range observations {
		if !obs.IsAnomaly {
			continue
		}
		anomalies = append(anomalies, map[string]interface{}{
			"timestamp": stamps[i],
			"value":     rates[i],
			"z_score":   obs.ZScore,
			"severity":  obs.Severity,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"raw":       raw,
		"smoothed":  smooth,
		"anomalies": anomalies,
	})
}

// HandleForecast returns the short-horizon occupancy forecast for one zone.
func (h *APIHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := h.requireZone(w, r)
	if !ok {
		return
	}
	horizon := queryInt(r, "horizon", 24, 1, 72)

	now := time.Now().UTC()
	series, err := h.snaps.Range(zoneID, now.Add(-7*24*time.Hour), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read snapshots")
		return
	}

	rates := make([]float64, len(series))
	stamps := make([]time.Time, len(series))
	for i, snap := range series {
		rates[i] = snap.OccupancyRate
		stamps[i] = snap.Timestamp
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zone_id":  zoneID,
		"forecast": h.engine.Forecast(rates, stamps, now, horizon),
	})
}

// HandlePeakHours ranks the busiest hours of the day for one zone.
func (h *APIHandler) HandlePeakHours(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := h.requireZone(w, r)
	if !ok {
		return
	}
	days := queryInt(r, "days", 7, 1, 30)
	topN := queryInt(r, "top_n", 5, 1, 24)

	now := time.Now().UTC()
	series, err := h.snaps.Range(zoneID, now.Add(-time.Duration(days)*24*time.Hour), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read snapshots")
		return
	}

	rates := make([]float64, len(series))
	stamps := make([]time.Time, len(series))
	for i, snap := range series {
		rates[i] = snap.OccupancyRate
		stamps[i] = snap.Timestamp
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zone_id":     zoneID,
		"period_days": days,
		"peak_hours":  h.engine.PeakHours(rates, stamps, topN),
	})
}

// HandleArrivalRate estimates the Poisson arrival rate from entry events.
func (h *APIHandler) HandleArrivalRate(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := h.requireZone(w, r)
	if !ok {
		return
	}
	hours := queryInt(r, "hours", 4, 1, 24)

	now := time.Now().UTC()
	events, err := h.events.Range(zoneID, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read events")
		return
	}

	arrivals := make([]time.Time, 0, len(events))
	for _, ev := range events {
		if ev.EventType == parking.EventEntry {
			arrivals = append(arrivals, ev.Timestamp)
		}
	}
	rate := h.engine.ArrivalRate(arrivals)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zone_id":                zoneID,
		"period_hours":           hours,
		"total_arrivals":         len(arrivals),
		"lambda":                 rate.Lambda,
		"expected_per_hour":      rate.ExpectedPerHour,
		"std_dev":                rate.StdDev,
		"mean_inter_arrival_min": rate.MeanInterArrivalMinutes,
	})
}

// HandleWebSocket upgrades the connection and registers the subscriber.
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade error: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, uuid.New().String(), h.wsIdleTimeout, h.wsSendBuffer)
	h.hub.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleHealthz is the liveness endpoint.
func (h *APIHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// requireZone parses and validates the zone_id query parameter.
func (h *APIHandler) requireZone(w http.ResponseWriter, r *http.Request) (int, bool) {
	zoneID := queryInt(r, "zone_id", 0, 0, math.MaxInt32)
	if zoneID == 0 {
		writeError(w, http.StatusBadRequest, "zone_id is required")
		return 0, false
	}
	if _, err := h.zones.GetZone(zoneID); err != nil {
		writeError(w, http.StatusNotFound, "zone not found")
		return 0, false
	}
	return zoneID, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
