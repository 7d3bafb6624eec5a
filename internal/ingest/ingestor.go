// internal/ingest/ingestor.go
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"smart-parking-core/internal/history"
	"smart-parking-core/internal/metrics"
	"smart-parking-core/internal/parking"
	"smart-parking-core/internal/websocket"
)

// EventRequest is the wire form of an event from the detection collaborator
// or the administrative API. Timestamp defaults to now (UTC) when omitted.
type EventRequest struct {
	ZoneID          int        `json:"zone_id"`
	EventType       string     `json:"event_type"`
	VehicleType     string     `json:"vehicle_type,omitempty"`
	LicensePlate    string     `json:"license_plate,omitempty"`
	ConfidenceScore float64    `json:"confidence_score,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
}

// Broadcaster fans a typed message out to all live subscribers.
type Broadcaster interface {
	Broadcast(msgType string, data interface{})
}

// EventSink mirrors recorded events to an external append-only store.
type EventSink interface {
	Publish(ctx context.Context, ev parking.ParkingEvent) error
	Close() error
}

// Ingestor validates entry/exit events, applies them to the zone state store,
// records them, and publishes the resulting state change.
type Ingestor struct {
	zones  *parking.ZoneStateStore
	events history.EventStore
	hub    Broadcaster
	sink   EventSink // optional
}

func NewIngestor(zones *parking.ZoneStateStore, events history.EventStore, hub Broadcaster) *Ingestor {
	return &Ingestor{zones: zones, events: events, hub: hub}
}

// WithSink attaches an optional event sink; recorded events are mirrored to it
// best-effort.
func (in *Ingestor) WithSink(sink EventSink) *Ingestor {
	in.sink = sink
	return in
}

// Record validates and applies one event. Validation failures reject the
// event before any mutation; on success the zone delta is applied, the event
// is persisted, and zone_update plus event notifications are published.
func (in *Ingestor) Record(req EventRequest) (parking.ParkingEvent, error) {
	start := time.Now()

	kind := parking.EventKind(req.EventType)
	if !kind.Valid() {
		metrics.EventsRejected.WithLabelValues("invalid_kind").Inc()
		return parking.ParkingEvent{}, fmt.Errorf("%w: %q", parking.ErrInvalidEventKind, req.EventType)
	}

	zone, err := in.zones.GetZone(req.ZoneID)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("unknown_zone").Inc()
		return parking.ParkingEvent{}, fmt.Errorf("%w: id %d", parking.ErrUnknownZone, req.ZoneID)
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	vehicleType := parking.VehicleType(req.VehicleType)
	if vehicleType == "" {
		vehicleType = parking.VehicleCar
	}

	ev := parking.ParkingEvent{
		ID:              uuid.New().String(),
		ZoneID:          zone.ID,
		ZoneCode:        zone.Code,
		EventType:       kind,
		VehicleType:     vehicleType,
		LicensePlate:    req.LicensePlate,
		ConfidenceScore: req.ConfidenceScore,
		Timestamp:       ts,
	}

	delta := +1
	if kind == parking.EventExit {
		delta = -1
	}
	// Apply before persisting: if the zone is deregistered between the
	// existence check and the update, nothing has been recorded yet, so
	// history never holds an event whose delta was dropped.
	occupied, err := in.zones.Apply(zone.ID, delta)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("unknown_zone").Inc()
		return parking.ParkingEvent{}, fmt.Errorf("applying event: %w", err)
	}

	if err := in.events.Append(ev); err != nil {
		metrics.EventsRejected.WithLabelValues("store").Inc()
		return parking.ParkingEvent{}, fmt.Errorf("recording event: %w", err)
	}

	updated := zone
	updated.OccupiedSpots = occupied
	in.publish(updated, ev)

	if in.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := in.sink.Publish(ctx, ev); err != nil {
			log.Printf("ingest: event sink publish failed: %v", err)
		}
		cancel()
	}

	metrics.EventsRecorded.WithLabelValues(string(kind)).Inc()
	metrics.IngestDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	metrics.ZoneOccupancyRate.WithLabelValues(zone.Code).Set(updated.OccupancyRate())
	return ev, nil
}

func (in *Ingestor) publish(zone parking.Zone, ev parking.ParkingEvent) {
	if in.hub == nil {
		return
	}
	in.hub.Broadcast(websocket.TypeZoneUpdate, map[string]interface{}{
		"zone_code":      zone.Code,
		"occupied_spots": zone.OccupiedSpots,
		"total_spots":    zone.TotalSpots,
		"occupancy_rate": zone.OccupancyRate(),
	})
	in.hub.Broadcast(websocket.TypeEvent, map[string]interface{}{
		"event_type":    string(ev.EventType),
		"zone_code":     ev.ZoneCode,
		"license_plate": ev.LicensePlate,
	})
}
