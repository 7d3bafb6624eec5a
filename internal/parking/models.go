// internal/parking/models.go
package parking

import (
	"math"
	"time"
)

// EventKind is the kind of parking event.
type EventKind string

const (
	EventEntry EventKind = "entry"
	EventExit  EventKind = "exit"
)

// Valid reports whether k is a recognized event kind.
func (k EventKind) Valid() bool {
	return k == EventEntry || k == EventExit
}

// VehicleType classifies the detected vehicle, when known.
type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleTruck      VehicleType = "truck"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBus        VehicleType = "bus"
	VehicleUnknown    VehicleType = "unknown"
)

// Zone is a parking zone with live occupancy counters.
// Counters are mutated only through ZoneStateStore.Apply.
type Zone struct {
	ID            int    `json:"id"`
	Code          string `json:"zone_code"`
	Name          string `json:"name"`
	TotalSpots    int    `json:"total_spots"`
	OccupiedSpots int    `json:"occupied_spots"`
}

// AvailableSpots returns the number of free spots.
func (z Zone) AvailableSpots() int {
	if z.TotalSpots < z.OccupiedSpots {
		return 0
	}
	return z.TotalSpots - z.OccupiedSpots
}

// OccupancyRate returns occupancy as a percentage (0 when the zone has no spots).
func (z Zone) OccupancyRate() float64 {
	if z.TotalSpots == 0 {
		return 0.0
	}
	return round2(float64(z.OccupiedSpots) / float64(z.TotalSpots) * 100)
}

// ParkingEvent is an immutable record of a single vehicle entry or exit.
type ParkingEvent struct {
	ID              string      `json:"id"`
	ZoneID          int         `json:"zone_id"`
	ZoneCode        string      `json:"zone_code"`
	EventType       EventKind   `json:"event_type"`
	VehicleType     VehicleType `json:"vehicle_type,omitempty"`
	LicensePlate    string      `json:"license_plate,omitempty"`
	ConfidenceScore float64     `json:"confidence_score,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// OccupancySnapshot is a point-in-time materialization of zone occupancy,
// appended at a fixed cadence to feed time-series analytics.
type OccupancySnapshot struct {
	ZoneID        int       `json:"zone_id"`
	OccupiedSpots int       `json:"occupied_spots"`
	TotalSpots    int       `json:"total_spots"`
	OccupancyRate float64   `json:"occupancy_rate"`
	Timestamp     time.Time `json:"timestamp"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
