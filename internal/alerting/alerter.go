// internal/alerting/alerter.go
package alerting

import (
	"fmt"
	"log"
	"time"

	"smart-parking-core/internal/analytics"
	"smart-parking-core/internal/websocket"
)

// Broadcaster fans a typed message out to all live subscribers.
type Broadcaster interface {
	Broadcast(msgType string, data interface{})
}

// Alerter turns anomaly observations into alert broadcasts.
type Alerter struct {
	hub Broadcaster
	// Other notification channels (email, SMS) would hang off here.
}

func NewAlerter(hub Broadcaster) *Alerter {
	return &Alerter{hub: hub}
}

// AnomalyAlert broadcasts one anomalous observation for a zone.
func (a *Alerter) AnomalyAlert(zoneCode string, obs analytics.AnomalyObservation, at time.Time) {
	if a.hub == nil {
		return
	}
	msg := fmt.Sprintf(
		"Unusual occupancy in zone %s: %.2f%% observed, %.2f%% expected (z=%.2f)",
		zoneCode, obs.Actual, obs.Expected, obs.ZScore,
	)
	log.Printf("alert: %s", msg)
	a.hub.Broadcast(websocket.TypeAlert, map[string]interface{}{
		"zone_code":      zoneCode,
		"value":          obs.Actual,
		"expected_value": obs.Expected,
		"z_score":        obs.ZScore,
		"severity":       obs.Severity,
		"message":        msg,
		"observed_at":    at.UTC().Format(time.RFC3339),
	})
}
