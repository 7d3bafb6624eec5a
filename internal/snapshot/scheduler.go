// internal/snapshot/scheduler.go
package snapshot

import (
	"context"
	"log"
	"time"

	"smart-parking-core/internal/alerting"
	"smart-parking-core/internal/analytics"
	"smart-parking-core/internal/history"
	"smart-parking-core/internal/metrics"
	"smart-parking-core/internal/parking"
)

// Scheduler periodically materializes live zone state into time-stamped
// occupancy snapshots. It is the sole producer of the rate series the
// analytics engine consumes.
type Scheduler struct {
	zones    *parking.ZoneStateStore
	snaps    history.SnapshotStore
	interval time.Duration

	// Optional anomaly check on each pass.
	engine   *analytics.Engine
	alerter  *alerting.Alerter
	lookback time.Duration
}

func NewScheduler(zones *parking.ZoneStateStore, snaps history.SnapshotStore, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		zones:    zones,
		snaps:    snaps,
		interval: interval,
		lookback: 24 * time.Hour,
	}
}

// WithAnomalyAlerts makes each pass run the rolling z-score detector over the
// recent rate series of every zone and broadcast an alert when the newest
// point is anomalous.
func (s *Scheduler) WithAnomalyAlerts(engine *analytics.Engine, alerter *alerting.Alerter) *Scheduler {
	s.engine = engine
	s.alerter = alerter
	return s
}

// Run ticks until the context is cancelled. External callers that want to
// drive the cadence themselves can call RunOnce directly instead.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("snapshot: scheduler running every %s", s.interval)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(time.Now().UTC())
		case <-ctx.Done():
			log.Printf("snapshot: scheduler stopped")
			return
		}
	}
}

// RunOnce appends one snapshot per registered zone, all stamped with now.
func (s *Scheduler) RunOnce(now time.Time) {
	for _, zone := range s.zones.Snapshot() {
		snap := parking.OccupancySnapshot{
			ZoneID:        zone.ID,
			OccupiedSpots: zone.OccupiedSpots,
			TotalSpots:    zone.TotalSpots,
			OccupancyRate: zone.OccupancyRate(),
			Timestamp:     now,
		}
		if err := s.snaps.Append(snap); err != nil {
			log.Printf("snapshot: append failed for zone %s: %v", zone.Code, err)
			continue
		}
		metrics.SnapshotsTaken.Inc()
		metrics.ZoneOccupancyRate.WithLabelValues(zone.Code).Set(snap.OccupancyRate)

		if s.engine != nil && s.alerter != nil {
			s.checkZone(zone, now)
		}
	}
}

func (s *Scheduler) checkZone(zone parking.Zone, now time.Time) {
	series, err := s.snaps.Range(zone.ID, now.Add(-s.lookback), now)
	if err != nil || len(series) == 0 {
		return
	}
	rates := make([]float64, len(series))
	for i, snap := range series {
		rates[i] = snap.OccupancyRate
	}
	observations := s.engine.DetectAnomalies(rates)
	last := observations[len(observations)-1]
	if last.IsAnomaly {
		s.alerter.AnomalyAlert(zone.Code, last, now)
	}
}
