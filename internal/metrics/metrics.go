package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_events_recorded_total",
		Help: "Total number of parking events recorded, labelled by kind.",
	}, []string{"event_type"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_events_rejected_total",
		Help: "Total number of parking events rejected, labelled by reason.",
	}, []string{"reason"})

	BroadcastsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_broadcasts_total",
		Help: "Total number of messages broadcast to subscribers, labelled by type.",
	}, []string{"type"})

	SubscribersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parking_ws_subscribers",
		Help: "Current number of live websocket subscribers.",
	})

	SubscribersPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_ws_subscribers_pruned_total",
		Help: "Total number of subscribers removed after a failed or stalled send.",
	})

	SnapshotsTaken = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_snapshots_total",
		Help: "Total number of occupancy snapshots materialized.",
	})

	ZoneOccupancyRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parking_zone_occupancy_rate",
		Help: "Live occupancy rate per zone (percent).",
	}, []string{"zone_code"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parking_ingest_duration_ms",
		Help:    "Event ingestion latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
	})
)
