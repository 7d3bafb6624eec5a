// cmd/parkingd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"smart-parking-core/internal/alerting"
	"smart-parking-core/internal/analytics"
	"smart-parking-core/internal/api"
	"smart-parking-core/internal/auth"
	"smart-parking-core/internal/config"
	"smart-parking-core/internal/history"
	"smart-parking-core/internal/ingest"
	"smart-parking-core/internal/parking"
	"smart-parking-core/internal/snapshot"
	"smart-parking-core/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Core state ---
	zones := parking.NewZoneStateStore()
	for _, zc := range cfg.Zones {
		zones.Register(parking.Zone{
			ID:         zc.ID,
			Code:       zc.Code,
			Name:       zc.Name,
			TotalSpots: zc.TotalSpots,
		})
	}
	log.Printf("registered %d zones", len(cfg.Zones))

	snaps := history.NewMemorySnapshotStore(cfg.History.MaxSnapshotsPerZone)
	events := history.NewMemoryEventStore(cfg.History.MaxEventsPerZone)

	// --- Streaming + analytics ---
	hub := websocket.NewHub()
	go hub.Run()

	engine := analytics.NewEngine(cfg.Analytics)
	alerter := alerting.NewAlerter(hub)

	ingestor := ingest.NewIngestor(zones, events, hub)
	if len(cfg.Kafka.Brokers) > 0 {
		sink := ingest.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer sink.Close()
		ingestor.WithSink(sink)
		log.Printf("kafka event sink enabled on topic %s", cfg.Kafka.Topic)
	}

	scheduler := snapshot.NewScheduler(zones, snaps, time.Duration(cfg.Snapshot.IntervalSeconds)*time.Second).
		WithAnomalyAlerts(engine, alerter)

	// --- Optional MQTT event source ---
	if cfg.MQTT.BrokerURL != "" {
		source := ingest.NewMQTTSource(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.Topic, ingestor)
		if err := source.Start(); err != nil {
			log.Printf("mqtt source disabled: %v", err)
		} else {
			defer source.Stop()
		}
	}

	// --- HTTP servers ---
	authManager := auth.NewManager(cfg.Auth)
	handler := api.NewAPIHandler(
		zones, events, snaps, engine, hub, ingestor,
		time.Duration(cfg.Websocket.HeartbeatSeconds)*time.Second,
		cfg.Websocket.SendBuffer,
	)

	dataServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.DataPort),
		Handler: api.SetupDataRouter(handler, authManager),
	}
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.APIPort),
		Handler: api.SetupAPIRouter(handler),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("event ingestion server listening on port %d", cfg.Server.DataPort)
		if err := dataServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("query & websocket server listening on port %d", cfg.Server.APIPort)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = dataServer.Shutdown(shutdownCtx)
		_ = apiServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("servers gracefully stopped")
}
