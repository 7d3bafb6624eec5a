// internal/config/config.go
package config

import (
	"log"

	"github.com/spf13/viper"

	"smart-parking-core/internal/analytics"
	"smart-parking-core/internal/auth"
)

type Config struct {
	Server struct {
		DataPort int `mapstructure:"data_port"` // event ingestion
		APIPort  int `mapstructure:"api_port"`  // queries, websocket, metrics
	} `mapstructure:"server"`

	Auth auth.Config `mapstructure:"auth"`

	Analytics analytics.Config `mapstructure:"analytics"`

	Snapshot struct {
		IntervalSeconds int `mapstructure:"interval_seconds"`
	} `mapstructure:"snapshot"`

	History struct {
		MaxSnapshotsPerZone int `mapstructure:"max_snapshots_per_zone"`
		MaxEventsPerZone    int `mapstructure:"max_events_per_zone"`
	} `mapstructure:"history"`

	Websocket struct {
		HeartbeatSeconds int `mapstructure:"heartbeat_seconds"`
		SendBuffer       int `mapstructure:"send_buffer"`
	} `mapstructure:"websocket"`

	MQTT struct {
		BrokerURL string `mapstructure:"broker_url"` // empty disables the source
		ClientID  string `mapstructure:"client_id"`
		Topic     string `mapstructure:"topic"`
	} `mapstructure:"mqtt"`

	Kafka struct {
		Brokers []string `mapstructure:"brokers"` // empty disables the sink
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`

	// Zones seeds the zone registry at startup; zone lifecycle belongs to an
	// external collaborator in production.
	Zones []ZoneConfig `mapstructure:"zones"`
}

type ZoneConfig struct {
	ID         int    `mapstructure:"id"`
	Code       string `mapstructure:"code"`
	Name       string `mapstructure:"name"`
	TotalSpots int    `mapstructure:"total_spots"`
}

// Load reads config.yaml from path, with env-var overrides and defaults.
func Load(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: error reading config file, using defaults: %s", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.data_port", 8080)
	viper.SetDefault("server.api_port", 8081)
	viper.SetDefault("analytics.ema_alpha", 0.3)
	viper.SetDefault("analytics.anomaly_threshold", 2.5)
	viper.SetDefault("analytics.window_size", 24)
	viper.SetDefault("analytics.trend_points", 6)
	viper.SetDefault("analytics.min_history", 24)
	viper.SetDefault("analytics.default_seasonal_std", 10.0)
	viper.SetDefault("analytics.default_baseline", 50.0)
	viper.SetDefault("analytics.flat_band", 15.0)
	viper.SetDefault("snapshot.interval_seconds", 300)
	viper.SetDefault("history.max_snapshots_per_zone", 4096)
	viper.SetDefault("history.max_events_per_zone", 4096)
	viper.SetDefault("websocket.heartbeat_seconds", 30)
	viper.SetDefault("websocket.send_buffer", 256)
	viper.SetDefault("mqtt.client_id", "parking-core")
	viper.SetDefault("mqtt.topic", "parking/events")
	viper.SetDefault("kafka.topic", "parking.events")
}
