package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Rabbit    RabbitConfig    `yaml:"rabbit"`
	BrewTrack BrewTrackConfig `yaml:"brewtrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type MongoConfig struct {
	URI    string `yaml:"uri"`
	DBName string `yaml:"name"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	OrderUpdatedTopicName    string `yaml:"order_updated_topic_name"`
	TrackingUpdatedTopicName string `yaml:"tracking_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RabbitConfig struct {
	URL string `yaml:"url"`
}

type BrewTrackConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	JWTSecret          string `yaml:"jwt_secret"`

	CurrentStatusTTLSeconds int `yaml:"current_status_ttl_seconds"`

	// Кофейня: точка отправления всех заказов.
	ShopLat     float64 `yaml:"shop_lat"`
	ShopLng     float64 `yaml:"shop_lng"`
	ShopAddress string  `yaml:"shop_address"`

	// Геокодер: "nominatim" | "fake".
	GeocoderMode    string `yaml:"geocoder_mode"`
	GeocoderBaseURL string `yaml:"geocoder_base_url"`
	GeocoderEmail   string `yaml:"geocoder_email"`

	// Fallback-координата на случай, когда адрес не геокодится.
	FallbackLat float64 `yaml:"fallback_lat"`
	FallbackLng float64 `yaml:"fallback_lng"`

	// Карта.
	ETASpeedKmh            float64 `yaml:"eta_speed_kmh"`
	MinETAMinutes          int     `yaml:"min_eta_minutes"`
	MapBoundsPaddingPct    float64 `yaml:"map_bounds_padding_pct"`
	MapMaxZoom             int     `yaml:"map_max_zoom"`
	MapLoadTimeoutSeconds  int     `yaml:"map_load_timeout_seconds"`
	NavigationDelaySeconds int     `yaml:"navigation_delay_seconds"`

	// Пинги курьера.
	PingRateLimitPerMinute int `yaml:"ping_rate_limit_per_minute"`
	TrackingStaleSeconds   int `yaml:"tracking_stale_seconds"`

	// Воркер-обходчик.
	WorkerHTTPAddr             string `yaml:"worker_http_addr"`
	WorkerSweepIntervalSeconds int    `yaml:"worker_sweep_interval_seconds"`
	WorkerBatchSize            int    `yaml:"worker_batch_size"`
	WorkerConcurrency          int    `yaml:"worker_concurrency"`
	WorkerLeaseSeconds         int    `yaml:"worker_lease_seconds"`

	WorkerFreshMinSeconds int `yaml:"worker_fresh_min_seconds"`
	WorkerFreshMaxSeconds int `yaml:"worker_fresh_max_seconds"`
	WorkerBackoff1Seconds int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds int `yaml:"worker_backoff_4_seconds"`
	WorkerMaxStaleSweeps  int `yaml:"worker_max_stale_sweeps"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
