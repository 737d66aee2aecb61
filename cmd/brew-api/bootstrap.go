package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BeanBarn/BrewTrack/config"
	"github.com/BeanBarn/BrewTrack/internal/broker/kafka"
	"github.com/BeanBarn/BrewTrack/internal/broker/rabbit"
	"github.com/BeanBarn/BrewTrack/internal/cache/rediscache"
	"github.com/BeanBarn/BrewTrack/internal/integrations/geocoder"
	geofake "github.com/BeanBarn/BrewTrack/internal/integrations/geocoder/fake"
	"github.com/BeanBarn/BrewTrack/internal/integrations/geocoder/nominatimhttp"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/BeanBarn/BrewTrack/internal/services/orders"
	"github.com/BeanBarn/BrewTrack/internal/services/tracking"
	"github.com/BeanBarn/BrewTrack/internal/storage/mongoorders"
	"github.com/BeanBarn/BrewTrack/internal/storage/pgtrack"
)

type brewAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   brewAPIOpts

	ordersSvc   *orders.Service
	trackingSvc *tracking.Service

	orderConsumer    *kafka.Consumer
	trackingConsumer *kafka.Consumer
	notifier         *rabbit.Notifier

	closeFns []func()
}

func mustBootstrapBrewAPI() *brewAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.BrewTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.BrewTrack.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "brew-api"
	}
	orderTopic := cfg.Kafka.OrderUpdatedTopicName
	if orderTopic == "" {
		orderTopic = "order.updated"
	}
	trackingTopic := cfg.Kafka.TrackingUpdatedTopicName
	if trackingTopic == "" {
		trackingTopic = "tracking.updated"
	}
	if cfg.BrewTrack.JWTSecret == "" {
		panic("brewtrack.jwt_secret is required")
	}

	cacheTTL := time.Duration(cfg.BrewTrack.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	app := &brewAPIApp{}

	mongoURI := cfg.Mongo.URI
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	mongoDB := cfg.Mongo.DBName
	if mongoDB == "" {
		mongoDB = "brewtrack"
	}
	mst, err := mongoorders.New(mongoURI, mongoDB)
	if err != nil {
		panic(fmt.Sprintf("mongo is not ready: %v", err))
	}
	app.closeFns = append(app.closeFns, mst.Close)

	pst := mustOpenPostgresWithRetry(pgConnString(cfg), 60*time.Second)
	app.closeFns = append(app.closeFns, pst.Close)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	app.orderConsumer = kafka.NewConsumer(brokers, orderTopic, consumerGroup)
	app.trackingConsumer = kafka.NewConsumer(brokers, trackingTopic, consumerGroup)

	if cfg.Rabbit.URL != "" {
		n, err := rabbit.New(cfg.Rabbit.URL)
		if err != nil {
			panic(fmt.Sprintf("rabbit is not ready: %v", err))
		}
		app.notifier = n
		app.closeFns = append(app.closeFns, func() { _ = n.Close() })
	}

	shop := models.Place{
		Lat:     cfg.BrewTrack.ShopLat,
		Lng:     cfg.BrewTrack.ShopLng,
		Address: cfg.BrewTrack.ShopAddress,
	}

	app.ordersSvc = orders.New(mst, producer, orderTopic, rc, cacheTTL, nil)
	app.trackingSvc = tracking.New(pst, newGeocoderClient(cfg, shop), producer, trackingTopic, rl,
		tracking.Settings{
			Shop:       shop,
			StaleAfter: time.Duration(cfg.BrewTrack.TrackingStaleSeconds) * time.Second,
			PingLimit:  int64(cfg.BrewTrack.PingRateLimitPerMinute),
			PingWindow: time.Minute,
		}, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.ctx = ctx
	app.cancel = cancel
	app.opts = brewAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		jwtSecret:     cfg.BrewTrack.JWTSecret,
		orderTopic:    orderTopic,
		trackingTopic: trackingTopic,
		consumerGroup: consumerGroup,
		mapCfg:        mapConfig(cfg, shop),
		navDelay:      time.Duration(cfg.BrewTrack.NavigationDelaySeconds) * time.Second,
	}
	return app
}

func pgConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgtrack.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgtrack.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

// newGeocoderClient выбирает геокодер по конфигу. Для демо годится fake:
// он детерминированно раскидывает адреса вокруг кофейни. Любой вариант
// заворачивается в Fallback, чтобы кривой адрес не ронял старт трекинга.
func newGeocoderClient(cfg *config.Config, shop models.Place) geocoder.Client {
	fallback := models.Coordinate{Lat: cfg.BrewTrack.FallbackLat, Lng: cfg.BrewTrack.FallbackLng}
	if fallback.Lat == 0 && fallback.Lng == 0 {
		fallback = shop.Coordinate()
	}

	var inner geocoder.Client
	switch cfg.BrewTrack.GeocoderMode {
	case "nominatim":
		inner = nominatimhttp.New(cfg.BrewTrack.GeocoderBaseURL, cfg.BrewTrack.GeocoderEmail)
	default:
		inner = geofake.New(shop.Coordinate())
	}
	return geocoder.NewFallback(inner, fallback)
}

func (a *brewAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.orderConsumer != nil {
		_ = a.orderConsumer.Close()
	}
	if a.trackingConsumer != nil {
		_ = a.trackingConsumer.Close()
	}
	for _, fn := range a.closeFns {
		fn()
	}
}

func (a *brewAPIApp) Run() error {
	var n statusNotifier
	if a.notifier != nil {
		n = a.notifier
	}
	return runBrewAPI(a.ctx, a.opts, a.ordersSvc, a.trackingSvc, a.orderConsumer, a.trackingConsumer, n)
}
