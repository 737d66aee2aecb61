package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BeanBarn/BrewTrack/config"
	"github.com/BeanBarn/BrewTrack/internal/api/httpapi"
	"github.com/BeanBarn/BrewTrack/internal/api/middleware"
	"github.com/BeanBarn/BrewTrack/internal/api/ws"
	"github.com/BeanBarn/BrewTrack/internal/broker/messages"
	"github.com/BeanBarn/BrewTrack/internal/maps"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/BeanBarn/BrewTrack/internal/services/orders"
	"github.com/BeanBarn/BrewTrack/internal/services/tracking"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type brewAPIOpts struct {
	httpAddr    string
	swaggerPath string
	jwtSecret   string

	orderTopic    string
	trackingTopic string
	consumerGroup string

	mapCfg   maps.RendererConfig
	navDelay time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// statusNotifier уведомляет внешние системы о финальных статусах заказа.
type statusNotifier interface {
	PublishOrderStatus(ctx context.Context, o *models.Order) error
}

func mapConfig(cfg *config.Config, shop models.Place) maps.RendererConfig {
	return maps.RendererConfig{
		Shop:             shop,
		ETASpeedKmh:      cfg.BrewTrack.ETASpeedKmh,
		MinETAMinutes:    cfg.BrewTrack.MinETAMinutes,
		BoundsPaddingPct: cfg.BrewTrack.MapBoundsPaddingPct,
		MaxZoom:          cfg.BrewTrack.MapMaxZoom,
		LoadTimeout:      time.Duration(cfg.BrewTrack.MapLoadTimeoutSeconds) * time.Second,
	}
}

func runBrewAPI(
	ctx context.Context,
	opts brewAPIOpts,
	ordersSvc *orders.Service,
	trackingSvc *tracking.Service,
	orderConsumer, trackingConsumer kafkaConsumer,
	notifier statusNotifier,
) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	auth := middleware.NewAuth(opts.jwtSecret)
	api := httpapi.New(ordersSvc, trackingSvc)
	wsHandler := ws.NewHandler(ordersSvc, trackingSvc, opts.mapCfg, opts.navDelay, slog.Default())

	r.Group(func(r chi.Router) {
		r.Use(auth.Handler)
		api.Routes(r)
		wsHandler.Routes(r)
	})

	go func() {
		slog.Info("kafka consumer started", "topic", opts.orderTopic, "group", opts.consumerGroup)
		_ = orderConsumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.OrderUpdated
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			if err := ordersSvc.ApplyUpdate(ctx, m); err != nil {
				return err
			}
			notifyTerminal(ctx, ordersSvc, notifier, m)
			return nil
		})
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.trackingTopic, "group", opts.consumerGroup)
		_ = trackingConsumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.TrackingUpdated
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return trackingSvc.ApplyUpdate(ctx, m)
		})
	}()

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	serveErr := srv.Serve(lis)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return serveErr
}

// notifyTerminal шлёт уведомление в rabbit, когда заказ финализировался.
// Ошибки не фатальны: уведомления не участвуют в консистентности заказа.
func notifyTerminal(ctx context.Context, ordersSvc *orders.Service, notifier statusNotifier, m messages.OrderUpdated) {
	if notifier == nil {
		return
	}
	if !models.OrderStatus(m.Status).Terminal() {
		return
	}
	o, err := ordersSvc.Get(ctx, m.OrderID)
	if err != nil || o == nil {
		return
	}
	if err := notifier.PublishOrderStatus(ctx, o); err != nil {
		slog.Error("rabbit notify", "order_id", m.OrderID, "err", err)
	}
}
