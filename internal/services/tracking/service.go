// Package tracking ведёт живой трекинг доставки: запись позиции курьера,
// история точек и фан-аут снапшотов подписчикам.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/broker/messages"
	"github.com/BeanBarn/BrewTrack/internal/hub"
	"github.com/BeanBarn/BrewTrack/internal/integrations/geocoder"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrTrackingNotFound = errors.New("tracking not found")
	ErrRateLimited      = errors.New("location push rate limited")
)

type Repository interface {
	UpsertRecord(ctx context.Context, rec *models.TrackingRecord) error
	GetRecord(ctx context.Context, orderID string) (*models.TrackingRecord, error)
	UpdateDriverLocation(ctx context.Context, orderID string, loc models.DriverLocation, nextSweepAt time.Time) (*models.TrackingRecord, error)
	StopRecord(ctx context.Context, orderID string, at time.Time) (*models.TrackingRecord, error)
	InsertPing(ctx context.Context, p *models.LocationPing) error
	ListPings(ctx context.Context, orderID string, limit, offset int) ([]*models.LocationPing, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Settings struct {
	// Shop — точка отправления; начальная позиция курьера до первого пинга.
	Shop models.Place
	// StaleAfter определяет, когда запись без пингов считается протухшей.
	StaleAfter time.Duration
	// PingLimit и PingWindow ограничивают частоту пушей одного курьера.
	PingLimit  int64
	PingWindow time.Duration
}

type Service struct {
	repo     Repository
	geocoder geocoder.Client
	producer Producer
	topic    string
	limiter  Limiter
	settings Settings
	hub      *hub.Hub[*models.TrackingRecord]
	log      *slog.Logger
	now      func() time.Time
}

func New(repo Repository, gc geocoder.Client, producer Producer, topic string, limiter Limiter, settings Settings, log *slog.Logger) *Service {
	if settings.StaleAfter <= 0 {
		settings.StaleAfter = 90 * time.Second
	}
	if settings.PingLimit <= 0 {
		settings.PingLimit = 12
	}
	if settings.PingWindow <= 0 {
		settings.PingWindow = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		geocoder: gc,
		producer: producer,
		topic:    topic,
		limiter:  limiter,
		settings: settings,
		hub:      hub.New[*models.TrackingRecord](),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type StartInput struct {
	OrderID         string
	CourierID       string
	CustomerAddress string
	// CustomerCoord, если задана, используется вместо геокодирования адреса.
	CustomerCoord *models.Coordinate
}

// Start заводит запись трекинга. Координата клиента берётся из запроса,
// если была передана, иначе адрес геокодится; курьер стартует с координаты
// кофейни. Повторный Start того же заказа перезаписывает запись целиком.
func (s *Service) Start(ctx context.Context, in StartInput) (*models.TrackingRecord, error) {
	if in.OrderID == "" {
		return nil, errors.New("orderId is required")
	}
	if in.CourierID == "" {
		return nil, errors.New("courierId is required")
	}
	if in.CustomerAddress == "" {
		return nil, errors.New("customerAddress is required")
	}

	var customer models.Coordinate
	if in.CustomerCoord != nil {
		if in.CustomerCoord.Lat < -90 || in.CustomerCoord.Lat > 90 ||
			in.CustomerCoord.Lng < -180 || in.CustomerCoord.Lng > 180 {
			return nil, errors.New("customerCoord is out of range")
		}
		customer = *in.CustomerCoord
	} else {
		var err error
		customer, err = s.geocoder.Resolve(ctx, in.CustomerAddress)
		if err != nil {
			return nil, errors.Wrap(err, "geocode customer address")
		}
	}

	now := s.now()
	rec := &models.TrackingRecord{
		OrderID:   in.OrderID,
		CourierID: in.CourierID,
		Driver: models.DriverLocation{
			Lat: s.settings.Shop.Lat,
			Lng: s.settings.Shop.Lng,
			At:  now,
		},
		Shop: s.settings.Shop,
		Customer: models.Place{
			Lat:     customer.Lat,
			Lng:     customer.Lng,
			Address: in.CustomerAddress,
		},
		IsActive:    true,
		StartedAt:   now,
		LastPingAt:  now,
		NextSweepAt: now.Add(s.settings.StaleAfter),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.publish(ctx, in.OrderID, messages.TrackingUpdated{
		OrderID:   in.OrderID,
		Reason:    messages.TrackingReasonStarted,
		UpdatedAt: now,
	})
	return rec, nil
}

// UpdateDriverLocation принимает пинг курьера. Частота пушей ограничена
// per-courier; запись должна существовать и быть активной.
func (s *Service) UpdateDriverLocation(ctx context.Context, orderID string, loc models.DriverLocation) (*models.TrackingRecord, error) {
	if orderID == "" {
		return nil, errors.New("orderId is required")
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return nil, errors.New("coordinate out of range")
	}
	if loc.At.IsZero() {
		loc.At = s.now()
	}

	current, err := s.repo.GetRecord(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsActive {
		return nil, ErrTrackingNotFound
	}

	if s.limiter != nil {
		ok, n, err := s.limiter.Allow(ctx, limiterKey(current.CourierID), s.settings.PingLimit, s.settings.PingWindow)
		if err != nil {
			// Redis лёг — пропускаем пинг без лимита, трекинг важнее.
			s.log.Warn("ratelimit check failed, allowing ping", "courier_id", current.CourierID, "err", err)
		} else if !ok {
			s.log.Debug("ping rate limited", "courier_id", current.CourierID, "count", n)
			return nil, ErrRateLimited
		}
	}

	updated, err := s.repo.UpdateDriverLocation(ctx, orderID, loc, loc.At.Add(s.settings.StaleAfter))
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrTrackingNotFound
	}

	if err := s.repo.InsertPing(ctx, &models.LocationPing{
		OrderID:  orderID,
		Lat:      loc.Lat,
		Lng:      loc.Lng,
		Heading:  loc.Heading,
		SpeedKmh: loc.SpeedKmh,
		PingAt:   loc.At,
	}); err != nil {
		// История вторична, текущая позиция уже записана.
		s.log.Error("insert location ping", "order_id", orderID, "err", err)
	}

	s.publish(ctx, orderID, messages.TrackingUpdated{
		OrderID:   orderID,
		Reason:    messages.TrackingReasonPing,
		UpdatedAt: loc.At,
	})
	return updated, nil
}

// Stop гасит активный трекинг. Идемпотентен: повторный Stop уже
// остановленной записи не ошибка.
func (s *Service) Stop(ctx context.Context, orderID string) (*models.TrackingRecord, error) {
	if orderID == "" {
		return nil, errors.New("orderId is required")
	}
	rec, err := s.repo.StopRecord(ctx, orderID, s.now())
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTrackingNotFound
	}
	s.publish(ctx, orderID, messages.TrackingUpdated{
		OrderID:   orderID,
		Reason:    messages.TrackingReasonStopped,
		UpdatedAt: s.now(),
	})
	return rec, nil
}

// Get возвращает запись трекинга заказа. Отсутствие записи — штатное
// состояние "живого трекинга нет": nil без ошибки.
func (s *Service) Get(ctx context.Context, orderID string) (*models.TrackingRecord, error) {
	return s.repo.GetRecord(ctx, orderID)
}

func (s *Service) ListPings(ctx context.Context, orderID string, limit, offset int) ([]*models.LocationPing, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPings(ctx, orderID, limit, offset)
}

// Subscribe подписывает fn на снапшоты трекинга заказа. Первый снапшот
// приходит первым в очереди подписчика: nil, если записи нет или трекинг
// неактивен.
func (s *Service) Subscribe(ctx context.Context, orderID string, fn func(*models.TrackingRecord)) (func(), error) {
	// Читаем до регистрации: посев атомарен с подпиской, свежий
	// ApplyUpdate не обгонит начальный снапшот.
	rec, err := s.repo.GetRecord(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if rec != nil && !rec.IsActive {
		rec = nil
	}
	return s.hub.SubscribeSeed(orderID, rec, fn), nil
}

// ApplyUpdate вызывается consumer'ом: перечитывает запись и раздаёт
// подписчикам. Остановленный или отсутствующий трекинг — nil снапшот.
func (s *Service) ApplyUpdate(ctx context.Context, msg messages.TrackingUpdated) error {
	if msg.OrderID == "" {
		return errors.New("order_id is required")
	}
	rec, err := s.repo.GetRecord(ctx, msg.OrderID)
	if err != nil {
		return err
	}
	if rec != nil && !rec.IsActive {
		rec = nil
	}
	s.hub.Publish(msg.OrderID, rec)
	return nil
}

func (s *Service) Subscribers(orderID string) int {
	return s.hub.Subscribers(orderID)
}

func (s *Service) publish(ctx context.Context, orderID string, msg messages.TrackingUpdated) {
	if s.producer == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(orderID), b); err != nil {
		s.log.Error("publish tracking update", "order_id", orderID, "err", err)
	}
}

func limiterKey(courierID string) string {
	return fmt.Sprintf("courier:%s:pings", courierID)
}
