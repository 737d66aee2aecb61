// Package orders реализует жизненный цикл заказа поверх документного стора.
//
// Запись идёт в Mongo, затем в Kafka уходит уведомление. Подписчики получают
// snapshot'ы через hub после того, как consumer перечитает документ и вызовет
// ApplyUpdate. Так все инстансы API видят одну и ту же последовательность
// состояний.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/broker/messages"
	"github.com/BeanBarn/BrewTrack/internal/cache"
	"github.com/BeanBarn/BrewTrack/internal/hub"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Repository interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, courier *models.DeliveryPerson, now time.Time) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo       Repository
	producer   Producer
	topic      string
	cache      cache.BytesCache
	currentTTL time.Duration
	hub        *hub.Hub[*models.Order]
	validate   *validator.Validate
	log        *slog.Logger
	now        func() time.Time
}

func New(repo Repository, producer Producer, topic string, c cache.BytesCache, currentTTL time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:       repo,
		producer:   producer,
		topic:      topic,
		cache:      c,
		currentTTL: currentTTL,
		hub:        hub.New[*models.Order](),
		validate:   validator.New(),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(err, "validate order input")
	}

	now := s.now()
	order := &models.Order{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		Status:     models.OrderStatusPending,
		Address:    in.Address,
		TotalCents: in.TotalCents,
		Items:      in.Items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	s.cacheOrder(ctx, order)
	s.publish(ctx, order.ID, messages.OrderUpdated{
		OrderID:   order.ID,
		Status:    order.Status.String(),
		Reason:    messages.OrderReasonCreated,
		UpdatedAt: now,
	})
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, errors.New("orderId is required")
	}

	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(orderID)); err == nil && ok {
			var order models.Order
			if json.Unmarshal(b, &order) == nil {
				return &order, nil
			}
		}
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	s.cacheOrder(ctx, order)
	return order, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error) {
	if userID == "" {
		return nil, errors.New("userId is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListOrdersByUser(ctx, userID, limit, offset)
}

// SetStatus переводит заказ по жизненному циклу. Допустимы только переходы
// вперёд по рангу; cancelled достижим из любого нетерминального статуса.
// Курьер обязателен при переходе в completed и игнорируется в остальных.
func (s *Service) SetStatus(ctx context.Context, orderID string, status models.OrderStatus, courier *models.DeliveryPerson) (*models.Order, error) {
	if !status.IsValid() {
		return nil, errors.Errorf("unknown status %q", status)
	}

	current, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrOrderNotFound
	}
	if current.Status.Terminal() {
		return nil, errors.Wrapf(ErrInvalidTransition, "order %s is already %s", orderID, current.Status)
	}
	if status == models.OrderStatusCancelled {
		// из любого нетерминального
	} else if status.Rank() <= current.Status.Rank() {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", current.Status, status)
	}

	if status == models.OrderStatusCompleted {
		if courier == nil {
			return nil, errors.New("courier is required for completed status")
		}
		if err := s.validate.Struct(courier); err != nil {
			return nil, errors.Wrap(err, "validate courier")
		}
	} else {
		courier = nil
	}

	now := s.now()
	updated, err := s.repo.UpdateOrderStatus(ctx, orderID, status, courier, now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrOrderNotFound
	}

	s.cacheOrder(ctx, updated)
	s.publish(ctx, updated.ID, messages.OrderUpdated{
		OrderID:   updated.ID,
		Status:    updated.Status.String(),
		Reason:    messages.OrderReasonStatus,
		UpdatedAt: now,
	})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("orderId is required")
	}
	if err := s.repo.DeleteOrder(ctx, orderID); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Clear(ctx, currentKey(orderID))
	}
	s.publish(ctx, orderID, messages.OrderUpdated{
		OrderID:   orderID,
		Reason:    messages.OrderReasonDeleted,
		UpdatedAt: s.now(),
	})
	return nil
}

// Subscribe подписывает fn на snapshot'ы заказа. Первый snapshot приходит
// первым в очереди подписчика: nil, если заказа нет. Возвращённая функция
// снимает подписку и безопасна для повторного вызова.
func (s *Service) Subscribe(ctx context.Context, orderID string, fn func(*models.Order)) (func(), error) {
	// Читаем до регистрации: начальный снапшот сеется в очередь атомарно
	// с подпиской, чтобы более свежий ApplyUpdate не обогнал его.
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.hub.SubscribeSeed(orderID, order, fn), nil
}

// ApplyUpdate вызывается consumer'ом: перечитывает документ и раздаёт его
// подписчикам. Отсутствие документа транслируется как nil snapshot.
func (s *Service) ApplyUpdate(ctx context.Context, msg messages.OrderUpdated) error {
	if msg.OrderID == "" {
		return errors.New("order_id is required")
	}

	order, err := s.repo.GetOrder(ctx, msg.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		if s.cache != nil {
			_ = s.cache.Clear(ctx, currentKey(msg.OrderID))
		}
		s.hub.Publish(msg.OrderID, nil)
		return nil
	}

	s.cacheOrder(ctx, order)
	s.hub.Publish(msg.OrderID, order)
	return nil
}

func (s *Service) Subscribers(orderID string) int {
	return s.hub.Subscribers(orderID)
}

func (s *Service) cacheOrder(ctx context.Context, order *models.Order) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	b, err := json.Marshal(order)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, currentKey(order.ID), b, s.currentTTL)
}

func (s *Service) publish(ctx context.Context, orderID string, msg messages.OrderUpdated) {
	if s.producer == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	// Публикация best effort: документ уже записан, подписчики на этом
	// инстансе получат snapshot через ApplyUpdate при следующем событии.
	if err := s.producer.Publish(ctx, s.topic, []byte(orderID), b); err != nil {
		s.log.Error("publish order update", "order_id", orderID, "err", err)
	}
}

func currentKey(orderID string) string {
	return fmt.Sprintf("order:%s:current", orderID)
}
