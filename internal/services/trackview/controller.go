// Package trackview связывает страницу отслеживания заказа: подписка на
// заказ, подписка на трекинг доставки, карта и навигация.
//
// Один Controller живёт столько же, сколько websocket-соединение клиента.
package trackview

import (
	"context"
	"sync"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/models"
)

type OrderStream interface {
	Subscribe(ctx context.Context, orderID string, fn func(*models.Order)) (func(), error)
}

type TrackingStream interface {
	Subscribe(ctx context.Context, orderID string, fn func(*models.TrackingRecord)) (func(), error)
}

// Navigator уводит клиента со страницы отслеживания.
type Navigator interface {
	NavigateToRoleListing()
}

// MapView — карта доставки. Реализация должна быть потокобезопасной и
// терпеть вызовы после Close (maps.Renderer обоим требованиям отвечает).
type MapView interface {
	Apply(rec *models.TrackingRecord)
	Close()
}

type Controller struct {
	orderID string

	orders    OrderStream
	trackings TrackingStream
	navigator Navigator
	view      MapView

	navDelay time.Duration
	after    func(d time.Duration, fn func()) *time.Timer

	mu            sync.Mutex
	prevStatus    models.OrderStatus
	hasPrev       bool
	navFired      bool
	redirectFired bool
	closed        bool

	orderUnsub    func()
	trackingUnsub func()
	navTimer      *time.Timer
}

func New(orderID string, orders OrderStream, trackings TrackingStream, navigator Navigator, view MapView, navDelay time.Duration) *Controller {
	if navDelay <= 0 {
		navDelay = 3 * time.Second
	}
	return &Controller{
		orderID:   orderID,
		orders:    orders,
		trackings: trackings,
		navigator: navigator,
		view:      view,
		navDelay:  navDelay,
		after:     time.AfterFunc,
	}
}

// Start подписывается на снапшоты заказа. Первый снапшот гарантированно
// приходит раньше любых последующих обновлений.
func (c *Controller) Start(ctx context.Context) error {
	unsub, err := c.orders.Subscribe(ctx, c.orderID, func(o *models.Order) {
		c.onOrder(ctx, o)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.orderUnsub = unsub
	c.mu.Unlock()
	return nil
}

func (c *Controller) onOrder(ctx context.Context, order *models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	// Заказ удалён или не существует: сразу уводим на список заказов роли.
	if order == nil {
		if !c.redirectFired {
			c.redirectFired = true
			c.stopTrackingLocked()
			c.navigator.NavigateToRoleListing()
		}
		return
	}

	prev, hasPrev := c.prevStatus, c.hasPrev
	c.prevStatus, c.hasPrev = order.Status, true

	switch order.Status {
	case models.OrderStatusDelivered:
		// Навигация срабатывает ровно один раз, на фронте перехода
		// в delivered. Повторные delivered-снапшоты её не перезапускают.
		if c.navFired {
			return
		}
		if hasPrev && prev == models.OrderStatusDelivered {
			return
		}
		c.navFired = true
		c.stopTrackingLocked()
		c.view.Apply(nil)
		c.navTimer = c.after(c.navDelay, c.navigateLate)

	case models.OrderStatusCancelled:
		// Отменённый заказ остаётся на экране, трекинг гаснет.
		c.stopTrackingLocked()
		c.view.Apply(nil)

	case models.OrderStatusCompleted:
		if order.Courier != nil && c.trackingUnsub == nil {
			c.subscribeTrackingLocked(ctx)
		}
	}
}

// subscribeTrackingLocked вызывается под c.mu. Callback трекинга в c.mu
// не заходит: view сам потокобезопасен и после Close игнорирует вызовы.
func (c *Controller) subscribeTrackingLocked(ctx context.Context) {
	unsub, err := c.trackings.Subscribe(ctx, c.orderID, func(rec *models.TrackingRecord) {
		c.view.Apply(rec)
	})
	if err != nil {
		// Живой трекинг не критичен для страницы, заказ показываем и так.
		return
	}
	c.trackingUnsub = unsub
}

func (c *Controller) navigateLate() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.navigator.NavigateToRoleListing()
}

func (c *Controller) stopTrackingLocked() {
	if c.trackingUnsub != nil {
		c.trackingUnsub()
		c.trackingUnsub = nil
	}
}

// Close снимает все подписки и гасит карту. Идемпотентен; опоздавшие
// снапшоты и таймер навигации после Close — no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	orderUnsub := c.orderUnsub
	c.orderUnsub = nil
	trackingUnsub := c.trackingUnsub
	c.trackingUnsub = nil
	if c.navTimer != nil {
		c.navTimer.Stop()
		c.navTimer = nil
	}
	c.mu.Unlock()

	if orderUnsub != nil {
		orderUnsub()
	}
	if trackingUnsub != nil {
		trackingUnsub()
	}
	c.view.Close()
}
