// Package ws — websocket-слой живого отслеживания. Один хендлер на поток
// снапшотов заказа, второй на полную страницу трекинга: заказ, карта
// директивами и навигация.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/api/middleware"
	"github.com/BeanBarn/BrewTrack/internal/maps"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/BeanBarn/BrewTrack/internal/services/trackview"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Frame — кадр, уходящий клиенту.
type Frame struct {
	Type string `json:"type"` // order | map | navigate | error

	Order     *models.Order   `json:"order,omitempty"`
	Directive *maps.Directive `json:"directive,omitempty"`
	To        string          `json:"to,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// clientFrame — кадр от клиента.
type clientFrame struct {
	Type   string `json:"type"` // widget_ready | widget_failed
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	orders    trackview.OrderStream
	trackings trackview.TrackingStream

	mapCfg   maps.RendererConfig
	navDelay time.Duration

	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(orders trackview.OrderStream, trackings trackview.TrackingStream, mapCfg maps.RendererConfig, navDelay time.Duration, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		orders:    orders,
		trackings: trackings,
		mapCfg:    mapCfg,
		navDelay:  navDelay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws/orders/{orderID}", h.orderStream)
	r.Get("/ws/tracking/{orderID}", h.trackingPage)
}

// egress сериализует запись в соединение: gorilla разрешает одного
// писателя, все кадры идут через канал.
type egress struct {
	conn *websocket.Conn
	ch   chan []byte

	once sync.Once
	done chan struct{}
}

func newEgress(conn *websocket.Conn) *egress {
	return &egress{
		conn: conn,
		ch:   make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func (e *egress) run() {
	for {
		select {
		case <-e.done:
			return
		case b := <-e.ch:
			if err := e.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				e.close()
				return
			}
		}
	}
}

func (e *egress) send(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case e.ch <- b:
	case <-e.done:
	default:
		// Клиент не вычитывает: лучше оборвать, чем копить бесконечно.
		e.close()
	}
}

func (e *egress) close() {
	e.once.Do(func() {
		close(e.done)
		_ = e.conn.Close()
	})
}

// orderStream шлёт клиенту снапшоты одного заказа до закрытия соединения.
func (h *Handler) orderStream(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	eg := newEgress(conn)
	go eg.run()
	defer eg.close()

	unsubscribe, err := h.orders.Subscribe(r.Context(), orderID, func(o *models.Order) {
		eg.send(Frame{Type: "order", Order: o})
	})
	if err != nil {
		h.log.Error("subscribe order stream", "order_id", orderID, "err", err)
		eg.send(Frame{Type: "error", Message: "subscription failed"})
		return
	}
	defer unsubscribe()

	// Читаем только ради detection'а закрытия.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// trackingPage собирает страницу отслеживания: контроллер подписок,
// карта-рендерер и директивы в одно соединение.
func (h *Handler) trackingPage(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	eg := newEgress(conn)
	go eg.run()
	defer eg.close()

	widget := maps.NewDirectiveWidget(func(d maps.Directive) {
		eg.send(Frame{Type: "map", Directive: &d})
	})
	renderer := maps.NewRenderer(widget, h.mapCfg)

	identity, _ := middleware.IdentityFrom(r.Context())
	nav := &frameNavigator{eg: eg, to: roleListing(identity.Role)}
	// Снапшоты заказа уходят и контроллеру, и клиенту кадром "order".
	orderTee := &teeOrderStream{inner: h.orders, eg: eg}
	ctrl := trackview.New(orderID, orderTee, h.trackings, nav, renderer, h.navDelay)
	defer ctrl.Close()

	if err := ctrl.Start(context.Background()); err != nil {
		h.log.Error("start tracking page", "order_id", orderID, "err", err)
		eg.send(Frame{Type: "error", Message: "subscription failed"})
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Type {
		case "widget_ready":
			renderer.WidgetReady()
		case "widget_failed":
			reason := f.Reason
			if reason == "" {
				reason = "map widget failed"
			}
			renderer.WidgetFailed(reason)
		}
	}
}

// frameNavigator переводит навигацию в кадр для клиента. Назначение
// выбирается по роли при открытии страницы.
type frameNavigator struct {
	eg *egress
	to string
}

func (n *frameNavigator) NavigateToRoleListing() {
	n.eg.send(Frame{Type: "navigate", To: n.to})
}

// roleListing: персонал возвращается в рабочую очередь заказов,
// клиент — в список своих заказов.
func roleListing(role string) string {
	switch role {
	case middleware.RoleBarista, middleware.RoleCourier:
		return "staff-orders"
	default:
		return "my-orders"
	}
}

// teeOrderStream дублирует каждый снапшот заказа в egress.
type teeOrderStream struct {
	inner trackview.OrderStream
	eg    *egress
}

func (t *teeOrderStream) Subscribe(ctx context.Context, orderID string, fn func(*models.Order)) (func(), error) {
	return t.inner.Subscribe(ctx, orderID, func(o *models.Order) {
		t.eg.send(Frame{Type: "order", Order: o})
		fn(o)
	})
}
