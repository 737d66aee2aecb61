package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/api/middleware"
	"github.com/BeanBarn/BrewTrack/internal/maps"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeOrderStream struct {
	mu      sync.Mutex
	initial *models.Order
	fn      func(*models.Order)
}

func (f *fakeOrderStream) Subscribe(ctx context.Context, orderID string, fn func(*models.Order)) (func(), error) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	fn(f.initial)
	return func() {}, nil
}

func (f *fakeOrderStream) push(o *models.Order) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(o)
	}
}

type fakeTrackingStream struct {
	mu      sync.Mutex
	initial *models.TrackingRecord
	fn      func(*models.TrackingRecord)
}

func (f *fakeTrackingStream) Subscribe(ctx context.Context, orderID string, fn func(*models.TrackingRecord)) (func(), error) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	fn(f.initial)
	return func() {}, nil
}

func newTestServer(orders *fakeOrderStream, trackings *fakeTrackingStream) *httptest.Server {
	return newTestServerAs(orders, trackings, middleware.RoleCustomer)
}

func newTestServerAs(orders *fakeOrderStream, trackings *fakeTrackingStream, role string) *httptest.Server {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithIdentity(req.Context(), middleware.Identity{UserID: "u1", Role: role})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	cfg := maps.RendererConfig{Shop: models.Place{Lat: -26.1467, Lng: 28.0436}}
	h := NewHandler(orders, trackings, cfg, 50*time.Millisecond, slog.Default())
	h.Routes(r)
	return httptest.NewServer(r)
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestWS_OrderStream_InitialAndUpdates(t *testing.T) {
	orders := &fakeOrderStream{initial: &models.Order{ID: "o1", Status: models.OrderStatusPending}}
	srv := newTestServer(orders, &fakeTrackingStream{})
	defer srv.Close()

	conn := dial(t, srv, "/ws/orders/o1")
	defer conn.Close()

	f := readFrame(t, conn)
	require.Equal(t, "order", f.Type)
	require.Equal(t, models.OrderStatusPending, f.Order.Status)

	orders.push(&models.Order{ID: "o1", Status: models.OrderStatusReady})
	f = readFrame(t, conn)
	require.Equal(t, models.OrderStatusReady, f.Order.Status)
}

func TestWS_TrackingPage_MapDirectivesAfterReady(t *testing.T) {
	order := &models.Order{
		ID:      "o1",
		Status:  models.OrderStatusCompleted,
		Courier: &models.DeliveryPerson{Name: "Sipho", Phone: "+27", VehicleID: "CA"},
	}
	rec := &models.TrackingRecord{
		OrderID:  "o1",
		IsActive: true,
		Driver:   models.DriverLocation{Lat: -26.1467, Lng: 28.0436},
		Customer: models.Place{Lat: -26.1517, Lng: 28.0580},
	}
	orders := &fakeOrderStream{initial: order}
	trackings := &fakeTrackingStream{initial: rec}
	srv := newTestServer(orders, trackings)
	defer srv.Close()

	conn := dial(t, srv, "/ws/tracking/o1")
	defer conn.Close()

	// первый кадр: снапшот заказа
	f := readFrame(t, conn)
	require.Equal(t, "order", f.Type)

	// до готовности виджета директив нет; объявляем готовность
	require.NoError(t, conn.WriteJSON(clientFrame{Type: "widget_ready"}))

	// отложенный снапшот трекинга рисуется директивами
	ops := map[string]int{}
	for i := 0; i < 7; i++ {
		f = readFrame(t, conn)
		require.Equal(t, "map", f.Type)
		ops[f.Directive.Op]++
	}
	require.Equal(t, 1, ops["clear_markers"])
	require.Equal(t, 2, ops["add_marker"])
	require.Equal(t, 1, ops["clear_route"])
	require.Equal(t, 1, ops["draw_route"])
	require.Equal(t, 1, ops["fit_bounds"])
	require.Equal(t, 1, ops["set_eta"])
}

func TestWS_TrackingPage_DeliveredNavigatesByRole(t *testing.T) {
	cases := []struct {
		role string
		to   string
	}{
		{middleware.RoleCustomer, "my-orders"},
		{middleware.RoleBarista, "staff-orders"},
		{middleware.RoleCourier, "staff-orders"},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			orders := &fakeOrderStream{initial: &models.Order{ID: "o1", Status: models.OrderStatusReady}}
			srv := newTestServerAs(orders, &fakeTrackingStream{}, tc.role)
			defer srv.Close()

			conn := dial(t, srv, "/ws/tracking/o1")
			defer conn.Close()

			f := readFrame(t, conn)
			require.Equal(t, "order", f.Type)

			require.NoError(t, conn.WriteJSON(clientFrame{Type: "widget_ready"}))

			orders.push(&models.Order{ID: "o1", Status: models.OrderStatusDelivered})

			// поступают: order-кадр, map-кадры режима "без трекинга", navigate
			var sawNavigate bool
			deadline := time.After(3 * time.Second)
			for !sawNavigate {
				select {
				case <-deadline:
					t.Fatal("no navigate frame")
				default:
				}
				f = readFrame(t, conn)
				if f.Type == "navigate" {
					require.Equal(t, tc.to, f.To)
					sawNavigate = true
				}
			}
		})
	}
}

func TestWS_TrackingPage_MissingOrderRedirects(t *testing.T) {
	orders := &fakeOrderStream{initial: nil}
	srv := newTestServer(orders, &fakeTrackingStream{})
	defer srv.Close()

	conn := dial(t, srv, "/ws/tracking/gone")
	defer conn.Close()

	// order(nil) кадр, затем немедленный navigate
	var sawNavigate bool
	for i := 0; i < 3 && !sawNavigate; i++ {
		f := readFrame(t, conn)
		if f.Type == "navigate" {
			sawNavigate = true
		}
	}
	require.True(t, sawNavigate)
}

func TestWS_TrackingPage_WidgetFailedShowsMessage(t *testing.T) {
	orders := &fakeOrderStream{initial: &models.Order{ID: "o1", Status: models.OrderStatusReady}}
	srv := newTestServer(orders, &fakeTrackingStream{})
	defer srv.Close()

	conn := dial(t, srv, "/ws/tracking/o1")
	defer conn.Close()

	f := readFrame(t, conn)
	require.Equal(t, "order", f.Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "widget_failed", Reason: "script blocked"}))

	f = readFrame(t, conn)
	require.Equal(t, "map", f.Type)
	require.Equal(t, "show_message", f.Directive.Op)
	require.Equal(t, "script blocked", f.Directive.Message)
}
