// Package httpapi — REST-слой поверх сервисов заказов и трекинга.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/api/middleware"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/BeanBarn/BrewTrack/internal/services/orders"
	"github.com/BeanBarn/BrewTrack/internal/services/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator"
	"github.com/pkg/errors"
)

type OrderService interface {
	Create(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error)
	SetStatus(ctx context.Context, orderID string, status models.OrderStatus, courier *models.DeliveryPerson) (*models.Order, error)
	Delete(ctx context.Context, orderID string) error
}

type TrackingService interface {
	Start(ctx context.Context, in tracking.StartInput) (*models.TrackingRecord, error)
	UpdateDriverLocation(ctx context.Context, orderID string, loc models.DriverLocation) (*models.TrackingRecord, error)
	Stop(ctx context.Context, orderID string) (*models.TrackingRecord, error)
	Get(ctx context.Context, orderID string) (*models.TrackingRecord, error)
	ListPings(ctx context.Context, orderID string, limit, offset int) ([]*models.LocationPing, error)
}

type API struct {
	orders    OrderService
	trackings TrackingService
}

func New(orderSvc OrderService, trackingSvc TrackingService) *API {
	return &API{orders: orderSvc, trackings: trackingSvc}
}

// Routes вешает эндпоинты на роутер. Auth уже должен стоять выше.
func (a *API) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", a.createOrder)
		r.Get("/", a.listOrders)
		r.Get("/{orderID}", a.getOrder)
		r.With(middleware.RequireRole(middleware.RoleBarista)).
			Patch("/{orderID}/status", a.setOrderStatus)
		r.With(middleware.RequireRole(middleware.RoleBarista)).
			Delete("/{orderID}", a.deleteOrder)
	})

	r.Route("/tracking/{orderID}", func(r chi.Router) {
		r.Get("/", a.getTracking)
		r.Get("/pings", a.listPings)
		r.With(middleware.RequireRole(middleware.RoleCourier)).
			Post("/start", a.startTracking)
		r.With(middleware.RequireRole(middleware.RoleCourier)).
			Post("/location", a.pushLocation)
		r.With(middleware.RequireRole(middleware.RoleCourier)).
			Post("/stop", a.stopTracking)
	})
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var in models.OrderCreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		in.UserID = id.UserID
	}

	order, err := a.orders.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing identity"))
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	out, err := a.orders.ListByUser(r.Context(), id.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if out == nil {
		out = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type setStatusRequest struct {
	Status  models.OrderStatus     `json:"status"`
	Courier *models.DeliveryPerson `json:"courier,omitempty"`
}

func (a *API) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := a.orders.SetStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status, req.Courier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.orders.Delete(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startTrackingRequest struct {
	CustomerAddress string             `json:"customerAddress"`
	CustomerCoord   *models.Coordinate `json:"customerCoord,omitempty"`
}

func (a *API) startTracking(w http.ResponseWriter, r *http.Request) {
	var req startTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())

	rec, err := a.trackings.Start(r.Context(), tracking.StartInput{
		OrderID:         chi.URLParam(r, "orderID"),
		CourierID:       id.UserID,
		CustomerAddress: req.CustomerAddress,
		CustomerCoord:   req.CustomerCoord,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type pushLocationRequest struct {
	Lat      float64    `json:"lat"`
	Lng      float64    `json:"lng"`
	Heading  *float64   `json:"heading,omitempty"`
	SpeedKmh *float64   `json:"speedKmh,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

func (a *API) pushLocation(w http.ResponseWriter, r *http.Request) {
	var req pushLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	loc := models.DriverLocation{
		Lat:      req.Lat,
		Lng:      req.Lng,
		Heading:  req.Heading,
		SpeedKmh: req.SpeedKmh,
	}
	if req.At != nil {
		loc.At = *req.At
	}

	rec, err := a.trackings.UpdateDriverLocation(r.Context(), chi.URLParam(r, "orderID"), loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) stopTracking(w http.ResponseWriter, r *http.Request) {
	rec, err := a.trackings.Stop(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) getTracking(w http.ResponseWriter, r *http.Request) {
	rec, err := a.trackings.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Сервис отдаёт nil без ошибки; на HTTP-краю это 404.
	if rec == nil {
		writeError(w, http.StatusNotFound, tracking.ErrTrackingNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) listPings(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 200)
	offset := queryInt(r, "offset", 0)

	pings, err := a.trackings.ListPings(r.Context(), chi.URLParam(r, "orderID"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if pings == nil {
		pings = []*models.LocationPing{}
	}
	writeJSON(w, http.StatusOK, pings)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, tracking.ErrTrackingNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, tracking.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err)
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err)
	default:
		slog.Error("request failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

// isValidationError: ошибки валидации входа отдаём клиенту как 400.
func isValidationError(err error) bool {
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		return true
	}
	return strings.Contains(err.Error(), "is required") ||
		strings.Contains(err.Error(), "out of range") ||
		strings.Contains(err.Error(), "unknown status")
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
