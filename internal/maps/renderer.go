package maps

import (
	"math"
	"sync"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/geo"
	"github.com/BeanBarn/BrewTrack/internal/models"
)

type RendererConfig struct {
	// Shop рисуется, когда активного трекинга нет.
	Shop models.Place

	// ETASpeedKmh — средняя скорость курьера для оценки прибытия.
	ETASpeedKmh float64 // default: 30
	// MinETAMinutes — нижняя граница оценки; меньше не обещаем.
	MinETAMinutes int // default: 5

	BoundsPaddingPct float64 // default: 15
	MaxZoom          int     // default: 16
	DefaultZoom      int     // default: 14

	// LoadTimeout: если виджет не отчитался о готовности за это время,
	// считаем его упавшим.
	LoadTimeout time.Duration // default: 10 seconds
}

func (c RendererConfig) withDefaults() RendererConfig {
	if c.ETASpeedKmh <= 0 {
		c.ETASpeedKmh = 30
	}
	if c.MinETAMinutes <= 0 {
		c.MinETAMinutes = 5
	}
	if c.BoundsPaddingPct <= 0 {
		c.BoundsPaddingPct = 15
	}
	if c.MaxZoom <= 0 {
		c.MaxZoom = 16
	}
	if c.DefaultZoom <= 0 {
		c.DefaultZoom = 14
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 10 * time.Second
	}
	return c
}

// Renderer превращает снапшоты трекинга в команды виджету.
//
// До готовности виджета снапшоты не теряются: последний откладывается и
// рисуется сразу после WidgetReady. Ready и Failed срабатывают не больше
// одного раза; опоздавший таймер или повторный callback — no-op.
type Renderer struct {
	mu sync.Mutex

	widget Widget
	cfg    RendererConfig

	state      State
	readyFired bool
	failFired  bool

	pending    *models.TrackingRecord
	hasPending bool

	loadTimer *time.Timer

	// after подменяется в тестах.
	after func(d time.Duration, fn func()) *time.Timer
}

func NewRenderer(w Widget, cfg RendererConfig) *Renderer {
	return newRendererWithAfter(w, cfg, time.AfterFunc)
}

func newRendererWithAfter(w Widget, cfg RendererConfig, after func(time.Duration, func()) *time.Timer) *Renderer {
	r := &Renderer{
		widget: w,
		cfg:    cfg.withDefaults(),
		state:  StateUninitialized,
		after:  after,
	}
	r.loadTimer = r.after(r.cfg.LoadTimeout, r.loadTimedOut)
	return r
}

func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// WidgetReady вызывается, когда виджет загрузился. Повторные вызовы и
// вызовы после Failed/Close игнорируются.
func (r *Renderer) WidgetReady() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.readyFired || r.state != StateUninitialized {
		return
	}
	r.readyFired = true
	r.stopLoadTimer()

	// Рисуем отложенный снапшот; без него стартуем в режиме "трекинга нет".
	rec := r.pending
	r.pending = nil
	r.hasPending = false
	r.render(rec)
}

// WidgetFailed переводит рендерер в failed и показывает fallback-сообщение.
func (r *Renderer) WidgetFailed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail(reason)
}

func (r *Renderer) loadTimedOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Таймер мог сработать после Ready или Close.
	r.fail("map took too long to load")
}

func (r *Renderer) fail(reason string) {
	if r.failFired || r.state != StateUninitialized {
		return
	}
	r.failFired = true
	r.state = StateFailed
	r.stopLoadTimer()
	r.widget.ShowMessage(reason)
}

// Apply принимает снапшот трекинга. nil означает "активного трекинга нет":
// рисуется только кофейня.
func (r *Renderer) Apply(rec *models.TrackingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateUninitialized:
		// Откладываем последний снапшот до готовности виджета.
		r.pending = rec
		r.hasPending = true
		return
	case StateNoActiveTracking, StateActiveTracking:
		r.render(rec)
	default:
		// failed / closed
	}
}

func (r *Renderer) render(rec *models.TrackingRecord) {
	r.widget.ClearMarkers()

	// Неактивная запись рисуется как отсутствие трекинга.
	if rec != nil && !rec.IsActive {
		rec = nil
	}

	if rec == nil {
		r.state = StateNoActiveTracking
		r.widget.ClearRoute()
		r.widget.AddMarker(Marker{
			ID:   "shop",
			Kind: MarkerShop,
			Lat:  r.cfg.Shop.Lat,
			Lng:  r.cfg.Shop.Lng,
		})
		r.widget.SetCenter(r.cfg.Shop.Coordinate(), r.cfg.DefaultZoom)
		return
	}

	r.state = StateActiveTracking
	driver := models.Coordinate{Lat: rec.Driver.Lat, Lng: rec.Driver.Lng}
	customer := rec.Customer.Coordinate()

	r.widget.AddMarker(Marker{
		ID:      "driver",
		Kind:    MarkerDriver,
		Lat:     driver.Lat,
		Lng:     driver.Lng,
		Heading: rec.Driver.Heading,
	})
	r.widget.AddMarker(Marker{
		ID:   "customer",
		Kind: MarkerCustomer,
		Lat:  customer.Lat,
		Lng:  customer.Lng,
	})
	// Старый маршрут снимается перед отрисовкой нового, иначе слои копятся.
	r.widget.ClearRoute()
	r.widget.DrawRoute([]models.Coordinate{driver, customer})

	b := geo.NewBounds(driver.Lat, driver.Lng)
	b = b.Extend(customer.Lat, customer.Lng)
	r.widget.FitBounds(b, r.cfg.BoundsPaddingPct, r.cfg.MaxZoom)

	dist := geo.HaversineKm(driver.Lat, driver.Lng, customer.Lat, customer.Lng)
	r.widget.SetETA(r.ETAMinutes(dist))
}

// ETAMinutes оценивает время прибытия по прямой. Оценка не опускается
// ниже MinETAMinutes.
func (r *Renderer) ETAMinutes(distanceKm float64) int {
	eta := int(math.Round(distanceKm / r.cfg.ETASpeedKmh * 60))
	if eta < r.cfg.MinETAMinutes {
		return r.cfg.MinETAMinutes
	}
	return eta
}

// Close останавливает рендерер. Идемпотентен; все последующие callback'и
// и снапшоты игнорируются.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.state = StateClosed
	r.stopLoadTimer()
	r.pending = nil
	r.hasPending = false
}

func (r *Renderer) stopLoadTimer() {
	if r.loadTimer != nil {
		r.loadTimer.Stop()
		r.loadTimer = nil
	}
}
