// Package maps рисует живую карту доставки поверх абстрактного виджета.
// Рендерер держит view-model на сервере; конкретный Widget решает, куда
// уходят команды (в тестах — в память, в проде — директивами по websocket).
package maps

import (
	"github.com/BeanBarn/BrewTrack/internal/geo"
	"github.com/BeanBarn/BrewTrack/internal/models"
)

type MarkerKind string

const (
	MarkerShop     MarkerKind = "shop"
	MarkerDriver   MarkerKind = "driver"
	MarkerCustomer MarkerKind = "customer"
)

type Marker struct {
	ID      string     `json:"id"`
	Kind    MarkerKind `json:"kind"`
	Lat     float64    `json:"lat"`
	Lng     float64    `json:"lng"`
	Heading *float64   `json:"heading,omitempty"`
	Label   string     `json:"label,omitempty"`
}

// Widget — порт карты. Все вызовы идут из одной горутины рендерера,
// реализациям синхронизация не нужна.
type Widget interface {
	ClearMarkers()
	AddMarker(m Marker)
	DrawRoute(points []models.Coordinate)
	ClearRoute()
	FitBounds(b geo.Bounds, paddingPct float64, maxZoom int)
	SetCenter(c models.Coordinate, zoom int)
	SetETA(minutes int)
	ShowMessage(text string)
}

// State — явное состояние рендерера. До готовности виджета снапшоты
// откладываются; после готовности состояние определяется последним
// снапшотом: есть активный трекинг или нет.
type State string

const (
	StateUninitialized    State = "uninitialized"
	StateNoActiveTracking State = "no_active_tracking"
	StateActiveTracking   State = "active_tracking"
	StateFailed           State = "failed"
	StateClosed           State = "closed"
)
