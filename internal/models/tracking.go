package models

import "time"

type Coordinate struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Place — координата с человекочитаемым адресом (кофейня, клиент).
type Place struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

func (p Place) Coordinate() Coordinate { return Coordinate{Lat: p.Lat, Lng: p.Lng} }

type DriverLocation struct {
	Lat      float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lng      float64   `json:"lng" validate:"gte=-180,lte=180"`
	Heading  *float64  `json:"heading,omitempty"`
	SpeedKmh *float64  `json:"speedKmh,omitempty"`
	At       time.Time `json:"at"`
}

// TrackingRecord — запись live-трекинга, ключ = id заказа.
// IsActive=false или отсутствие записи означает "live-трекинга нет",
// это штатное состояние, не ошибка.
type TrackingRecord struct {
	OrderID   string
	CourierID string

	Driver   DriverLocation
	Shop     Place
	Customer Place

	IsActive  bool
	StartedAt time.Time
	StoppedAt *time.Time

	LastPingAt     time.Time
	NextSweepAt    time.Time
	SweepFailCount int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LocationPing — исторический пинг курьера; записи переживают stop,
// чтобы маршрут можно было перечитать задним числом.
type LocationPing struct {
	ID       uint64
	OrderID  string
	Lat      float64
	Lng      float64
	Heading  *float64
	SpeedKmh *float64
	PingAt   time.Time

	CreatedAt time.Time
}
