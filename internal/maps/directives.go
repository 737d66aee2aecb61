package maps

import (
	"github.com/BeanBarn/BrewTrack/internal/geo"
	"github.com/BeanBarn/BrewTrack/internal/models"
)

// Directive — одна команда карте в сериализуемом виде. Поток директив
// уходит клиенту по websocket, тот применяет их к своей карте.
type Directive struct {
	Op string `json:"op"` // clear_markers | add_marker | draw_route | clear_route | fit_bounds | set_center | set_eta | show_message

	Marker  *Marker             `json:"marker,omitempty"`
	Route   []models.Coordinate `json:"route,omitempty"`
	Bounds  *geo.Bounds         `json:"bounds,omitempty"`
	Padding float64             `json:"padding,omitempty"`
	MaxZoom int                 `json:"maxZoom,omitempty"`
	Center  *models.Coordinate  `json:"center,omitempty"`
	Zoom    int                 `json:"zoom,omitempty"`
	ETA     int                 `json:"etaMinutes,omitempty"`
	Message string              `json:"message,omitempty"`
}

// DirectiveWidget складывает команды в callback. Websocket-слой передаёт
// callback, который пишет директиву в egress соединения.
type DirectiveWidget struct {
	emit func(Directive)
}

func NewDirectiveWidget(emit func(Directive)) *DirectiveWidget {
	return &DirectiveWidget{emit: emit}
}

func (w *DirectiveWidget) ClearMarkers() { w.emit(Directive{Op: "clear_markers"}) }

func (w *DirectiveWidget) AddMarker(m Marker) {
	w.emit(Directive{Op: "add_marker", Marker: &m})
}

func (w *DirectiveWidget) DrawRoute(points []models.Coordinate) {
	w.emit(Directive{Op: "draw_route", Route: points})
}

func (w *DirectiveWidget) ClearRoute() { w.emit(Directive{Op: "clear_route"}) }

func (w *DirectiveWidget) FitBounds(b geo.Bounds, paddingPct float64, maxZoom int) {
	w.emit(Directive{Op: "fit_bounds", Bounds: &b, Padding: paddingPct, MaxZoom: maxZoom})
}

func (w *DirectiveWidget) SetCenter(c models.Coordinate, zoom int) {
	w.emit(Directive{Op: "set_center", Center: &c, Zoom: zoom})
}

func (w *DirectiveWidget) SetETA(minutes int) {
	w.emit(Directive{Op: "set_eta", ETA: minutes})
}

func (w *DirectiveWidget) ShowMessage(text string) {
	w.emit(Directive{Op: "show_message", Message: text})
}
