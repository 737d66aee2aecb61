package maps

import (
	"testing"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDirectiveWidget_EmitsRenderSequence(t *testing.T) {
	var ops []string
	w := NewDirectiveWidget(func(d Directive) { ops = append(ops, d.Op) })
	r := newRendererWithAfter(w, RendererConfig{}, noTimer)

	r.WidgetReady()
	require.Equal(t, []string{
		"clear_markers",
		"clear_route",
		"add_marker",
		"set_center",
	}, ops)

	ops = nil
	r.Apply(testRecord())

	require.Equal(t, []string{
		"clear_markers",
		"add_marker",
		"add_marker",
		"clear_route",
		"draw_route",
		"fit_bounds",
		"set_eta",
	}, ops)
}

func TestDirectiveWidget_MarkerPayload(t *testing.T) {
	var last Directive
	w := NewDirectiveWidget(func(d Directive) { last = d })

	w.AddMarker(Marker{ID: "driver", Kind: MarkerDriver, Lat: 1, Lng: 2})
	require.Equal(t, "add_marker", last.Op)
	require.NotNil(t, last.Marker)
	require.Equal(t, MarkerDriver, last.Marker.Kind)

	w.SetCenter(models.Coordinate{Lat: 3, Lng: 4}, 14)
	require.Equal(t, "set_center", last.Op)
	require.Equal(t, 14, last.Zoom)
}
