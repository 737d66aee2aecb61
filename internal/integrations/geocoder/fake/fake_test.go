package fake

import (
	"context"
	"testing"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_Deterministic(t *testing.T) {
	c := New(models.Coordinate{Lat: -26.2041, Lng: 28.0473})

	a, err := c.Resolve(context.Background(), "44 Stanley Ave")
	require.NoError(t, err)
	b, err := c.Resolve(context.Background(), "44 Stanley Ave")
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := c.Resolve(context.Background(), "1 Fox St")
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestFakeClient_NearCenter(t *testing.T) {
	center := models.Coordinate{Lat: -26.2041, Lng: 28.0473}
	c := New(center)

	got, err := c.Resolve(context.Background(), "some address")
	require.NoError(t, err)
	require.InDelta(t, center.Lat, got.Lat, 0.06)
	require.InDelta(t, center.Lng, got.Lng, 0.06)
}
