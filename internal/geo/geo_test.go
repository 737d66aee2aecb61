package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHaversineKm_Zero(t *testing.T) {
	require.Zero(t, HaversineKm(-26.1467, 28.0436, -26.1467, 28.0436))
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Sandton -> Wendywood, примерно 1.7 км.
	d := HaversineKm(-26.1467, 28.0436, -26.1517, 28.0580)
	require.InDelta(t, 1.55, d, 0.2)
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := HaversineKm(55.75, 37.61, 59.93, 30.33)
	b := HaversineKm(59.93, 30.33, 55.75, 37.61)
	require.InDelta(t, a, b, 1e-9)
	// Москва - Питер, ~630 км
	require.InDelta(t, 630, a, 10)
}

func TestBounds_ExtendAndCenter(t *testing.T) {
	b := NewBounds(1, 10).Extend(3, 14).Extend(2, 12)
	require.Equal(t, 1.0, b.MinLat)
	require.Equal(t, 3.0, b.MaxLat)
	require.Equal(t, 10.0, b.MinLng)
	require.Equal(t, 14.0, b.MaxLng)

	lat, lng := b.Center()
	require.Equal(t, 2.0, lat)
	require.Equal(t, 12.0, lng)
}
