package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm — расстояние по дуге большого круга между двумя точками.
func HaversineKm(aLat, aLng, bLat, bLng float64) float64 {
	dLat := rad(bLat - aLat)
	dLng := rad(bLng - aLng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(aLat))*math.Cos(rad(bLat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Bounds — прямоугольник, охватывающий набор точек.
type Bounds struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

func NewBounds(lat, lng float64) Bounds {
	return Bounds{MinLat: lat, MinLng: lng, MaxLat: lat, MaxLng: lng}
}

func (b Bounds) Extend(lat, lng float64) Bounds {
	if lat < b.MinLat {
		b.MinLat = lat
	}
	if lat > b.MaxLat {
		b.MaxLat = lat
	}
	if lng < b.MinLng {
		b.MinLng = lng
	}
	if lng > b.MaxLng {
		b.MaxLng = lng
	}
	return b
}

func (b Bounds) Center() (lat, lng float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLng + b.MaxLng) / 2
}
