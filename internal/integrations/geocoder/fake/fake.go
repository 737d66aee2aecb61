package fake

import (
	"context"
	"hash/fnv"

	"github.com/BeanBarn/BrewTrack/internal/models"
)

// FakeClient — детерминированный геокодер для демо и тестов: координата
// выводится из FNV-хэша адреса, с разбросом вокруг заданного центра.
type FakeClient struct {
	center models.Coordinate
}

func New(center models.Coordinate) *FakeClient {
	return &FakeClient{center: center}
}

func (f *FakeClient) Resolve(ctx context.Context, address string) (models.Coordinate, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(address))
	v := h.Sum32()

	// Разброс до ~0.05 градуса (около 5 км) в каждой оси.
	dLat := (float64(v%1000)/1000 - 0.5) * 0.1
	dLng := (float64((v/1000)%1000)/1000 - 0.5) * 0.1

	return models.Coordinate{
		Lat: f.center.Lat + dLat,
		Lng: f.center.Lng + dLng,
	}, nil
}
