package geocoder

import (
	"context"
	"log/slog"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/pkg/errors"
)

// ErrNoResults — адрес не нашёлся (в отличие от транспортной ошибки).
var ErrNoResults = errors.New("geocoder: no results")

type Client interface {
	Resolve(ctx context.Context, address string) (models.Coordinate, error)
}

// Fallback оборачивает клиент контрактом "никогда не падает": любая ошибка
// подменяется фиксированной координатой центра города. Кэширования нет —
// один внешний запрос на вызов (известное ограничение, не контракт).
type Fallback struct {
	inner    Client
	fallback models.Coordinate
}

func NewFallback(inner Client, fallback models.Coordinate) *Fallback {
	return &Fallback{inner: inner, fallback: fallback}
}

func (f *Fallback) Resolve(ctx context.Context, address string) (models.Coordinate, error) {
	c, err := f.inner.Resolve(ctx, address)
	if err == nil {
		return c, nil
	}
	// "Адрес не найден" и "сервис лежит" деградируют одинаково, но в логах
	// различимы: плохие адреса не должны тонуть в транспортных ошибках.
	if errors.Is(err, ErrNoResults) {
		slog.Warn("geocoder: address not found, using fallback", "address", address)
	} else {
		slog.Error("geocoder lookup failed, using fallback", "error", err.Error())
	}
	return f.fallback, nil
}
