package mocks

import (
	"context"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) UpsertRecord(ctx context.Context, rec *models.TrackingRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRepository) GetRecord(ctx context.Context, orderID string) (*models.TrackingRecord, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(*models.TrackingRecord), args.Error(1)
}

func (m *MockRepository) UpdateDriverLocation(ctx context.Context, orderID string, loc models.DriverLocation, nextSweepAt time.Time) (*models.TrackingRecord, error) {
	args := m.Called(ctx, orderID, loc, nextSweepAt)
	return args.Get(0).(*models.TrackingRecord), args.Error(1)
}

func (m *MockRepository) StopRecord(ctx context.Context, orderID string, at time.Time) (*models.TrackingRecord, error) {
	args := m.Called(ctx, orderID, at)
	return args.Get(0).(*models.TrackingRecord), args.Error(1)
}

func (m *MockRepository) InsertPing(ctx context.Context, p *models.LocationPing) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) ListPings(ctx context.Context, orderID string, limit, offset int) ([]*models.LocationPing, error) {
	args := m.Called(ctx, orderID, limit, offset)
	return args.Get(0).([]*models.LocationPing), args.Error(1)
}

type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Resolve(ctx context.Context, address string) (models.Coordinate, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(models.Coordinate), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Get(1).(int64), args.Error(2)
}
