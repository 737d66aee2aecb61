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

func (m *MockRepository) InsertOrder(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockRepository) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockRepository) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, courier *models.DeliveryPerson, now time.Time) (*models.Order, error) {
	args := m.Called(ctx, orderID, status, courier, now)
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockRepository) DeleteOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}
