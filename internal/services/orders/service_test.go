package orders

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	inserted *models.Order
	getOut   *models.Order
	getErr   error

	updatedStatus models.OrderStatus
	updateOut     *models.Order
}

func (f *fakeRepo) InsertOrder(ctx context.Context, order *models.Order) error {
	f.inserted = order
	return nil
}
func (f *fakeRepo) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return f.getOut, f.getErr
}
func (f *fakeRepo) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error) {
	return nil, nil
}
func (f *fakeRepo) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, courier *models.DeliveryPerson, now time.Time) (*models.Order, error) {
	f.updatedStatus = status
	return f.updateOut, nil
}
func (f *fakeRepo) DeleteOrder(ctx context.Context, orderID string) error { return nil }

func TestService_Create_assignsIDAndPending(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, "order.updated", nil, 0, slog.Default())

	out, err := s.Create(context.Background(), models.OrderCreateInput{
		UserID:  "u1",
		Address: "1 Main Rd",
		Items:   []models.OrderItem{{Title: "Latte", Quantity: 1}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.ID)
	require.Equal(t, models.OrderStatusPending, out.Status)
	require.Equal(t, out, r.inserted)
}

func TestService_SetStatus_skipAheadAllowed(t *testing.T) {
	// pending -> ready перепрыгивает preparing, это валидно
	r := &fakeRepo{
		getOut:    &models.Order{ID: "o1", Status: models.OrderStatusPending},
		updateOut: &models.Order{ID: "o1", Status: models.OrderStatusReady},
	}
	s := New(r, nil, "order.updated", nil, 0, slog.Default())

	out, err := s.SetStatus(context.Background(), "o1", models.OrderStatusReady, nil)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusReady, out.Status)
	require.Equal(t, models.OrderStatusReady, r.updatedStatus)
}

func TestService_SetStatus_unknownStatus(t *testing.T) {
	s := New(&fakeRepo{}, nil, "order.updated", nil, 0, slog.Default())
	_, err := s.SetStatus(context.Background(), "o1", models.OrderStatus("shipped"), nil)
	require.Error(t, err)
}
