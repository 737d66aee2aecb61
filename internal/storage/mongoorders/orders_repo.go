package mongoorders

import (
	"context"
	"time"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Storage) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := s.orders.InsertOne(ctx, order)
	return errors.Wrap(err, "insert order")
}

// GetOrder возвращает (nil, nil), если документа нет.
func (s *Storage) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	return &order, nil
}

// ListOrdersByUser отдаёт заказы пользователя, свежие первыми.
func (s *Storage) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cur, err := s.orders.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find orders by user")
	}
	defer cur.Close(ctx)

	var out []*models.Order
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return out, nil
}

// UpdateOrderStatus меняет статус и (опционально) назначает курьера.
// Возвращает обновлённый документ; (nil, nil), если заказа нет.
func (s *Storage) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, courier *models.DeliveryPerson, now time.Time) (*models.Order, error) {
	set := bson.M{
		"status":     status,
		"updated_at": now.UTC(),
	}
	if courier != nil {
		set["courier"] = courier
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	err := s.orders.FindOneAndUpdate(ctx, bson.M{"_id": orderID}, bson.M{"$set": set}, opts).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return &order, nil
}

// DeleteOrder убирает документ; отсутствие документа ошибкой не считается.
func (s *Storage) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := s.orders.DeleteOne(ctx, bson.M{"_id": orderID})
	return errors.Wrap(err, "delete order")
}
