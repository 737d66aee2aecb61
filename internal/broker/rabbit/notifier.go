package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchange = "brew.notify"

// Notifier публикует push-уведомления о терминальных статусах заказа
// в topic exchange; доставкой на устройства занимается отдельный шлюз.
type Notifier struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url string) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	return &Notifier{conn: conn, ch: ch}, nil
}

type orderNotification struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
}

func (n *Notifier) PublishOrderStatus(ctx context.Context, o *models.Order) error {
	body, err := json.Marshal(orderNotification{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status.String(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	return n.ch.PublishWithContext(ctx, exchange, RoutingKey(o.Status), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// RoutingKey: order.status.<status>, шлюз подписывается маской order.status.*.
func RoutingKey(status models.OrderStatus) string {
	return fmt.Sprintf("order.status.%s", status)
}

func (n *Notifier) Close() error {
	if n.ch != nil && !n.ch.IsClosed() {
		if err := n.ch.Close(); err != nil {
			return errors.Wrap(err, "close channel")
		}
	}
	if n.conn != nil && !n.conn.IsClosed() {
		if err := n.conn.Close(); err != nil {
			return errors.Wrap(err, "close connection")
		}
	}
	return nil
}
