package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady,
		OrderStatusCompleted, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal: после этих статусов переходов больше не ожидаем.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Rank задаёт монотонный порядок нормального жизненного цикла.
// cancelled стоит вне порядка: он достижим из любого нетерминального статуса.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusPreparing:
		return 1
	case OrderStatusReady:
		return 2
	case OrderStatusCompleted:
		return 3
	case OrderStatusDelivered:
		return 4
	default:
		return -1
	}
}

type OrderItem struct {
	Title    string `bson:"title" json:"title" validate:"required"`
	Quantity int    `bson:"quantity" json:"quantity" validate:"required,gte=1"`
	Category string `bson:"category" json:"category"`
}

type DeliveryPerson struct {
	Name      string  `bson:"name" json:"name" validate:"required"`
	Phone     string  `bson:"phone" json:"phone" validate:"required"`
	VehicleID string  `bson:"vehicle_id" json:"vehicleId" validate:"required"`
	AvatarURL *string `bson:"avatar_url,omitempty" json:"avatarUrl,omitempty"`
}

type Order struct {
	ID         string          `bson:"_id" json:"id"`
	UserID     string          `bson:"user_id" json:"userId"`
	Status     OrderStatus     `bson:"status" json:"status"`
	Address    string          `bson:"address" json:"address"`
	TotalCents int64           `bson:"total_cents" json:"totalCents"`
	Items      []OrderItem     `bson:"items" json:"items"`
	Courier    *DeliveryPerson `bson:"courier,omitempty" json:"courier,omitempty"`
	CreatedAt  time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `bson:"updated_at" json:"updatedAt"`
}

type OrderCreateInput struct {
	UserID     string      `json:"userId" validate:"required"`
	Address    string      `json:"address" validate:"required"`
	TotalCents int64       `json:"totalCents" validate:"gte=0"`
	Items      []OrderItem `json:"items" validate:"required,min=1,dive"`
}
