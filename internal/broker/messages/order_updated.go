package messages

import "time"

// OrderUpdated сигнализирует об изменении документа заказа.
// Потребитель перечитывает документ из стора и рассылает snapshot
// подписчикам; само сообщение состояние не несёт.
type OrderUpdated struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"` // created | status | deleted
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	OrderReasonCreated = "created"
	OrderReasonStatus  = "status"
	OrderReasonDeleted = "deleted"
)
