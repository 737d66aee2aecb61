package messages

import "time"

// TrackingUpdated сигнализирует об изменении записи трекинга заказа.
type TrackingUpdated struct {
	OrderID   string    `json:"order_id"`
	Reason    string    `json:"reason,omitempty"` // started | ping | stopped | degraded | auto_stopped
	UpdatedAt time.Time `json:"updated_at"`

	Error *string `json:"error,omitempty"`
}

const (
	TrackingReasonStarted     = "started"
	TrackingReasonPing        = "ping"
	TrackingReasonStopped     = "stopped"
	TrackingReasonDegraded    = "degraded"
	TrackingReasonAutoStopped = "auto_stopped"
)
