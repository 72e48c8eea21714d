package mq

import "time"

// Routing keys on the clubportal.events exchange.
const (
	RoutingKeyNotificationCreated = "notification.created"
)

// NotificationCreatedPayload announces a persisted notification whose email
// copies are still to be dispatched. The notifier reloads the notification
// and its recipients from the store; the payload stays minimal on purpose.
type NotificationCreatedPayload struct {
	NotificationID string    `json:"notification_id"`
	TraceID        string    `json:"trace_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
