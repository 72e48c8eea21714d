package model

import "time"

// Notification types.
const (
	TypeRunSpecific = "run_specific"
	TypeGeneral     = "general"
	TypeUrgent      = "urgent"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification is immutable once created; administrative edits happen
// outside this service.
type Notification struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Type         string     `json:"type"`
	Priority     string     `json:"priority"`
	RunID        *int       `json:"run_id,omitempty"`
	CreatedBy    int        `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Urgent reports whether the email subject gets the [URGENT] prefix.
func (n Notification) Urgent() bool {
	return n.Type == TypeUrgent || n.Priority == PriorityUrgent
}

// DeliveryRecord tracks one recipient's state for one notification.
// ReadAt is set once and never cleared; dismissing implies read.
type DeliveryRecord struct {
	NotificationID string     `json:"notification_id"`
	MemberID       int        `json:"member_id"`
	DeliveredAt    time.Time  `json:"delivered_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	DismissedAt    *time.Time `json:"dismissed_at,omitempty"`
}

// FeedItem is a notification as shown in a recipient's list, joined with
// the sender's display name and, for run_specific, the run details.
type FeedItem struct {
	Notification
	SenderName   string     `json:"sender_name"`
	RunTitle     string     `json:"run_title,omitempty"`
	RunDate      *time.Time `json:"run_date,omitempty"`
	RunStartTime string     `json:"run_start_time,omitempty"`
	DeliveredAt  time.Time  `json:"delivered_at"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}
