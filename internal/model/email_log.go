package model

import "time"

// EmailLogEntry is one row of the append-only send log. The daily quota is
// computed from it; nothing in this service updates or deletes rows.
type EmailLogEntry struct {
	ID          int64
	RecipientID int
	Subject     string
	SentAt      time.Time
}
