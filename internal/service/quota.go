package service

import (
	"context"
	"fmt"
	"time"
)

// DailyEmailLimit is the default daily cap, keeping volume under the
// transport provider's limit with margin. Overridable via config.
const DailyEmailLimit = 450

// SendCounter counts emails already sent within a calendar day.
type SendCounter interface {
	CountOnDay(ctx context.Context, t time.Time) (int, error)
}

// QuotaStatus is the gate's answer for one dispatch batch.
type QuotaStatus struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Total     int  `json:"total"`
}

// QuotaTracker recomputes the remaining daily quota from the email log on
// every call. It is a read-mostly gate, not a reservation system: check
// and the later log inserts are not one transaction, and two concurrent
// batches can both pass; accepted for a single-writer deployment.
type QuotaTracker struct {
	counter SendCounter
	limit   int
	now     func() time.Time
}

// NewQuotaTracker builds a tracker with the given daily limit; zero or
// negative falls back to DailyEmailLimit.
func NewQuotaTracker(counter SendCounter, limit int) *QuotaTracker {
	if limit <= 0 {
		limit = DailyEmailLimit
	}
	return &QuotaTracker{
		counter: counter,
		limit:   limit,
		now:     time.Now,
	}
}

// CanSend reports how many more emails may go out today.
func (q *QuotaTracker) CanSend(ctx context.Context) (QuotaStatus, error) {
	sent, err := q.counter.CountOnDay(ctx, q.now())
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("failed to compute quota: %w", err)
	}

	remaining := q.limit - sent
	if remaining < 0 {
		remaining = 0
	}

	return QuotaStatus{
		Allowed:   remaining > 0,
		Remaining: remaining,
		Total:     q.limit,
	}, nil
}
