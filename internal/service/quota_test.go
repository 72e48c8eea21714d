package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	count int
	err   error
	seen  time.Time
}

func (f *fakeCounter) CountOnDay(_ context.Context, t time.Time) (int, error) {
	f.seen = t
	return f.count, f.err
}

func newTestQuota(counter *fakeCounter, now time.Time) *QuotaTracker {
	q := NewQuotaTracker(counter, 0)
	q.now = func() time.Time { return now }
	return q
}

func TestQuotaCanSend(t *testing.T) {
	tests := []struct {
		name          string
		sent          int
		wantAllowed   bool
		wantRemaining int
	}{
		{"fresh day", 0, true, 450},
		{"partially used", 430, true, 20},
		{"one left", 449, true, 1},
		{"exactly at limit", 450, false, 0},
		{"over limit", 460, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQuota(&fakeCounter{count: tt.sent}, time.Now())

			status, err := q.CanSend(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", status.Allowed, tt.wantAllowed)
			}
			if status.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", status.Remaining, tt.wantRemaining)
			}
			if status.Total != DailyEmailLimit {
				t.Errorf("Total = %d, want %d", status.Total, DailyEmailLimit)
			}
		})
	}
}

func TestQuotaConfiguredLimit(t *testing.T) {
	q := NewQuotaTracker(&fakeCounter{count: 5}, 10)
	q.now = time.Now

	status, err := q.CanSend(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Total != 10 || status.Remaining != 5 || !status.Allowed {
		t.Errorf("unexpected status for configured limit: %+v", status)
	}
}

func TestQuotaZeroLimitFallsBackToDefault(t *testing.T) {
	q := NewQuotaTracker(&fakeCounter{}, 0)

	status, err := q.CanSend(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Total != DailyEmailLimit {
		t.Errorf("Total = %d, want %d", status.Total, DailyEmailLimit)
	}
}

func TestQuotaCounterError(t *testing.T) {
	q := newTestQuota(&fakeCounter{err: errors.New("db down")}, time.Now())

	if _, err := q.CanSend(context.Background()); err == nil {
		t.Error("expected error when the counter fails")
	}
}

func TestQuotaUsesCurrentDay(t *testing.T) {
	counter := &fakeCounter{}
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	q := newTestQuota(counter, now)

	if _, err := q.CanSend(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !counter.seen.Equal(now) {
		t.Errorf("counter queried with %v, want %v", counter.seen, now)
	}
}
