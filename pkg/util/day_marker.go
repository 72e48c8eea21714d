package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dayMarkerTTL doubles as garbage collection: markers older than 7 days
// expire on their own.
const dayMarkerTTL = 7 * 24 * time.Hour

// DayMarker is a per-calendar-day boolean flag in Redis, keyed by ISO date.
// The digest scheduler uses it for at-most-once-per-day firing.
type DayMarker struct {
	rdb    *redis.Client
	prefix string
}

func NewDayMarker(rdb *redis.Client, prefix string) *DayMarker {
	return &DayMarker{rdb: rdb, prefix: prefix}
}

func (m *DayMarker) key(day time.Time) string {
	return fmt.Sprintf("%s:%s", m.prefix, day.Format("2006-01-02"))
}

// IsSet reports whether the marker for the given day exists.
func (m *DayMarker) IsSet(ctx context.Context, day time.Time) (bool, error) {
	n, err := m.rdb.Exists(ctx, m.key(day)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read day marker: %w", err)
	}
	return n > 0, nil
}

// Set records the marker for the given day.
func (m *DayMarker) Set(ctx context.Context, day time.Time) error {
	if err := m.rdb.Set(ctx, m.key(day), 1, dayMarkerTTL).Err(); err != nil {
		return fmt.Errorf("failed to set day marker: %w", err)
	}
	return nil
}
