package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper suppresses duplicate event processing across MQ redeliveries
// using a Redis SETNX lock per (scope, id).
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce reports true the first time it is called for (scope, id)
// within the TTL window. When Redis is unavailable it fails open: duplicate
// processing is preferred over dropping the event.
func (d *Deduper) AcquireOnce(ctx context.Context, scope string, id string) bool {
	key := fmt.Sprintf("dedup:%s:%s", scope, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("scope", scope),
				zap.String("id", id),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.String("dedup_key", key),
		)
	}

	return ok
}
