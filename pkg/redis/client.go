package redis

import (
	"clubportal/pkg/config"

	"github.com/redis/go-redis/v9"
)

// NewClient builds a Redis client from config.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
