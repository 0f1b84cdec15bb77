package services

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisChecker probes Redis through a shared client
type RedisChecker struct {
	BaseChecker
	client *redis.Client
}

// NewRedisChecker wraps an existing client; the caller owns its lifecycle
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{
		BaseChecker: BaseChecker{checkerType: "redis"},
		client:      client,
	}
}

// HealthCheck verifies Redis connectivity
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
