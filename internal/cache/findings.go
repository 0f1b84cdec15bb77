package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// KeyPrefix namespaces every cached finding list
const KeyPrefix = "dataset-validator:findings:"

// Client is the subset of the go-redis client the cache needs
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Options configures a Redis connection
type Options struct {
	Address  string
	Password string
	DB       int
}

// Connect dials Redis and verifies the connection
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// FindingsCache stores engine output keyed by dataset fingerprint. A nil
// *FindingsCache is valid and caches nothing.
type FindingsCache struct {
	client Client
	ttl    time.Duration
}

// NewFindingsCache creates a cache; ttl <= 0 falls back to one hour
func NewFindingsCache(client Client, ttl time.Duration) *FindingsCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &FindingsCache{client: client, ttl: ttl}
}

func key(fingerprint string) string {
	return KeyPrefix + fingerprint
}

// Get returns the cached findings and whether there was a hit
func (c *FindingsCache) Get(ctx context.Context, fingerprint string) ([]models.Finding, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached findings: %w", err)
	}

	var findings []models.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		slog.Warn("dropping unreadable cache entry", "fingerprint", fingerprint, "error", err)
		_ = c.Invalidate(ctx, fingerprint)
		return nil, false, nil
	}

	return findings, true, nil
}

// Set stores findings under the fingerprint
func (c *FindingsCache) Set(ctx context.Context, fingerprint string, findings []models.Finding) error {
	if c == nil {
		return nil
	}
	if findings == nil {
		findings = []models.Finding{}
	}

	data, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	if err := c.client.Set(ctx, key(fingerprint), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache findings: %w", err)
	}
	return nil
}

// Invalidate drops one cached entry
func (c *FindingsCache) Invalidate(ctx context.Context, fingerprint string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, key(fingerprint)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate findings: %w", err)
	}
	return nil
}

// Flush removes every cached entry and returns how many keys were deleted
func (c *FindingsCache) Flush(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}

	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, KeyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	slog.Info("findings cache flushed", "keys_deleted", deleted)
	return deleted, nil
}
