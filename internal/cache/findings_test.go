package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/dataset-validator/internal/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*FindingsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFindingsCache(client, ttl), mr
}

func TestFindingsCache_RoundTrip(t *testing.T) {
	t.Run("Should return stored findings on hit", func(t *testing.T) {
		c, mr := newTestCache(t, time.Minute)
		ctx := context.Background()
		findings := []models.Finding{
			{ID: "a", Check: "duplicate-ids", Severity: models.SeverityError, Entity: models.EntityTasks, EntityID: "T1", Message: "dup"},
		}

		require.NoError(t, c.Set(ctx, "fp1", findings))
		got, hit, err := c.Get(ctx, "fp1")

		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, findings, got)
		assert.True(t, mr.Exists(KeyPrefix+"fp1"))
		assert.Equal(t, time.Minute, mr.TTL(KeyPrefix+"fp1"))
	})

	t.Run("Should cache an empty result as a hit", func(t *testing.T) {
		c, _ := newTestCache(t, time.Minute)
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "clean", nil))
		got, hit, err := c.Get(ctx, "clean")

		require.NoError(t, err)
		assert.True(t, hit)
		assert.Empty(t, got)
	})

	t.Run("Should miss unknown fingerprints", func(t *testing.T) {
		c, _ := newTestCache(t, time.Minute)

		got, hit, err := c.Get(context.Background(), "nope")

		require.NoError(t, err)
		assert.False(t, hit)
		assert.Nil(t, got)
	})

	t.Run("Should expire after ttl", func(t *testing.T) {
		c, mr := newTestCache(t, time.Minute)
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "fp", []models.Finding{{ID: "x"}}))

		mr.FastForward(2 * time.Minute)
		_, hit, err := c.Get(ctx, "fp")

		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("Should drop corrupt entries", func(t *testing.T) {
		c, mr := newTestCache(t, time.Minute)
		require.NoError(t, mr.Set(KeyPrefix+"bad", "{not json"))

		_, hit, err := c.Get(context.Background(), "bad")

		require.NoError(t, err)
		assert.False(t, hit)
		assert.False(t, mr.Exists(KeyPrefix+"bad"))
	})
}

func TestFindingsCache_InvalidateAndFlush(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	for _, fp := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, fp, []models.Finding{{ID: fp}}))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.Invalidate(ctx, "a"))
	assert.False(t, mr.Exists(KeyPrefix+"a"))

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("unrelated"))
}

func TestFindingsCache_NilIsNoop(t *testing.T) {
	var c *FindingsCache
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp", []models.Finding{{ID: "x"}}))
	_, hit, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, hit)
	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), Options{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = Connect(context.Background(), Options{Address: mr.Addr()})
	assert.Error(t, err)
}
