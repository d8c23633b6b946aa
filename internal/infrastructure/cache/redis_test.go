package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/foodlens/backend/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisCache connects to FOODLENS_TEST_REDIS_URL or skips
func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	url := os.Getenv("FOODLENS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FOODLENS_TEST_REDIS_URL not set")
	}

	c, err := NewRedisCache(context.Background(), url, "test:"+uuid.NewString()+":")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not a url", "")
	assert.Error(t, err)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, "redis://127.0.0.1:1/0", "")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}
