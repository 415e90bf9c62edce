package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewIdempotencyCache(client), s
}

func TestIdempotencyCache_SetAndGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key := "1001:recharge-key-1"
	value := []byte(`{"request_number":"WR1700000000000123","status":"pending"}`)

	// Get before set => nil
	result, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, result)

	err = cache.Set(ctx, key, value, 24*time.Hour)
	require.NoError(t, err)

	result, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestIdempotencyCache_TTLExpiry(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()

	err := cache.Set(ctx, "1001:k", []byte(`{"data":"test"}`), 1*time.Second)
	require.NoError(t, err)

	// Fast-forward time in miniredis
	s.FastForward(2 * time.Second)

	result, err := cache.Get(ctx, "1001:k")
	assert.NoError(t, err)
	assert.Nil(t, result, "expired key should return nil")
}

func TestIdempotencyCache_ReserveIsExclusive(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.Reserve(ctx, "1001:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first reservation wins")

	ok, err = cache.Reserve(ctx, "1001:k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation loses")

	ok, err = cache.Reserve(ctx, "1002:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "same key for a different customer is independent")
}

func TestIdempotencyCache_ReleaseAllowsRetry(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.Reserve(ctx, "1001:k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, cache.Release(ctx, "1001:k"))

	ok, err = cache.Reserve(ctx, "1001:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyCache_ReservationExpires(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.Reserve(ctx, "1001:k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(2 * time.Second)

	ok, err = cache.Reserve(ctx, "1001:k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "a crashed holder does not block the key forever")
}

func TestIdempotencyCache_KeysAreNamespaced(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "1001:k", []byte("x"), time.Minute))
	assert.True(t, s.Exists("cwl:idempotency:1001:k"))
}
