package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisStore on top of it
func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, ttl)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return store, mr, cleanup
}

func TestRedisGet_Success(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, 0)
	defer cleanup()

	require.NoError(t, mr.Set("cart", `[{"id":1,"price":100,"quantity":2}]`))

	data, err := store.Get(context.Background(), "cart")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"price":100,"quantity":2}]`, string(data))
}

func TestRedisGet_NotFound(t *testing.T) {
	store, _, cleanup := setupTestRedis(t, 0)
	defer cleanup()

	data, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, data)
}

func TestRedisSet_NoTTL(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, 0)
	defer cleanup()

	err := store.Set(context.Background(), "theme", []byte("light"))
	require.NoError(t, err)

	stored, err := mr.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "light", stored)
	assert.Equal(t, time.Duration(0), mr.TTL("theme"))
}

func TestRedisSet_WithTTL(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, 15*time.Minute)
	defer cleanup()

	err := store.Set(context.Background(), "cart", []byte("[]"))
	require.NoError(t, err)

	ttl := mr.TTL("cart")
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestRedisDelete(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, 0)
	defer cleanup()

	require.NoError(t, mr.Set("user_avatar", "https://example.com/a.png"))
	assert.True(t, mr.Exists("user_avatar"))

	require.NoError(t, store.Delete(context.Background(), "user_avatar"))
	assert.False(t, mr.Exists("user_avatar"))

	// Deleting a missing key is not an error
	assert.NoError(t, store.Delete(context.Background(), "user_avatar"))
}

func TestRedisGet_ServerDown(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, 0)
	defer cleanup()
	mr.Close()

	_, err := store.Get(context.Background(), "cart")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "redis get failed")
}
