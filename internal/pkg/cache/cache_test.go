package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TeamPay/internal/pkg/env"
)

func TestConfigFromEnv(t *testing.T) {
	env.Env = map[string]string{"CACHE_HOST": "cache", "CACHE_PORT": "6380", "CACHE_DB": "2"}
	t.Cleanup(func() { env.Env = nil })

	cfg := ConfigFromEnv()
	assert.Equal(t, "cache:6380", cfg.Addr())
	assert.Equal(t, 2, cfg.DB)
}

func TestLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	ok, err := TryLock(ctx, client, "lock:test", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = TryLock(ctx, client, "lock:test", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, Unlock(ctx, client, "lock:test", "b"), ErrLockNotHeld)
	require.NoError(t, Unlock(ctx, client, "lock:test", "a"))

	ok, err = TryLock(ctx, client, "lock:test", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = TryLock(ctx, client, "lock:test", "c", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be free again")
}

func TestSetupCacheUnreachableDoesNotFail(t *testing.T) {
	client := SetupCache(Config{Host: "127.0.0.1", Port: 1})
	require.NotNil(t, client)
	_ = client.Close()
}
