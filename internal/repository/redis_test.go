package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRedisGuardStore(t *testing.T) {
	s, client := newMiniredis(t)
	repo := NewRedisGuardStore(client)
	ctx := context.Background()

	t.Run("AcquireRelease", func(t *testing.T) {
		ok, err := repo.Acquire(ctx, "webhook:pi_1", 30*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Acquire(ctx, "webhook:pi_1", 30*time.Second)
		require.NoError(t, err)
		assert.False(t, ok, "held lock cannot be taken twice")

		require.NoError(t, repo.Release(ctx, "webhook:pi_1"))

		ok, err = repo.Acquire(ctx, "webhook:pi_1", 30*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("LockExpires", func(t *testing.T) {
		ok, err := repo.Acquire(ctx, "webhook:pi_2", 10*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		s.FastForward(11 * time.Second)

		ok, err = repo.Acquire(ctx, "webhook:pi_2", 10*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RateLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "create:42", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "create:42", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		assert.Equal(t, time.Minute, s.TTL("guard:rate:create:42"))

		s.FastForward(61 * time.Second)
		allowed, err = repo.CheckRateLimit(ctx, "create:42", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "window resets")
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.SetError("server down")
		defer s.SetError("")

		_, err := repo.Acquire(ctx, "x", time.Second)
		assert.Error(t, err)
		_, err = repo.CheckRateLimit(ctx, "x", 1, time.Second)
		assert.Error(t, err)
	})
}

func TestRedisGuardStoreNilClient(t *testing.T) {
	repo := NewRedisGuardStore(nil)
	ctx := context.Background()

	_, err := repo.Acquire(ctx, "k", time.Second)
	assert.Error(t, err)
	assert.Error(t, repo.Release(ctx, "k"))
	_, err = repo.CheckRateLimit(ctx, "k", 1, time.Second)
	assert.Error(t, err)
}

func TestPingAndClose(t *testing.T) {
	_, client := newMiniredis(t)
	assert.NoError(t, Ping(context.Background(), client))
	assert.NoError(t, Close(nil))
}
