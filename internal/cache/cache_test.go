package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clients(t *testing.T) map[string]Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]Client{
		"memory": NewMemory("test"),
		"redis":  NewRedisFromClient(rdb, "test"),
	}
}

func TestClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Get(ctx, "missing")
			assert.True(t, IsNotFound(err))

			require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
			got, err := c.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", got)

			require.NoError(t, c.Delete(ctx, "k"))
			_, err = c.Get(ctx, "k")
			assert.True(t, IsNotFound(err))

			require.NoError(t, c.Delete(ctx, "never-set"))
		})
	}
}

func TestClient_SetNXOnlyFirstWins(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := c.SetNX(ctx, "jti:a-1", "1", time.Hour)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.SetNX(ctx, "jti:a-1", "1", time.Hour)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = c.SetNX(ctx, "jti:a-2", "1", time.Hour)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestMemory_TTLExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	assert.True(t, IsNotFound(err))

	ok, err := c.SetNX(ctx, "short", "again", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired keys can be claimed again")
}
