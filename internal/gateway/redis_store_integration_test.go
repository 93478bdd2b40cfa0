//go:build integration

package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) (*redis.Client, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:8-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})

	cleanup := func() {
		_ = rdb.Close()
		_ = container.Terminate(ctx)
	}

	return rdb, cleanup
}

func TestIntegration_RedisStore(t *testing.T) {
	ctx := context.Background()
	rdb, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	store := NewRedisStore(rdb, "test:session:")
	require.NoError(t, store.Ping(ctx))

	t.Run("create get delete", func(t *testing.T) {
		rec, err := NewRecord(testSnapshot(t, 0), "10.1.1.1", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Create(ctx, rec))

		ttl, err := rdb.TTL(ctx, "test:session:"+rec.ID).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 59*time.Minute)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Session.AccessToken, got.Session.AccessToken)
		assert.Equal(t, rec.User.ID, got.User.ID)
		assert.Equal(t, "10.1.1.1", got.ClientIP)

		require.NoError(t, store.Delete(ctx, rec.ID))
		_, err = store.Get(ctx, rec.ID)
		require.ErrorIs(t, err, ErrSessionNotFound)
		require.ErrorIs(t, store.Delete(ctx, rec.ID), ErrSessionNotFound)
	})

	t.Run("expired record is rejected", func(t *testing.T) {
		rec, err := NewRecord(testSnapshot(t, 0), "", time.Hour)
		require.NoError(t, err)
		rec.ExpiresAt = time.Now().Add(-time.Second)

		require.ErrorIs(t, store.Create(ctx, rec), ErrSessionExpired)
	})

	t.Run("expired portal session is removed on read", func(t *testing.T) {
		rec, err := NewRecord(testSnapshot(t, 2*time.Second), "", time.Hour)
		require.NoError(t, err)
		rec.ExpiresAt = time.Now().Add(time.Hour)
		require.NoError(t, store.Create(ctx, rec))

		time.Sleep(2500 * time.Millisecond)

		_, err = store.Get(ctx, rec.ID)
		require.ErrorIs(t, err, ErrSessionExpired)

		n, err := rdb.Exists(ctx, "test:session:"+rec.ID).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
