package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/boychina/web-tracing-analysis/pkg/kv"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a throwaway redis and returns its address.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	addr := setupRedisContainer(t)

	store, err := NewStore(ctx, Options{Addr: addr, Prefix: "test:"})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, kv.KeyDeviceID)
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Set(ctx, kv.KeyDeviceID, "device-1"))
	v, err := store.Get(ctx, kv.KeyDeviceID)
	require.NoError(t, err)
	require.Equal(t, "device-1", v)

	// Keys are namespaced by prefix
	raw, err := store.client.Get(ctx, "test:"+kv.KeyDeviceID).Result()
	require.NoError(t, err)
	require.Equal(t, "device-1", raw)

	require.NoError(t, store.Delete(ctx, kv.KeyDeviceID))
	_, err = store.Get(ctx, kv.KeyDeviceID)
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRedisStoreTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	addr := setupRedisContainer(t)

	store, err := NewStore(ctx, Options{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, kv.KeyAccessToken, "T1"))
	ttl, err := store.client.TTL(ctx, defaultPrefix+kv.KeyAccessToken).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
