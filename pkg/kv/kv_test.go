package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boychina/web-tracing-analysis/pkg/cryptox"
	"github.com/boychina/web-tracing-analysis/pkg/kv"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kv.NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Set(ctx, kv.KeyDeviceID, "dev-1"))
	v, err := store.Get(ctx, kv.KeyDeviceID)
	require.NoError(t, err)
	require.Equal(t, "dev-1", v)

	require.NoError(t, store.Set(ctx, kv.KeyDeviceID, "dev-2"))
	v, err = store.Get(ctx, kv.KeyDeviceID)
	require.NoError(t, err)
	require.Equal(t, "dev-2", v)

	require.NoError(t, store.Delete(ctx, kv.KeyDeviceID))
	require.NoError(t, store.Delete(ctx, kv.KeyDeviceID)) // absent key
	require.Zero(t, store.Len())
}

func TestMemoryStoreClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Close())

	err := store.Set(ctx, "k", "v")
	require.ErrorIs(t, err, kv.ErrClosed)

	var opErr *kv.OpError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, "set", opErr.Op)

	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrClosed)
}

func TestSealedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sealer, err := cryptox.NewSealer([]byte("master-key-material"), "kv-test")
	require.NoError(t, err)

	backing := kv.NewMemoryStore()
	sealed := kv.NewSealed(backing, sealer)

	require.NoError(t, sealed.Set(ctx, kv.KeyAccessToken, "secret-token"))

	// The backing store never sees the plaintext
	raw, err := backing.Get(ctx, kv.KeyAccessToken)
	require.NoError(t, err)
	require.NotContains(t, raw, "secret-token")

	v, err := sealed.Get(ctx, kv.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "secret-token", v)

	// A value sealed under one key cannot be replayed under another
	require.NoError(t, backing.Set(ctx, kv.KeyDeviceID, raw))
	_, err = sealed.Get(ctx, kv.KeyDeviceID)
	require.Error(t, err)

	_, err = sealed.Get(ctx, "missing")
	require.ErrorIs(t, err, kv.ErrNotFound)
}
