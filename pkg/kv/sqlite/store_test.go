package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/boychina/web-tracing-analysis/pkg/kv"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "webtrace.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Get(ctx, kv.KeyAccessToken)
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Set(ctx, kv.KeyAccessToken, "T1"))
	require.NoError(t, s.Set(ctx, kv.KeyAccessToken, "T2"))

	v, err := s.Get(ctx, kv.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "T2", v)

	require.NoError(t, s.Delete(ctx, kv.KeyAccessToken))
	_, err = s.Get(ctx, kv.KeyAccessToken)
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, path := newTestStore(t)

	require.NoError(t, s.Set(ctx, kv.KeyDeviceID, "device-123"))
	require.NoError(t, s.Close())

	// Migrations must be idempotent on an existing file
	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, kv.KeyDeviceID)
	require.NoError(t, err)
	require.Equal(t, "device-123", v)
	require.NoError(t, reopened.Ping(ctx))
}

func TestStoreClosedReturnsOpError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.Set(ctx, "k", "v")
	require.Error(t, err)
	require.NotErrorIs(t, err, kv.ErrNotFound)
}
