package idx_test

import (
	"testing"
	"time"

	"github.com/boychina/web-tracing-analysis/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewDeviceID(t *testing.T) {
	t.Parallel()

	id := idx.NewDeviceID()
	require.NotEmpty(t, id)
	require.True(t, idx.Valid(id))
}

func TestIDsAreUnique(t *testing.T) {
	t.Parallel()

	// Same millisecond, monotonic entropy must still give distinct values
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := idx.NewRequestID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestIssued(t *testing.T) {
	t.Parallel()

	tm := time.Unix(1700000000, 0).UTC()
	id := idx.NewAt(tm)

	require.WithinDuration(t, tm, idx.Issued(id), time.Millisecond)
	require.True(t, idx.Issued("not-an-id").IsZero())
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, idx.Valid("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV"))
	require.False(t, idx.Valid(""))
	require.False(t, idx.Valid("   "))
	require.False(t, idx.Valid("hello"))
}
