package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Parallel()

	s, err := NewSealer([]byte("master"), "credentials")
	require.NoError(t, err)

	plaintext := []byte("eyJhbGciOiJIUzI1NiJ9.payload.sig")
	sealed, err := s.Seal(plaintext, []byte("webtrace.access_token"))
	require.NoError(t, err)
	require.False(t, bytes.Contains(sealed, plaintext))

	opened, err := s.Open(sealed, []byte("webtrace.access_token"))
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	t.Parallel()

	s, err := NewSealer([]byte("master"), "credentials")
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenFailures(t *testing.T) {
	t.Parallel()

	s, err := NewSealer([]byte("master"), "credentials")
	require.NoError(t, err)

	t.Run("too short", func(t *testing.T) {
		_, err := s.Open([]byte{1, 2, 3}, nil)
		require.ErrorIs(t, err, ErrCiphertextTooShort)
	})

	t.Run("wrong aad", func(t *testing.T) {
		sealed, err := s.Seal([]byte("v"), []byte("a"))
		require.NoError(t, err)
		_, err = s.Open(sealed, []byte("b"))
		require.Error(t, err)
	})

	t.Run("different label", func(t *testing.T) {
		other, err := NewSealer([]byte("master"), "other-purpose")
		require.NoError(t, err)
		sealed, err := s.Seal([]byte("v"), nil)
		require.NoError(t, err)
		_, err = other.Open(sealed, nil)
		require.Error(t, err)
	})
}

func TestNewSealerRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, err := NewSealer(nil, "x")
	require.Error(t, err)
}
