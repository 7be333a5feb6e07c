package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Username: "admin",
		Role:     "SUPER_ADMIN",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unknown-to-client"))
	require.NoError(t, err)

	info, err := Inspect(token)
	require.NoError(t, err)
	require.Equal(t, "42", info.Subject)
	require.Equal(t, "admin", info.Username)
	require.Equal(t, "SUPER_ADMIN", info.Role)
	require.Equal(t, now.Unix(), info.IssuedAt.Unix())
	require.Equal(t, 15*time.Minute, info.ExpiresIn(now))
}

func TestInspectRejectsOpaqueTokens(t *testing.T) {
	t.Parallel()

	_, err := Inspect("not-a-jwt")
	require.Error(t, err)
}

func TestExpiresInWithoutExpiry(t *testing.T) {
	t.Parallel()

	require.Zero(t, CredentialInfo{}.ExpiresIn(time.Now()))
}
