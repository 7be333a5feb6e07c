package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialInfo is what the client can learn about a bearer credential
// without the server's signing key.
type CredentialInfo struct {
	Subject   string
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn reports the remaining lifetime relative to now. Zero when the
// credential carries no expiry.
func (i CredentialInfo) ExpiresIn(now time.Time) time.Duration {
	if i.ExpiresAt.IsZero() {
		return 0
	}
	return i.ExpiresAt.Sub(now)
}

type credentialClaims struct {
	jwt.RegisteredClaims

	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Inspect decodes a JWT credential WITHOUT verifying its signature. The result
// is only fit for logging and diagnostics, never for authorization.
func Inspect(token string) (CredentialInfo, error) {
	var claims credentialClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return CredentialInfo{}, fmt.Errorf("failed to decode credential: %w", err)
	}

	info := CredentialInfo{
		Subject:  claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
