package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string `json:"accessToken"`

	// Redirect is the landing page the server suggests.
	Redirect string `json:"redirect"`
}

// Login exchanges username and password for a credential. On success the
// credential is stored, the server's RT cookie lands in the jar and a new
// recovery lifetime starts.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	req, err := NewJSONRequest(http.MethodPost, c.cfg.LoginPath, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	env, err := c.send(ctx, req, requestContext{attempt: FirstAttempt, noRefresh: true})
	if err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, fmt.Errorf("login rejected: %w", err)
	}

	result, err := DecodeData[LoginResult](env)
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.New("login response carried no access token")
	}

	c.identity.SetCredential(ctx, result.AccessToken)
	c.recovery.Reset()
	c.logger.Info("signed in", "username", username)

	return &result, nil
}

// Logout ends the session on the server and drops the local credential. The
// credential is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.identity.ClearCredential(ctx)

	env, err := c.send(ctx, NewRequest(http.MethodPost, c.cfg.LogoutPath), requestContext{
		attempt:   FirstAttempt,
		noRefresh: true,
	})
	if err != nil {
		return err
	}
	return env.Err()
}

// Device is one active sign in of the current user.
type Device struct {
	ID            int64     `json:"id"`
	DeviceID      string    `json:"deviceId"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	CreatedAt     Timestamp `json:"createdAt"`
	LastRefreshAt Timestamp `json:"lastRefreshAt"`
	ExpiresAt     Timestamp `json:"expiresAt"`
	Revoked       bool      `json:"revoked"`
}

// Devices lists the current user's active devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	env, err := c.Get(ctx, c.cfg.DevicesPath)
	if err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, err
	}
	return DecodeData[[]Device](env)
}

// KickDevice revokes the sign in identified by tokenID (Device.ID).
func (c *Client) KickDevice(ctx context.Context, tokenID int64) error {
	env, err := c.Post(ctx, c.cfg.KickPath, map[string]int64{"tokenId": tokenID})
	if err != nil {
		return err
	}
	return env.Err()
}
