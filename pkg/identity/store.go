// Package identity owns the two values the client presents on every call: a
// durable device identifier and the bearer credential. It is the only writer
// of either value. Storage failures never surface to callers; the store falls
// back to in-memory values and logs a warning instead.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/boychina/web-tracing-analysis/pkg/idx"
	"github.com/boychina/web-tracing-analysis/pkg/kv"
)

type Store struct {
	persistent kv.Store
	logger     *slog.Logger

	mu       sync.Mutex
	deviceID string

	// Set when the last credential write or delete failed; reads are then
	// served from fallback so the pipeline keeps using the newest token.
	degraded bool
	fallback string
}

// NewStore returns a Store backed by persistent.
func NewStore(persistent kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persistent: persistent,
		logger:     logger.With("component", "identity"),
	}
}

// DeviceID returns the persisted device identifier, generating and persisting
// one on first use. When storage is unusable an ephemeral identifier is
// generated once and reused for the lifetime of this Store.
func (s *Store) DeviceID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceID != "" {
		return s.deviceID
	}

	id, err := s.persistent.Get(ctx, kv.KeyDeviceID)
	switch {
	case err == nil && id != "":
		s.deviceID = id
		return id
	case err == nil || errors.Is(err, kv.ErrNotFound):
		id = idx.NewDeviceID()
		if err := s.persistent.Set(ctx, kv.KeyDeviceID, id); err != nil {
			s.logger.Warn("device id not persisted, using ephemeral id", "error", err)
		} else {
			s.logger.Debug("device id created", "device_id", id)
		}
	default:
		id = idx.NewDeviceID()
		s.logger.Warn("device id unreadable, using ephemeral id", "error", err)
	}

	s.deviceID = id
	return id
}

// Credential returns the current bearer credential, if any.
func (s *Store) Credential(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return s.fallback, s.fallback != ""
	}

	token, err := s.persistent.Get(ctx, kv.KeyAccessToken)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("credential unreadable, continuing unauthenticated", "error", err)
		}
		return "", false
	}
	return token, token != ""
}

// SetCredential overwrites the stored credential.
func (s *Store) SetCredential(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistent.Set(ctx, kv.KeyAccessToken, token); err != nil {
		s.logger.Warn("credential not persisted, keeping it in memory", "error", err)
		s.degraded = true
		s.fallback = token
		return
	}
	s.degraded = false
	s.fallback = ""
}

// ClearCredential removes the stored credential.
func (s *Store) ClearCredential(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistent.Delete(ctx, kv.KeyAccessToken); err != nil {
		s.logger.Warn("credential not removed from storage", "error", err)
		s.degraded = true
		s.fallback = ""
		return
	}
	s.degraded = false
	s.fallback = ""
}
