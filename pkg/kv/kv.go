// Package kv defines the small string key-value contract the client keeps its
// state in. Two scopes exist: a persistent store (device identity, bearer
// credential) and a session store that lives as long as one client process
// (redirect target, navigation keys).
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("kv: not found")
	ErrClosed   = errors.New("kv: store closed")
)

// Well-known keys shared by the identity store and the recovery hook.
const (
	KeyDeviceID    = "webtrace.device_id"
	KeyAccessToken = "webtrace.access_token"
	KeyRedirect    = "webtrace.redirect"
	KeyTabs        = "webtrace.tabs"
)

// Store is implemented by every driver (memory, sqlite, redis).
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or overwrites key.
	Set(ctx context.Context, key, value string) error

	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error

	Close() error
}

// OpError records which operation on which key failed.
type OpError struct {
	Op  string // "get", "set", "delete"
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("kv %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
