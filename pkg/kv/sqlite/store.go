// Package sqlite is the persistent kv driver. One database file plays the role
// a browser profile's local storage plays for the web console.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/boychina/web-tracing-analysis/pkg/kv"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens dsn and applies pending migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single writer avoids SQLITE_BUSY between concurrent credential writes
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dsn: dsn}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return "", mapNotFound("get", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return &kv.OpError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return &kv.OpError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func mapNotFound(op, key string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return kv.ErrNotFound
	}
	return &kv.OpError{Op: op, Key: key, Err: err}
}
