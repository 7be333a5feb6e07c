// Package redis is a kv driver for deployments where several probe processes
// share one device identity and credential.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/boychina/web-tracing-analysis/pkg/kv"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "webtrace:"

type Store struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

type Options struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key. Default: "webtrace:".
	Prefix string

	// TTL bounds how long values live. Zero keeps them forever.
	TTL time.Duration
}

// NewStore connects to redis and verifies the connection with PING.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return newStore(client, opts), nil
}

func newStore(client *goredis.Client, opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", &kv.OpError{Op: "get", Key: key, Err: err}
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return &kv.OpError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return &kv.OpError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }
