package kv

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/boychina/web-tracing-analysis/pkg/cryptox"
)

// Sealed encrypts values before handing them to the wrapped store. Keys stay
// in clear text so drivers can still index them.
type Sealed struct {
	next   Store
	sealer *cryptox.Sealer
}

func NewSealed(next Store, sealer *cryptox.Sealer) *Sealed {
	return &Sealed{next: next, sealer: sealer}
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.next.Get(ctx, key)
	if err != nil {
		return "", err
	}

	data, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil {
		return "", &OpError{Op: "get", Key: key, Err: fmt.Errorf("failed to decode sealed value: %w", err)}
	}

	plain, err := s.sealer.Open(data, []byte(key))
	if err != nil {
		return "", &OpError{Op: "get", Key: key, Err: err}
	}
	return string(plain), nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	sealed, err := s.sealer.Seal([]byte(value), []byte(key))
	if err != nil {
		return &OpError{Op: "set", Key: key, Err: err}
	}
	return s.next.Set(ctx, key, base64.RawStdEncoding.EncodeToString(sealed))
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}

func (s *Sealed) Close() error { return s.next.Close() }
