// Package idx generates the ULID strings used as device identities and
// per-attempt request IDs. A ULID carries a millisecond timestamp followed by
// 80 bits of entropy, which keeps two devices created in the same millisecond
// from colliding.
package idx

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	globalOnce sync.Once
	global     *generator
)

// generator serialises access to a monotonic entropy source, which is not
// safe for concurrent use on its own.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) at(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

func shared() *generator {
	globalOnce.Do(func() {
		global = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
	})
	return global
}

// NewDeviceID returns a fresh device identifier.
func NewDeviceID() string {
	return shared().at(time.Now().UTC())
}

// NewRequestID returns an identifier for a single request attempt.
func NewRequestID() string {
	return shared().at(time.Now().UTC())
}

// NewAt generates an identifier stamped with t, useful for tests.
func NewAt(t time.Time) string {
	return shared().at(t.UTC())
}

// Valid reports whether s is a canonical ULID string.
func Valid(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Issued returns the timestamp embedded in s, or the zero time if s is not a
// valid identifier.
func Issued(s string) time.Time {
	u, err := ulid.ParseStrict(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
