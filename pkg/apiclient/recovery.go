package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/boychina/web-tracing-analysis/pkg/kv"
)

// Navigator abstracts the host's notion of "where the user is" and of moving
// them somewhere else.
type Navigator interface {
	// Location returns the current location: path, query and fragment.
	Location() string

	Navigate(ctx context.Context, target string) error
}

type RecoveryConfig struct {
	// LoginPath is the re-authentication entry point. Default: "/login".
	LoginPath string

	// DefaultLanding is used when no redirect target survives. Default: "/".
	DefaultLanding string

	// OwnedKeys are session keys cleared on terminal expiry.
	// Default: kv.KeyTabs.
	OwnedKeys []string
}

func (c RecoveryConfig) withDefaults() RecoveryConfig {
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.DefaultLanding == "" {
		c.DefaultLanding = "/"
	}
	if c.OwnedKeys == nil {
		c.OwnedKeys = []string{kv.KeyTabs}
	}
	return c
}

// Recovery handles terminal session expiry: it remembers where the user was,
// drops stale navigation state and sends them to sign in again, at most once
// per lifetime.
type Recovery struct {
	cfg      RecoveryConfig
	session  kv.Store
	nav      Navigator
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger

	fired atomic.Bool

	mu       sync.Mutex
	cleanups []func()
}

func NewRecovery(
	cfg RecoveryConfig,
	session kv.Store,
	nav Navigator,
	notifier Notifier,
	metrics *Metrics,
	logger *slog.Logger,
) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Recovery{
		cfg:      cfg.withDefaults(),
		session:  session,
		nav:      nav,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With("component", "recovery"),
	}
}

// OnExpiry registers fn to run during terminal expiry, for in-memory caches
// owned by the caller.
func (r *Recovery) OnExpiry(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, fn)
}

// EnterTerminalExpiry performs the redirect to re-authentication. Only the
// first call of a lifetime acts; it reports whether this call did.
func (r *Recovery) EnterTerminalExpiry(ctx context.Context, cause error) bool {
	if !r.fired.CompareAndSwap(false, true) {
		r.logger.Debug("terminal expiry already handled", "cause", cause)
		return false
	}

	location := r.nav.Location()
	if err := r.session.Set(ctx, kv.KeyRedirect, location); err != nil {
		r.logger.Warn("redirect target not saved", "error", err)
	}

	for _, key := range r.cfg.OwnedKeys {
		if err := r.session.Delete(ctx, key); err != nil {
			r.logger.Warn("session key not cleared", "key", key, "error", err)
		}
	}

	r.mu.Lock()
	cleanups := append([]func(){}, r.cleanups...)
	r.mu.Unlock()
	for _, fn := range cleanups {
		fn()
	}

	r.notifier.Notify(ctx, Notice{
		Level:   LevelWarning,
		Kind:    KindUnauthorized,
		Message: messageFor(KindUnauthorized, 0),
	})

	target := LoginURL(r.cfg.LoginPath, location)
	r.logger.Info("session expired, redirecting to sign in", "target", target, "cause", cause)
	r.metrics.terminal()

	if err := r.nav.Navigate(ctx, target); err != nil {
		r.logger.Error("navigation to sign in failed", "error", err)
	}
	return true
}

// Fired reports whether terminal expiry has been handled in this lifetime.
func (r *Recovery) Fired() bool { return r.fired.Load() }

// Reset starts a new lifetime, typically after a successful sign in.
func (r *Recovery) Reset() { r.fired.Store(false) }

// ConsumeRedirect returns where the entry point should send the user after
// signing in. The "redirect" query parameter wins over the saved session
// value; the saved value is deleted either way.
func (r *Recovery) ConsumeRedirect(ctx context.Context, query url.Values) string {
	stored, err := r.session.Get(ctx, kv.KeyRedirect)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		r.logger.Warn("redirect target unreadable", "error", err)
	}
	if err := r.session.Delete(ctx, kv.KeyRedirect); err != nil {
		r.logger.Warn("redirect target not cleared", "error", err)
	}

	for _, candidate := range []string{query.Get("redirect"), stored} {
		if isLocalTarget(candidate) {
			return candidate
		}
	}
	return r.cfg.DefaultLanding
}

// LoginURL encodes location as the redirect parameter of loginPath.
func LoginURL(loginPath, location string) string {
	if location == "" {
		return loginPath
	}
	sep := "?"
	if strings.Contains(loginPath, "?") {
		sep = "&"
	}
	return loginPath + sep + "redirect=" + url.QueryEscape(location)
}

// isLocalTarget accepts same-origin paths only, so a crafted redirect cannot
// send the user off site.
func isLocalTarget(target string) bool {
	if !strings.HasPrefix(target, "/") {
		return false
	}
	return !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\")
}

// HistoryNavigator is an in-process Navigator that records every navigation.
// Headless hosts use it and inspect Last to find the sign in URL.
type HistoryNavigator struct {
	mu       sync.Mutex
	location string
	history  []string
}

func NewHistoryNavigator(location string) *HistoryNavigator {
	return &HistoryNavigator{location: location}
}

func (n *HistoryNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// Visit changes the current location without recording a navigation.
func (n *HistoryNavigator) Visit(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = location
}

func (n *HistoryNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = target
	n.history = append(n.history, target)
	return nil
}

// History returns a copy of all navigations.
func (n *HistoryNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}

// Last returns the latest navigation target, "" when none happened.
func (n *HistoryNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.history) == 0 {
		return ""
	}
	return n.history[len(n.history)-1]
}
