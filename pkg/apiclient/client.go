package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/boychina/web-tracing-analysis/pkg/identity"
	"github.com/boychina/web-tracing-analysis/pkg/kv"
)

// Config describes the console API the client talks to.
type Config struct {
	// BaseURL is prepended to every request path.
	BaseURL string

	// Timeout bounds every attempt. Default: DefaultTimeout.
	Timeout time.Duration

	// RefreshPath is the credential refresh endpoint.
	// Default: "/api/auth/refresh".
	RefreshPath string

	// RefreshTimeout bounds the refresh call. Default: DefaultRefreshTimeout.
	RefreshTimeout time.Duration

	LoginPath   string // Default: "/api/auth/login".
	LogoutPath  string // Default: "/api/auth/logout".
	DevicesPath string // Default: "/api/auth/devices".
	KickPath    string // Default: "/api/auth/kick".

	// RateLimit caps attempts per second, zero disables limiting.
	RateLimit float64
	RateBurst int

	Recovery RecoveryConfig
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RefreshPath == "" {
		c.RefreshPath = "/api/auth/refresh"
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.LoginPath == "" {
		c.LoginPath = "/api/auth/login"
	}
	if c.LogoutPath == "" {
		c.LogoutPath = "/api/auth/logout"
	}
	if c.DevicesPath == "" {
		c.DevicesPath = "/api/auth/devices"
	}
	if c.KickPath == "" {
		c.KickPath = "/api/auth/kick"
	}
	return c
}

// Option customises a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	notifier   Notifier
	navigator  Navigator
	metrics    *Metrics
}

// WithHTTPClient replaces the default transport chain. The client should
// carry a cookie jar, otherwise the refresh cookie is lost.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithNavigator sets where terminal expiry sends the user. Default: a
// HistoryNavigator starting at "/".
func WithNavigator(nav Navigator) Option {
	return func(o *options) { o.navigator = nav }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Client is the console API client. Every call goes through the same
// pipeline: decorate, send, classify, and on 401 refresh once and replay.
type Client struct {
	cfg        Config
	httpClient *http.Client
	identity   *identity.Store
	session    kv.Store

	decorator   *Decorator
	coordinator *Coordinator
	recovery    *Recovery
	notifier    Notifier
	metrics     *Metrics
	logger      *slog.Logger
}

// NewClient wires a Client. ids holds the device id and credential; session
// is the session-scoped store used for the redirect target.
func NewClient(cfg Config, ids *identity.Store, session kv.Store, opts ...Option) (*Client, error) {
	if ids == nil {
		return nil, errors.New("identity store is required")
	}
	if session == nil {
		return nil, errors.New("session store is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("base url is required")
	}
	cfg = cfg.withDefaults()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.notifier == nil {
		o.notifier = LogNotifier{Logger: o.logger}
	}
	if o.navigator == nil {
		o.navigator = NewHistoryNavigator("/")
	}
	if o.httpClient == nil {
		hc, err := newHTTPClient(cfg, o.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		o.httpClient = hc
	}

	c := &Client{
		cfg:        cfg,
		httpClient: o.httpClient,
		identity:   ids,
		session:    session,
		decorator:  NewDecorator(cfg.BaseURL, ids),
		notifier:   o.notifier,
		metrics:    o.metrics,
		logger:     o.logger.With("component", "apiclient"),
	}
	c.recovery = NewRecovery(cfg.Recovery, session, o.navigator, o.notifier, o.metrics, o.logger)
	c.coordinator = NewCoordinator(ids, RefreshFunc(c.refresh), c.recovery, cfg.RefreshTimeout, o.metrics, o.logger)

	return c, nil
}

func (c *Client) Identity() *identity.Store { return c.identity }

func (c *Client) Recovery() *Recovery { return c.recovery }

func (c *Client) Coordinator() *Coordinator { return c.coordinator }

// Do sends req through the pipeline. It returns the decoded envelope for any
// 2xx/3xx response, including envelopes whose code is not CodeSuccess; use
// Envelope.Err for those. Failures are *Error values.
func (c *Client) Do(ctx context.Context, req *Request) (*Envelope, error) {
	return c.send(ctx, req, requestContext{attempt: FirstAttempt})
}

// Get sends a GET to path.
func (c *Client) Get(ctx context.Context, path string) (*Envelope, error) {
	return c.Do(ctx, NewRequest(http.MethodGet, path))
}

// Post sends a POST to path with v as the JSON body; v may be nil.
func (c *Client) Post(ctx context.Context, path string, v any) (*Envelope, error) {
	req := NewRequest(http.MethodPost, path)
	if v != nil {
		var err error
		if req, err = NewJSONRequest(http.MethodPost, path, v); err != nil {
			failure := sendFailure("failed to encode request body", err)
			c.surface(ctx, failure)
			return nil, failure
		}
	}
	return c.Do(ctx, req)
}

// send performs one attempt of req and routes its outcome.
func (c *Client) send(ctx context.Context, req *Request, rc requestContext) (*Envelope, error) {
	httpReq, credential, err := c.decorator.Decorate(ctx, req)
	if err != nil {
		var failure *Error
		if !errors.As(err, &failure) {
			failure = sendFailure("request could not be built", err)
		}
		c.metrics.outcome(failure.Kind.String())
		c.surface(ctx, failure)
		return nil, failure
	}
	rc.credential = credential

	var body []byte
	resp, err := c.httpClient.Do(httpReq)
	if err == nil {
		body, err = readBody(resp)
	}

	failure := classify(resp, body, err)
	if failure == nil {
		env, derr := decodeEnvelope(body)
		if derr == nil {
			c.metrics.outcome("success")
			return env, nil
		}
		failure = &Error{
			Kind:       KindServerError,
			StatusCode: resp.StatusCode,
			Message:    "malformed response",
			Err:        derr,
		}
	}
	c.metrics.outcome(failure.Kind.String())

	if failure.Kind == KindUnauthorized && !rc.noRefresh {
		return c.coordinator.handleUnauthorized(ctx, req, rc, failure, c.send)
	}

	c.surface(ctx, failure)
	return nil, failure
}

// surface reports a failure to the user. Cancellation by the caller is not
// something the user needs to be told about.
func (c *Client) surface(ctx context.Context, failure *Error) {
	if errors.Is(failure.Err, context.Canceled) {
		c.logger.Debug("request canceled", "kind", failure.Kind.String())
		return
	}
	if failure.Kind == KindUnauthorized {
		return
	}

	c.logger.Warn("request failed",
		"kind", failure.Kind.String(),
		"status", failure.StatusCode,
		"error", failure.Error(),
	)
	c.notifier.Notify(ctx, Notice{Level: LevelError, Kind: failure.Kind, Message: failure.Message})
}

type refreshData struct {
	AccessToken string `json:"accessToken"`
}

// refresh calls the refresh endpoint. It carries no bearer credential; the
// server identifies the session by the RT cookie in the jar.
func (c *Client) refresh(ctx context.Context) (string, error) {
	httpReq, _, err := c.decorator.decorate(ctx, NewRequest(http.MethodPost, c.cfg.RefreshPath), false)
	if err != nil {
		return "", refreshFailure("refresh request could not be built", 0, err)
	}

	var body []byte
	resp, err := c.httpClient.Do(httpReq)
	if err == nil {
		body, err = readBody(resp)
	}
	if failure := classify(resp, body, err); failure != nil {
		return "", refreshFailure("refresh rejected", failure.StatusCode, failure)
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return "", refreshFailure("malformed refresh response", resp.StatusCode, err)
	}
	data, err := DecodeData[refreshData](env)
	if err != nil {
		return "", refreshFailure("malformed refresh response", resp.StatusCode, err)
	}
	if data.AccessToken == "" {
		return "", refreshFailure("refresh response carried no access token", resp.StatusCode, env.Err())
	}
	return data.AccessToken, nil
}

func refreshFailure(msg string, status int, err error) *Error {
	return &Error{Kind: KindRefreshFailure, StatusCode: status, Message: msg, Err: err}
}
