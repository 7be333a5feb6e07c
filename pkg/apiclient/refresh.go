package apiclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boychina/web-tracing-analysis/pkg/identity"
)

// DefaultRefreshTimeout bounds the dedicated refresh call.
const DefaultRefreshTimeout = 5 * time.Second

// Refresher exchanges the out-of-band session reference for a new bearer
// credential.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) (string, error)

func (f RefreshFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// State of the Coordinator.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// replayFunc sends req again through the full pipeline.
type replayFunc func(ctx context.Context, req *Request, rc requestContext) (*Envelope, error)

type settlement struct {
	env *Envelope
	err error
}

// pendingRequest is a request parked while a refresh is in flight. It is
// settled exactly once, by the goroutine that ran the refresh.
type pendingRequest struct {
	ctx          context.Context
	req          *Request
	unauthorized *Error
	replay       replayFunc
	done         chan settlement
}

// Stats is a snapshot of coordinator activity.
type Stats struct {
	State     State
	Pending   int
	Refreshes int64
	Queued    int64
}

// Coordinator makes sure at most one refresh call is in flight. Requests that
// fail with 401 while it is refreshing are queued and replayed (or rejected)
// once the refresh settles.
type Coordinator struct {
	identity  *identity.Store
	refresher Refresher
	recovery  *Recovery
	metrics   *Metrics
	logger    *slog.Logger
	timeout   time.Duration

	mu         sync.Mutex
	refreshing bool
	queue      []*pendingRequest

	refreshes atomic.Int64
	queued    atomic.Int64
}

func NewCoordinator(
	ids *identity.Store,
	refresher Refresher,
	recovery *Recovery,
	timeout time.Duration,
	metrics *Metrics,
	logger *slog.Logger,
) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		identity:  ids,
		refresher: refresher,
		recovery:  recovery,
		metrics:   metrics,
		logger:    logger.With("component", "refresh"),
		timeout:   timeout,
	}
}

// Stats returns a snapshot of the coordinator.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	state := StateIdle
	if c.refreshing {
		state = StateRefreshing
	}
	pending := len(c.queue)
	c.mu.Unlock()

	return Stats{
		State:     state,
		Pending:   pending,
		Refreshes: c.refreshes.Load(),
		Queued:    c.queued.Load(),
	}
}

// handleUnauthorized resolves a 401 for req. The returned outcome is either
// the replay's outcome or cause itself.
func (c *Coordinator) handleUnauthorized(
	ctx context.Context,
	req *Request,
	rc requestContext,
	cause *Error,
	replay replayFunc,
) (*Envelope, error) {
	// A replayed request that is still rejected will not be rescued by
	// another refresh.
	if rc.attempt.Retried() {
		c.logger.Info("request rejected after replay, session is over",
			"method", req.Method, "path", req.Path)
		c.terminal(ctx, cause)
		return nil, cause
	}

	replayCtx := requestContext{attempt: ReplayAttempt}

	c.mu.Lock()
	if c.refreshing {
		p := &pendingRequest{
			ctx:          ctx,
			req:          req,
			unauthorized: cause,
			replay:       replay,
			done:         make(chan settlement, 1),
		}
		c.queue = append(c.queue, p)
		c.mu.Unlock()

		c.queued.Add(1)
		c.metrics.queued()

		s := <-p.done
		return s.env, s.err
	}

	// The credential changed after this request was sent, so a refresh
	// already happened; just send it again with the new one.
	if current, ok := c.identity.Credential(ctx); ok && current != rc.credential {
		c.mu.Unlock()
		return replay(ctx, req, replayCtx)
	}

	c.refreshing = true
	c.mu.Unlock()

	token, err := c.refresh(ctx)
	if err != nil {
		c.fail(ctx, err)
		return nil, cause
	}

	c.succeed(ctx, token)
	return replay(ctx, req, replayCtx)
}

// refresh issues the refresh call on a context detached from the trigger's
// cancellation but bounded by the coordinator's timeout.
func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	c.refreshes.Add(1)
	token, err := c.refresher.Refresh(ctx)
	if err == nil && token == "" {
		err = &Error{Kind: KindRefreshFailure, Message: "refresh response carried no access token"}
	}
	c.metrics.refresh(err == nil)
	return token, err
}

// succeed stores the new credential, then leaves the refreshing state and
// replays every queued request in enqueue order.
func (c *Coordinator) succeed(ctx context.Context, token string) {
	c.identity.SetCredential(ctx, token)
	if info, err := identity.Inspect(token); err == nil {
		c.logger.Info("credential refreshed", "expires_in", info.ExpiresIn(time.Now()).String())
	} else {
		c.logger.Info("credential refreshed")
	}

	queue := c.drain()
	for _, p := range queue {
		go func(p *pendingRequest) {
			env, err := p.replay(p.ctx, p.req, requestContext{attempt: ReplayAttempt})
			p.done <- settlement{env: env, err: err}
		}(p)
	}
}

// fail clears the credential, rejects every queued request with its own 401
// and hands over to recovery once.
func (c *Coordinator) fail(ctx context.Context, err error) {
	c.logger.Warn("credential refresh failed", "error", err)

	c.identity.ClearCredential(ctx)
	queue := c.drain()
	for _, p := range queue {
		p.done <- settlement{err: p.unauthorized}
	}
	c.recovery.EnterTerminalExpiry(ctx, err)
}

func (c *Coordinator) drain() []*pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := c.queue
	c.queue = nil
	c.refreshing = false
	return queue
}

func (c *Coordinator) terminal(ctx context.Context, cause error) {
	c.identity.ClearCredential(ctx)
	c.recovery.EnterTerminalExpiry(ctx, cause)
}
