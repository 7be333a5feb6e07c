package apiclient

import (
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/boychina/web-tracing-analysis/pkg/slogx"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// rateLimitedTransport waits for a token before every attempt, so a burst of
// replays after a refresh does not hammer the server.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// newHTTPClient builds the default transport chain: cookie jar (the refresh
// cookie travels out of band), request logging and optional rate limiting.
func newHTTPClient(cfg Config, logger *slog.Logger) (*http.Client, error) {
	jar, err := newCookieJar()
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = slogx.NewTransport(http.DefaultTransport.(*http.Transport).Clone(), logger)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		rt = &rateLimitedTransport{base: rt, limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: rt,
		Jar:       jar,
		Timeout:   timeout,
	}, nil
}

func newCookieJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// DefaultTimeout matches the console's axios instance.
const DefaultTimeout = 10 * time.Second
