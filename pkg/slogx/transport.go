package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport logs one line per outgoing HTTP attempt. It is the client-side
// counterpart of a server request logging middleware.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	logger := FromContext(req.Context(), t.Logger).With(
		"req_id", req.Header.Get("X-Request-ID"),
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Debug("http_request",
			"error", err,
			"duration_ms", duration,
		)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
