package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/boychina/web-tracing-analysis/pkg/idx"
	"github.com/boychina/web-tracing-analysis/pkg/slogx"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h with mws; the first middleware is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RequestLogger logs requests and attaches a contextual logger into request
// context.
func RequestLogger(base *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = idx.NewRequestID()
			}

			ctx := slogx.WithRequestID(slogx.WithContext(r.Context(), base), reqID)
			logger := slogx.FromContext(ctx).With(
				"method", r.Method,
				"path", r.URL.Path,
				"device_id", r.Header.Get("X-Device-Id"),
			)

			next.ServeHTTP(rw, r.WithContext(ctx))

			logger.Info("http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// VerifyFunc validates a bearer token and returns its subject.
type VerifyFunc func(token string) (subject string, err error)

type ctxKey string

const ctxKeySubject ctxKey = "subject"

// Bearer rejects requests without a valid bearer token with HTTP 401 and the
// envelope {"code":401,"msg":"unauthorized"}.
func Bearer(verify VerifyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				WriteStatus(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, err := verify(strings.TrimSpace(strings.TrimPrefix(authz, "Bearer ")))
			if err != nil {
				slogx.FromContext(r.Context()).Debug("bearer rejected", "err", err)
				WriteStatus(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the subject Bearer stored for the request.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySubject).(string)
	return s
}
