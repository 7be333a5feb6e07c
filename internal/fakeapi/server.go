// Package fakeapi is an in-process stand-in for the console's auth API. It
// issues short-lived JWT access tokens and rotating opaque refresh tokens in
// an RT cookie, and protects everything else under /api/ with a bearer check
// that answers 401 {"code":401,"msg":"unauthorized"}.
//
// Tests drive it through the knobs on Server: expiring access tokens,
// revoking sessions, holding refresh calls, and counting what arrived.
package fakeapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boychina/web-tracing-analysis/pkg/cryptox"
	"github.com/boychina/web-tracing-analysis/pkg/httpx"
)

const (
	refreshCookie = "RT"

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

type Options struct {
	// Users maps username to password. Default: {"admin": "admin123"}.
	Users map[string]string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// LoginLimit guards the sign in endpoint. Zero value disables it.
	LoginLimit httpx.RateLimitConfig

	Logger *slog.Logger
}

type user struct {
	id       int64
	username string
	password string
	role     string
}

type session struct {
	id          int64
	userID      int64
	deviceID    string
	ip          string
	userAgent   string
	createdAt   time.Time
	lastRefresh time.Time
	expiresAt   time.Time
	revoked     bool
}

// Seen is one request as the server received it.
type Seen struct {
	Method        string
	Path          string
	Authorization string
	DeviceID      string
	RequestID     string
}

type Server struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
	handler    http.Handler

	mu         sync.Mutex
	users      map[string]*user
	sessions   map[string]*session // by refresh token fingerprint
	nextID     int64
	generation int64
	seen       []Seen

	refreshGate   chan struct{}
	refreshStatus int

	refreshCalls atomic.Int64
}

func New(opts Options) *Server {
	if opts.Users == nil {
		opts.Users = map[string]string{"admin": "admin123"}
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = defaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		secret:     []byte(mustToken()),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		logger:     opts.Logger,
		users:      make(map[string]*user),
		sessions:   make(map[string]*session),
	}

	var id int64
	for name, password := range opts.Users {
		id++
		role := "USER"
		if name == "admin" {
			role = "SUPER_ADMIN"
		}
		s.users[name] = &user{id: id, username: name, password: password, role: role}
	}

	mux := http.NewServeMux()

	login := http.Handler(http.HandlerFunc(s.handleLogin))
	if opts.LoginLimit.RequestsPerWindow > 0 {
		login = httpx.Chain(login, httpx.RateLimit(opts.LoginLimit, httpx.IPKeyExtractor))
	}
	mux.Handle("POST /api/auth/login", login)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	protected := httpx.Bearer(s.verify)
	mux.Handle("GET /api/auth/devices", protected(http.HandlerFunc(s.handleDevices)))
	mux.Handle("POST /api/auth/kick", protected(http.HandlerFunc(s.handleKick)))
	mux.Handle("GET /api/status/{code}", protected(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/", protected(http.HandlerFunc(s.handleEcho)))

	s.handler = httpx.Chain(mux, httpx.RequestLogger(opts.Logger), s.record)
	return s
}

func mustToken() string {
	token, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		panic(err)
	}
	return token
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.seen = append(s.seen, Seen{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			DeviceID:      r.Header.Get("X-Device-Id"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Test knobs
// ============================================================================

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeSessions revokes every refresh token, so the next refresh fails.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.revoked = true
	}
}

// HoldRefresh makes refresh calls block until the returned func is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailRefresh makes refresh calls answer with the given HTTP status and a
// matching envelope. Zero restores normal behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// RefreshCalls is the number of refresh requests received.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// Seen returns every request received, in arrival order.
func (s *Server) Seen() []Seen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Seen(nil), s.seen...)
}

// SeenPath returns the requests received for path.
func (s *Server) SeenPath(path string) []Seen {
	var out []Seen
	for _, r := range s.Seen() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// ============================================================================
// Tokens
// ============================================================================

type accessClaims struct {
	jwt.RegisteredClaims

	Username   string `json:"username"`
	Role       string `json:"role"`
	DeviceID   string `json:"did,omitempty"`
	Generation int64  `json:"gen"`
}

func (s *Server) issueAccessToken(u *user, deviceID string) (string, error) {
	now := time.Now()

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        mustToken(),
		},
		Username:   u.username,
		Role:       u.role,
		DeviceID:   deviceID,
		Generation: gen,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

var errStaleToken = errors.New("access token was expired by the server")

func (s *Server) verify(token string) (string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return "", errStaleToken
	}
	return claims.Subject, nil
}

// startSession stores a new refresh token and sets it as the RT cookie.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *user) error {
	rt, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	s.nextID++
	s.sessions[cryptox.FingerprintToken(rt)] = &session{
		id:          s.nextID,
		userID:      u.id,
		deviceID:    r.Header.Get("X-Device-Id"),
		ip:          httpx.IPKeyExtractor(r),
		userAgent:   r.UserAgent(),
		createdAt:   now,
		lastRefresh: now,
		expiresAt:   now.Add(s.refreshTTL),
	}
	s.mu.Unlock()

	setRefreshCookie(w, rt, s.refreshTTL)
	return nil
}

func setRefreshCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (s *Server) userByID(id int64) *user {
	for _, u := range s.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		httpx.WriteCode(w, http.StatusBadRequest, "incomplete parameters")
		return
	}

	s.mu.Lock()
	u, ok := s.users[body.Username]
	s.mu.Unlock()
	if !ok || u.password != body.Password {
		httpx.WriteCode(w, http.StatusBadRequest, "wrong username or password")
		return
	}

	at, err := s.issueAccessToken(u, r.Header.Get("X-Device-Id"))
	if err == nil {
		err = s.startSession(w, r, u)
	}
	if err != nil {
		s.logger.Error("failed to issue tokens", "err", err)
		httpx.WriteStatus(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpx.WriteOK(w, map[string]string{"accessToken": at, "redirect": "./index.html"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	gate, status := s.refreshGate, s.refreshStatus
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		httpx.WriteStatus(w, status, http.StatusText(status))
		return
	}

	cookie, err := r.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		httpx.WriteCode(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := time.Now()
	fp := cryptox.FingerprintToken(cookie.Value)

	s.mu.Lock()
	sess, ok := s.sessions[fp]
	if !ok || sess.revoked || now.After(sess.expiresAt) {
		s.mu.Unlock()
		httpx.WriteCode(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	// Rotate: the presented token is spent.
	delete(s.sessions, fp)
	u := s.userByID(sess.userID)
	s.mu.Unlock()

	if u == nil {
		httpx.WriteCode(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	next, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		httpx.WriteStatus(w, http.StatusInternalServerError, "internal error")
		return
	}
	at, err := s.issueAccessToken(u, r.Header.Get("X-Device-Id"))
	if err != nil {
		httpx.WriteStatus(w, http.StatusInternalServerError, "internal error")
		return
	}

	sess.lastRefresh = now
	s.mu.Lock()
	s.sessions[cryptox.FingerprintToken(next)] = sess
	s.mu.Unlock()

	setRefreshCookie(w, next, s.refreshTTL)
	httpx.WriteOK(w, map[string]string{"accessToken": at})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		s.mu.Lock()
		if sess, ok := s.sessions[cryptox.FingerprintToken(cookie.Value)]; ok {
			sess.revoked = true
		}
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: refreshCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1})
	httpx.WriteOK(w, nil)
}

type deviceRow struct {
	ID            int64  `json:"id"`
	DeviceID      string `json:"deviceId"`
	IP            string `json:"ip,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
	CreatedAt     string `json:"createdAt"`
	LastRefreshAt string `json:"lastRefreshAt"`
	ExpiresAt     string `json:"expiresAt"`
	Revoked       bool   `json:"revoked"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(httpx.SubjectFromContext(r.Context()), 10, 64)

	s.mu.Lock()
	rows := make([]deviceRow, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.userID != userID || sess.revoked {
			continue
		}
		rows = append(rows, deviceRow{
			ID:            sess.id,
			DeviceID:      sess.deviceID,
			IP:            sess.ip,
			UserAgent:     sess.userAgent,
			CreatedAt:     sess.createdAt.Format(time.RFC3339),
			LastRefreshAt: sess.lastRefresh.Format(time.RFC3339),
			ExpiresAt:     sess.expiresAt.Format(time.RFC3339),
		})
	}
	s.mu.Unlock()

	httpx.WriteOK(w, rows)
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(httpx.SubjectFromContext(r.Context()), 10, 64)

	var body struct {
		TokenID *int64 `json:"tokenId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TokenID == nil {
		httpx.WriteCode(w, http.StatusBadRequest, "tokenId required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.id == *body.TokenID && sess.userID == userID && !sess.revoked {
			sess.revoked = true
			httpx.WriteOK(w, nil)
			return
		}
	}
	httpx.WriteCode(w, http.StatusBadRequest, "bad request")
}

// handleStatus answers with the status named in the path, for exercising
// client error handling.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		httpx.WriteStatus(w, http.StatusBadRequest, "invalid status")
		return
	}
	if code < http.StatusBadRequest {
		httpx.WriteOK(w, map[string]int{"status": code})
		return
	}
	httpx.WriteJSON(w, code, map[string]any{"code": code, "message": "status " + strconv.Itoa(code)})
}

type echo struct {
	Method  string          `json:"method"`
	Path    string          `json:"path"`
	Subject string          `json:"subject"`
	Body    json.RawMessage `json:"body,omitempty"`
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	httpx.WriteOK(w, echo{
		Method:  r.Method,
		Path:    r.URL.Path,
		Subject: httpx.SubjectFromContext(r.Context()),
		Body:    body,
	})
}
