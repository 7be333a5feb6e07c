package apiclient

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/boychina/web-tracing-analysis/internal/fakeapi"
	"github.com/boychina/web-tracing-analysis/pkg/identity"
	"github.com/boychina/web-tracing-analysis/pkg/kv"
	"github.com/boychina/web-tracing-analysis/pkg/slogx"
)

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

type harness struct {
	client     *Client
	api        *fakeapi.Server
	server     *httptest.Server
	ids        *identity.Store
	persistent *kv.MemoryStore
	session    *kv.MemoryStore
	nav        *HistoryNavigator
	notices    *noticeRecorder
	metrics    *Metrics
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	api := fakeapi.New(fakeapi.Options{Logger: slogx.Discard()})
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	return newHarnessFor(t, srv, api, cfg)
}

func newHarnessFor(t *testing.T, srv *httptest.Server, api *fakeapi.Server, cfg Config) *harness {
	t.Helper()

	h := &harness{
		api:        api,
		server:     srv,
		persistent: kv.NewMemoryStore(),
		session:    kv.NewMemoryStore(),
		nav:        NewHistoryNavigator("/"),
		notices:    &noticeRecorder{},
		metrics:    NewMetrics(prometheus.NewRegistry()),
	}
	h.ids = identity.NewStore(h.persistent, slogx.Discard())

	cfg.BaseURL = srv.URL
	client, err := NewClient(cfg, h.ids, h.session,
		WithLogger(slogx.Discard()),
		WithNotifier(h.notices),
		WithNavigator(h.nav),
		WithMetrics(h.metrics),
	)
	require.NoError(t, err)
	h.client = client
	return h
}

// login signs in as the fake API's default user and returns the credential.
func (h *harness) login(t *testing.T) string {
	t.Helper()

	res, err := h.client.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	return res.AccessToken
}

func (h *harness) credential(t *testing.T) string {
	t.Helper()

	token, ok := h.ids.Credential(context.Background())
	require.True(t, ok)
	return token
}
