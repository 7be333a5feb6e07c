package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boychina/web-tracing-analysis/internal/fakeapi"
	"github.com/boychina/web-tracing-analysis/pkg/kv"
	"github.com/boychina/web-tracing-analysis/pkg/slogx"
)

func testConfig(t *testing.T, baseURL string) Config {
	t.Helper()
	return Config{
		BaseURL:      baseURL,
		LoginPath:    "/login",
		KVDriver:     "sqlite",
		DatabaseFile: filepath.Join(t.TempDir(), "webtrace.db"),
		MasterKey:    "test-master-key",
		Username:     "admin",
		Password:     "admin123",
		ProbePaths:   []string{"/api/auth/devices", "/api/application/list"},
		LogLevel:     "error",
		LogFormat:    "text",
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{KVDriver: "memory"})
	require.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{BaseURL: "http://localhost", KVDriver: "etcd"})
	require.ErrorContains(t, err, "unknown kv driver")
}

func TestRunSignsInAndProbes(t *testing.T) {
	api := fakeapi.New(fakeapi.Options{Logger: slogx.Discard()})
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	application, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, application.Run(context.Background()))
	require.Len(t, api.SeenPath("/api/auth/login"), 1)
	require.Len(t, api.SeenPath("/api/auth/devices"), 1)
	require.Len(t, api.SeenPath("/api/application/list"), 1)

	// The credential survived in the sealed sqlite store: a second run
	// does not sign in again and keeps the same device id.
	deviceID := api.SeenPath("/api/auth/devices")[0].DeviceID

	again, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, again.Run(context.Background()))
	require.Len(t, api.SeenPath("/api/auth/login"), 1)
	require.Equal(t, deviceID, api.SeenPath("/api/auth/devices")[1].DeviceID)
}

func TestRunOnceReportsExpiredSession(t *testing.T) {
	api := fakeapi.New(fakeapi.Options{Logger: slogx.Discard()})
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	cfg.KVDriver = "memory"
	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(application.Shutdown)

	require.NoError(t, application.ensureSignedIn(context.Background()))
	api.ExpireAccessTokens()
	api.RevokeSessions()

	err = application.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, "/login?redirect=%2Fapi%2Fauth%2Fdevices", application.navigator.Last())

	_, ok := application.identity.Credential(context.Background())
	require.False(t, ok)

	stored, err := application.session.Get(context.Background(), kv.KeyRedirect)
	require.NoError(t, err)
	require.Equal(t, "/api/auth/devices", stored)
}
