package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"WEBTRACE_BASE_URL", "WEBTRACE_TIMEOUT", "WEBTRACE_REFRESH_TIMEOUT", "WEBTRACE_KV_DRIVER",
		"WEBTRACE_RATE_LIMIT_RPS", "WEBTRACE_PROBE_PATHS", "WEBTRACE_PROBE_INTERVAL", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	require.Empty(t, cfg.BaseURL)
	require.Equal(t, 10*time.Second, cfg.Timeout)
	require.Equal(t, 5*time.Second, cfg.RefreshTimeout)
	require.Equal(t, "/login", cfg.LoginPath)
	require.Equal(t, "sqlite", cfg.KVDriver)
	require.Equal(t, "webtrace.db", cfg.DatabaseFile)
	require.Zero(t, cfg.RateLimitRPS)
	require.Equal(t, []string{"/api/auth/devices"}, cfg.ProbePaths)
	require.Zero(t, cfg.ProbeInterval)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WEBTRACE_BASE_URL", "https://console.example.com")
	t.Setenv("WEBTRACE_TIMEOUT", "2500")
	t.Setenv("WEBTRACE_REFRESH_TIMEOUT", "3s")
	t.Setenv("WEBTRACE_KV_DRIVER", "redis")
	t.Setenv("WEBTRACE_RATE_LIMIT_RPS", "2.5")
	t.Setenv("WEBTRACE_RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("WEBTRACE_PROBE_PATHS", " /api/a, ,/api/b ")
	t.Setenv("WEBTRACE_PROBE_INTERVAL", "1m")

	cfg := LoadConfig()
	require.Equal(t, "https://console.example.com", cfg.BaseURL)
	require.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	require.Equal(t, 3*time.Second, cfg.RefreshTimeout)
	require.Equal(t, "redis", cfg.KVDriver)
	require.Equal(t, 2.5, cfg.RateLimitRPS)
	require.Equal(t, 1, cfg.RateLimitBurst)
	require.Equal(t, []string{"/api/a", "/api/b"}, cfg.ProbePaths)
	require.Equal(t, time.Minute, cfg.ProbeInterval)
}
