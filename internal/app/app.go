// Package app wires the console API client from environment configuration
// and runs the probe loop used by cmd/webtrace.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boychina/web-tracing-analysis/pkg/apiclient"
	"github.com/boychina/web-tracing-analysis/pkg/cryptox"
	"github.com/boychina/web-tracing-analysis/pkg/identity"
	"github.com/boychina/web-tracing-analysis/pkg/kv"
	"github.com/boychina/web-tracing-analysis/pkg/kv/redis"
	"github.com/boychina/web-tracing-analysis/pkg/kv/sqlite"
	"github.com/boychina/web-tracing-analysis/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"

	sealInfo = "webtrace kv v1"
)

// Application holds the client and everything it depends on.
type Application struct {
	cfg    Config
	logger *slog.Logger

	persistent kv.Store
	session    kv.Store
	identity   *identity.Store
	navigator  *apiclient.HistoryNavigator
	registry   *prometheus.Registry
	client     *apiclient.Client

	metricsServer *http.Server
}

// New creates an Application with all dependencies initialised.
func New(cfg Config, opts ...apiclient.Option) (*Application, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("WEBTRACE_BASE_URL is required")
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "webtrace-probe",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		session:   kv.NewMemoryStore(),
		navigator: apiclient.NewHistoryNavigator("/"),
		registry:  prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	persistent, err := app.openStore(context.Background())
	if err != nil {
		return nil, err
	}
	app.persistent = persistent
	app.identity = identity.NewStore(persistent, app.logger)

	opts = append([]apiclient.Option{
		apiclient.WithLogger(app.logger),
		apiclient.WithNavigator(app.navigator),
		apiclient.WithMetrics(apiclient.NewMetrics(app.registry)),
	}, opts...)

	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:        cfg.BaseURL,
		Timeout:        cfg.Timeout,
		RefreshTimeout: cfg.RefreshTimeout,
		RateLimit:      cfg.RateLimitRPS,
		RateBurst:      cfg.RateLimitBurst,
		Recovery:       apiclient.RecoveryConfig{LoginPath: cfg.LoginPath},
	}, app.identity, app.session, opts...)
	if err != nil {
		_ = persistent.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	app.client = client

	return app, nil
}

// openStore opens the configured persistent driver, sealed when a master
// key is configured.
func (app *Application) openStore(ctx context.Context) (kv.Store, error) {
	var (
		store kv.Store
		err   error
	)

	switch app.cfg.KVDriver {
	case "memory":
		store = kv.NewMemoryStore()
	case "sqlite", "":
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		store, err = sqlite.NewStore(dsn)
	case "redis":
		store, err = redis.NewStore(ctx, redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
		})
	default:
		return nil, fmt.Errorf("unknown kv driver %q", app.cfg.KVDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", app.cfg.KVDriver, err)
	}
	app.logger.Info("persistent store opened", "driver", app.cfg.KVDriver)

	if app.cfg.MasterKey == "" {
		return store, nil
	}

	sealer, err := cryptox.NewSealer([]byte(app.cfg.MasterKey), sealInfo)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	return kv.NewSealed(store, sealer), nil
}

func (app *Application) Client() *apiclient.Client { return app.client }

// Run signs in if needed, then probes until the context is done or a signal
// arrives. With a zero ProbeInterval it runs a single cycle.
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.Shutdown()

	if app.cfg.MetricsAddr != "" {
		app.startMetrics()
	}

	app.logger.Info("probe starting",
		"base_url", app.cfg.BaseURL,
		"device_id", app.identity.DeviceID(ctx),
		"version", BuildVersion,
	)

	if err := app.ensureSignedIn(ctx); err != nil {
		return err
	}

	if err := app.RunOnce(ctx); err != nil || app.cfg.ProbeInterval <= 0 {
		return err
	}

	ticker := time.NewTicker(app.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			app.logger.Info("shutdown signal received")
			return nil
		case <-ticker.C:
			if err := app.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (app *Application) ensureSignedIn(ctx context.Context) error {
	if _, ok := app.identity.Credential(ctx); ok {
		return nil
	}
	if app.cfg.Username == "" {
		app.logger.Warn("no stored credential and no username configured, probing unauthenticated")
		return nil
	}

	res, err := app.client.Login(ctx, app.cfg.Username, app.cfg.Password)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}
	if info, err := identity.Inspect(res.AccessToken); err == nil {
		app.logger.Info("signed in", "subject", info.Subject, "role", info.Role, "expires_at", info.ExpiresAt)
	}
	return nil
}

// ErrSessionExpired is returned by RunOnce once the session could not be
// recovered and the client navigated to the sign in page.
var ErrSessionExpired = errors.New("session expired")

// RunOnce calls every probe path once.
func (app *Application) RunOnce(ctx context.Context) error {
	for _, path := range app.cfg.ProbePaths {
		app.navigator.Visit(path)

		start := time.Now()
		env, err := app.client.Get(ctx, path)
		elapsed := time.Since(start).Milliseconds()

		switch {
		case err != nil:
			app.logger.Warn("probe failed", "path", path, "duration_ms", elapsed, "error", err)
		case !env.OK():
			app.logger.Warn("probe rejected", "path", path, "duration_ms", elapsed, "error", env.Err())
		default:
			app.logger.Info("probe ok", "path", path, "duration_ms", elapsed, "bytes", len(env.Data))
		}

		if app.client.Recovery().Fired() {
			app.logger.Error("session expired, sign in again", "login_url", app.navigator.Last())
			return ErrSessionExpired
		}
	}
	return nil
}

func (app *Application) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	app.metricsServer = &http.Server{
		Addr:              app.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("metrics server failed", "error", err)
		}
	}()
	app.logger.Info("metrics server listening", "addr", app.cfg.MetricsAddr)
}

// Shutdown stops the metrics server and closes the stores.
func (app *Application) Shutdown() {
	if app.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error("graceful metrics shutdown failed", "error", err)
		}
		cancel()
		app.metricsServer = nil
	}

	if err := app.persistent.Close(); err != nil && !errors.Is(err, kv.ErrClosed) {
		app.logger.Error("error closing store", "error", err)
	}
	_ = app.session.Close()
}
