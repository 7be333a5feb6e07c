package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BaseURL        string        // Required: console origin, e.g. https://console.example.com
	Timeout        time.Duration // Per-attempt timeout (default: 10s)
	RefreshTimeout time.Duration // Refresh call timeout (default: 5s)
	LoginPath      string        // Re-authentication entry point (default: /login)

	KVDriver      string // Persistent store driver (sqlite, redis, memory) (default: sqlite)
	DatabaseFile  string // SQLite file for the sqlite driver (default: ./webtrace.db)
	RedisAddr     string // Redis address for the redis driver (default: localhost:6379)
	RedisPassword string // Optional: redis password
	MasterKey     string // Optional: seals stored values with AES-256-GCM when set

	RateLimitRPS   float64 // Optional: client-side attempts per second (0 disables)
	RateLimitBurst int     // Burst for the rate limiter (default: 1)

	Username string // Optional: sign in when no credential is stored
	Password string

	ProbePaths    []string      // Endpoints to call each cycle (default: /api/auth/devices)
	ProbeInterval time.Duration // Zero runs one cycle and exits (default: 0)
	MetricsAddr   string        // Optional: serve /metrics on this address

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	ShutdownGracePeriod time.Duration // Metrics server shutdown timeout (default: 5s)
}

func LoadConfig() Config {
	return Config{
		BaseURL:        os.Getenv("WEBTRACE_BASE_URL"),
		Timeout:        getEnvDurationOrDefault("WEBTRACE_TIMEOUT", 10*time.Second),
		RefreshTimeout: getEnvDurationOrDefault("WEBTRACE_REFRESH_TIMEOUT", 5*time.Second),
		LoginPath:      getEnvOrDefault("WEBTRACE_LOGIN_PATH", "/login"),

		KVDriver:      getEnvOrDefault("WEBTRACE_KV_DRIVER", "sqlite"),
		DatabaseFile:  getEnvOrDefault("WEBTRACE_DATABASE_FILE", "webtrace.db"),
		RedisAddr:     getEnvOrDefault("WEBTRACE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("WEBTRACE_REDIS_PASSWORD"),
		MasterKey:     os.Getenv("WEBTRACE_MASTER_KEY"),

		RateLimitRPS:   getEnvFloatOrDefault("WEBTRACE_RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvIntOrDefault("WEBTRACE_RATE_LIMIT_BURST", 1),

		Username: os.Getenv("WEBTRACE_USERNAME"),
		Password: os.Getenv("WEBTRACE_PASSWORD"),

		ProbePaths:    getEnvListOrDefault("WEBTRACE_PROBE_PATHS", []string{"/api/auth/devices"}),
		ProbeInterval: getEnvDurationOrDefault("WEBTRACE_PROBE_INTERVAL", 0),
		MetricsAddr:   os.Getenv("WEBTRACE_METRICS_ADDR"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 5*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "10s", "500ms")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are milliseconds, like the console's axios timeout
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
