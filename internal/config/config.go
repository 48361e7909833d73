package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// RateCacheTTL bounds how long a cached rate entry may serve after the
	// underlying record changed out of band.
	RateCacheTTL time.Duration
	// StoreTimeout caps a single postgres rate query.
	StoreTimeout time.Duration
	// CacheFetchTimeout caps the detached store fetch behind a cache miss.
	CacheFetchTimeout time.Duration

	// DeviationRatio is the relative threshold for effective-rate anomaly
	// reporting. DeviationWarmup is the per-state sample count before the
	// monitor starts reporting.
	DeviationRatio  float64
	DeviationWarmup int

	// RateLimitPerMinute throttles the calculation endpoints per client.
	RateLimitPerMinute int

	ObsLogFormat       string
	ObsLogLevel        string
	ObsMetricsEnabled  bool
	ObsTracingEnabled  bool
	ObsTracingEndpoint string
	ObsServiceName     string
	ObsBucketsCSV      string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RateCacheTTL:       parseDuration(k.String("RATE_CACHE_TTL"), "5m"),
		StoreTimeout:       parseDuration(k.String("STORE_TIMEOUT"), "2s"),
		CacheFetchTimeout:  parseDuration(k.String("CACHE_FETCH_TIMEOUT"), "2s"),
		DeviationRatio:     parseFloat(k.String("DEVIATION_RATIO"), 0.5),
		DeviationWarmup:    parseInt(k.String("DEVIATION_WARMUP"), 20),
		RateLimitPerMinute: parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120),
		ObsLogFormat:       valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		ObsLogLevel:        valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		ObsMetricsEnabled:  parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		ObsTracingEnabled:  parseBool(k.String("OBS_TRACING_ENABLED")),
		ObsTracingEndpoint: strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
		ObsServiceName:     valueOrDefault(k.String("OBS_SERVICE_NAME"), "levy-api"),
		ObsBucketsCSV:      strings.TrimSpace(k.String("OBS_HTTP_BUCKETS_MS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
