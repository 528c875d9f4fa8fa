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
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	Currency           string

	CartTTL        time.Duration
	CartMaxLineQty int

	IdempotencyTTL       time.Duration
	PromoApplyRateLimit  int
	PromoApplyRateWindow time.Duration

	CatalogCacheTTL time.Duration

	DeliveryZones []DeliveryZone

	EmailEnabled bool
	EmailFrom    string

	OTLPEndpoint   string
	TracingEnabled bool
}

// DeliveryZone is one postcode-prefix fee entry parsed from DELIVERY_ZONES.
type DeliveryZone struct {
	Prefix string
	Fee    decimal.Decimal
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	zones, err := parseZones(k.String("DELIVERY_ZONES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Currency:           valueOrDefault(k.String("CURRENCY"), "GBP"),

		CartTTL:        parseDuration(k.String("CART_TTL"), "24h"),
		CartMaxLineQty: parseInt(k.String("CART_MAX_LINE_QTY"), 20),

		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		PromoApplyRateLimit:  parseInt(k.String("PROMO_APPLY_RATE_LIMIT"), 10),
		PromoApplyRateWindow: parseDuration(k.String("PROMO_APPLY_RATE_WINDOW"), "1m"),

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		DeliveryZones: zones,

		EmailEnabled: parseBool(k.String("EMAIL_ENABLED")),
		EmailFrom:    strings.TrimSpace(k.String("EMAIL_FROM")),

		OTLPEndpoint:   strings.TrimSpace(k.String("OTLP_ENDPOINT")),
		TracingEnabled: parseBool(k.String("TRACING_ENABLED")),
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

// parseZones parses "SW1A=2.50,SW=3.99" into prefix fee entries.
func parseZones(value string) ([]DeliveryZone, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	zones := make([]DeliveryZone, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefix, rawFee, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("DELIVERY_ZONES entry %q: want prefix=fee", part)
		}
		fee, err := decimal.NewFromString(strings.TrimSpace(rawFee))
		if err != nil {
			return nil, fmt.Errorf("DELIVERY_ZONES entry %q: %w", part, err)
		}
		zones = append(zones, DeliveryZone{Prefix: strings.TrimSpace(prefix), Fee: fee})
	}
	return zones, nil
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

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
