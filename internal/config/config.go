package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT (issued by the Member API, verified here)
	JWTSecret string

	// Member API
	BridgeAPIURL     string
	BridgeAPITimeout time.Duration

	// Circuit breaker around the Member API
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32

	// Order tracking
	PollInterval      time.Duration
	PollTimeout       time.Duration
	PollMaxAttempts   int
	TrackingRetention time.Duration

	// Cache
	RedisURL      string
	CatalogTTL    time.Duration
	MemberViewTTL time.Duration

	// Events
	AMQPURL             string
	OrderEventsExchange string

	// Admin
	AdminEmails  string
	AdminUserIDs string
	AdminToken   string

	// Server
	Port        string
	CORSOrigins string

	// Replays payment callbacks right after placement so local runs
	// against the mock Member API complete without a real provider.
	DevelopmentMode bool
	MockPort        string

	SentryDSN        string
	AppEnv           string
	LogRetentionDays int
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "bridge_checkout"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		BridgeAPIURL:     strings.TrimSuffix(getEnv("BRIDGE_API_URL", "http://localhost:8081"), "/"),
		BridgeAPITimeout: parseDuration(getEnv("BRIDGE_API_TIMEOUT", "15s"), 15*time.Second),

		BreakerMaxRequests:      uint32(parseInt(getEnv("BREAKER_MAX_REQUESTS", "3"), 3)),
		BreakerInterval:         parseDuration(getEnv("BREAKER_INTERVAL", "60s"), time.Minute),
		BreakerTimeout:          parseDuration(getEnv("BREAKER_TIMEOUT", "30s"), 30*time.Second),
		BreakerFailureThreshold: uint32(parseInt(getEnv("BREAKER_FAILURE_THRESHOLD", "5"), 5)),

		PollInterval:      parseDuration(getEnv("POLL_INTERVAL", "3s"), 3*time.Second),
		PollTimeout:       parseDuration(getEnv("POLL_TIMEOUT", "10m"), 10*time.Minute),
		PollMaxAttempts:   parseInt(getEnv("POLL_MAX_ATTEMPTS", "200"), 200),
		TrackingRetention: parseDuration(getEnv("TRACKING_RETENTION", "30m"), 30*time.Minute),

		RedisURL:      getEnv("REDIS_URL", ""),
		CatalogTTL:    parseDuration(getEnv("CATALOG_TTL", "5m"), 5*time.Minute),
		MemberViewTTL: parseDuration(getEnv("MEMBER_VIEW_TTL", "1m"), time.Minute),

		AMQPURL:             getEnv("AMQP_URL", ""),
		OrderEventsExchange: getEnv("ORDER_EVENTS_EXCHANGE", "bridge.orders"),

		AdminEmails:  getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		DevelopmentMode: parseBool(getEnv("DEVELOPMENT_MODE", "false")),
		MockPort:        getEnv("MOCK_PORT", "8081"),

		SentryDSN:        getEnv("SENTRY_DSN", ""),
		AppEnv:           getEnv("APP_ENV", "production"),
		LogRetentionDays: parseInt(getEnv("LOG_RETENTION_DAYS", "30"), 30),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
