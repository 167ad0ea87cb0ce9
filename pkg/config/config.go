package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string

	// Database
	DatabaseDriver database.Driver
	DatabaseURL    string
	SQLitePath     string
	MongoURL       string
	MongoDatabase  string

	// Redis. Empty selects the in-process locker.
	RedisURL string
	LockTTL  time.Duration

	// RabbitMQ. Empty dispatches outbox events in-process.
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// HTTP
	HTTPAddr  string
	JWTSecret string
	JWTIssuer string

	// ServiceUpstreams maps a catalog service to the base URL that
	// implements it, e.g. crm=http://crm:8080.
	ServiceUpstreams map[string]string

	// Worker
	WorkerHealthAddr string

	// Stripe
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeProductID     string

	// Billing
	BillingCurrency    string
	PastDueGracePeriod time.Duration
	BundleCatalogPath  string

	// Gateway
	GatewayTimeout         time.Duration
	GatewayBreakerFailures int
	GatewayBreakerTimeout  time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SQLitePath:    getEnv("SQLITE_PATH", database.DefaultSQLitePath()),
		MongoURL:      getEnv("MONGO_URL", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "mewayz"),

		RedisURL: getEnv("REDIS_URL", ""),
		LockTTL:  getDurationEnv("LOCK_TTL", 30*time.Second),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		HTTPAddr:  getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "mewayz"),

		ServiceUpstreams: getMapEnv("SERVICE_UPSTREAMS"),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		StripeAPIKey:        getEnv("STRIPE_API_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProductID:     getEnv("STRIPE_PRODUCT_ID", ""),

		BillingCurrency:    strings.ToLower(getEnv("BILLING_CURRENCY", "usd")),
		PastDueGracePeriod: getDurationEnv("PAST_DUE_GRACE_PERIOD", 0),
		BundleCatalogPath:  getEnv("BUNDLE_CATALOG_PATH", ""),

		GatewayTimeout:         getDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
		GatewayBreakerFailures: getIntEnv("GATEWAY_BREAKER_FAILURES", 5),
		GatewayBreakerTimeout:  getDurationEnv("GATEWAY_BREAKER_TIMEOUT", 30*time.Second),
	}

	// Mongo is selected either explicitly or by MONGO_URL alone.
	url := cfg.DatabaseURL
	if url == "" && cfg.MongoURL != "" {
		url = cfg.MongoURL
	}
	driver, err := database.ParseDriver(os.Getenv("DATABASE_DRIVER"), url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.DatabaseDriver = driver
	if driver == database.DriverMongo && cfg.MongoURL == "" {
		cfg.MongoURL = cfg.DatabaseURL
	}

	return cfg, nil
}

// Validate checks settings that have no safe default outside development.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseDriver == database.DriverPostgres && c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.DatabaseDriver == database.DriverMongo && c.MongoURL == "" {
		missing = append(missing, "MONGO_URL")
	}
	if c.IsProduction() {
		if c.StripeAPIKey == "" {
			missing = append(missing, "STRIPE_API_KEY")
		}
		if c.StripeWebhookSecret == "" {
			missing = append(missing, "STRIPE_WEBHOOK_SECRET")
		}
		if c.JWTSecret == "" {
			missing = append(missing, "JWT_SECRET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if c.PastDueGracePeriod < 0 {
		return fmt.Errorf("%w: PAST_DUE_GRACE_PERIOD must not be negative", ErrInvalidConfig)
	}
	if c.GatewayBreakerFailures < 1 {
		return fmt.Errorf("%w: GATEWAY_BREAKER_FAILURES must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StripeEnabled reports whether a real payment gateway is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getMapEnv reads comma separated key=value pairs. Malformed pairs are
// skipped.
func getMapEnv(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
