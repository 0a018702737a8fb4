// Package config loads configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration
type Config struct {
	Env string

	// HTTP
	WebhookPort int
	AdminPort   int
	MetricsPort int

	// Database
	DatabaseURL string

	// Webhook pipeline
	WebhookSecret        string
	WorkerCount          int
	WorkerQueueSize      int
	RetryInterval        time.Duration
	RetryBatchSize       int
	IdempotencyCacheSize int

	// Billing
	BillingInterval  time.Duration
	BillingBatchSize int

	// Cron endpoint auth
	CronSecret string

	// Shutdown
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables with sane defaults
func Load() (*Config, error) {
	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		WebhookPort:          getEnvAsInt("WEBHOOK_PORT", 8080),
		AdminPort:            getEnvAsInt("ADMIN_PORT", 8081),
		MetricsPort:          getEnvAsInt("METRICS_PORT", 9090),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		WebhookSecret:        getEnv("WEBHOOK_SECRET", ""),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 4),
		WorkerQueueSize:      getEnvAsInt("WORKER_QUEUE_SIZE", 256),
		RetryInterval:        getEnvAsDuration("WEBHOOK_RETRY_INTERVAL", 5*time.Minute),
		RetryBatchSize:       getEnvAsInt("WEBHOOK_RETRY_BATCH", 100),
		IdempotencyCacheSize: getEnvAsInt("IDEMPOTENCY_CACHE_SIZE", 1024),
		BillingInterval:      getEnvAsDuration("BILLING_INTERVAL", 24*time.Hour),
		BillingBatchSize:     getEnvAsInt("BILLING_BATCH_SIZE", 100),
		CronSecret:           getEnv("CRON_SECRET", ""),
		ShutdownTimeout:      getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IsProduction() && cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required in production")
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
