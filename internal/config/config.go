// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Model artifacts. Either file missing disables prediction only.
	ModelPath   string
	EncoderPath string

	// Hotspots
	HotspotLimit    int
	RedisURL        string // optional read-through cache for hotspots
	HotspotCacheTTL time.Duration

	// Interception rule
	InterceptAmountThreshold int64
	HighRiskTag              string

	// Alert channel
	AlertWebhookURL    string // empty = alerts are logged, not delivered
	AlertWebhookSecret string
	AlertRecipient     string

	// Ingestion stream
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPM int
}

const (
	DefaultPort                     = "5000"
	DefaultEnv                      = "development"
	DefaultLogLevel                 = "info"
	DefaultLogFormat                = "text"
	DefaultModelPath                = "data/model_next_loc.json"
	DefaultEncoderPath              = "data/label_encoder.json"
	DefaultHotspotLimit             = 500
	DefaultHotspotCacheTTL          = 30 * time.Second
	DefaultInterceptAmountThreshold = 50000
	DefaultHighRiskTag              = "RINGLEADER"
	DefaultAlertRecipient           = "cyber-cell-duty-officer"
	DefaultKafkaTopic               = "complaints"
	DefaultKafkaGroupID             = "muletrace-ingest"
	DefaultRateLimitRPM             = 600
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                     getEnv("PORT", DefaultPort),
		Env:                      getEnv("ENV", DefaultEnv),
		LogLevel:                 getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:                getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		ModelPath:                getEnv("MODEL_PATH", DefaultModelPath),
		EncoderPath:              getEnv("ENCODER_PATH", DefaultEncoderPath),
		HotspotLimit:             int(getEnvInt64("HOTSPOT_LIMIT", DefaultHotspotLimit)),
		RedisURL:                 os.Getenv("REDIS_URL"),
		HotspotCacheTTL:          getEnvDuration("HOTSPOT_CACHE_TTL", DefaultHotspotCacheTTL),
		InterceptAmountThreshold: getEnvInt64("INTERCEPT_AMOUNT_THRESHOLD", DefaultInterceptAmountThreshold),
		HighRiskTag:              getEnv("HIGH_RISK_TAG", DefaultHighRiskTag),
		AlertWebhookURL:          os.Getenv("ALERT_WEBHOOK_URL"),
		AlertWebhookSecret:       os.Getenv("ALERT_WEBHOOK_SECRET"),
		AlertRecipient:           getEnv("ALERT_RECIPIENT", DefaultAlertRecipient),
		KafkaBrokers:             splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:               getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		KafkaGroupID:             getEnv("KAFKA_GROUP_ID", DefaultKafkaGroupID),
		OTLPEndpoint:             os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:             int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.HotspotLimit <= 0 {
		return fmt.Errorf("HOTSPOT_LIMIT must be positive")
	}
	if c.InterceptAmountThreshold < 0 {
		return fmt.Errorf("INTERCEPT_AMOUNT_THRESHOLD must not be negative")
	}
	if strings.TrimSpace(c.HighRiskTag) == "" {
		return fmt.Errorf("HIGH_RISK_TAG is required")
	}
	if c.AlertWebhookURL != "" &&
		!strings.HasPrefix(c.AlertWebhookURL, "http://") && !strings.HasPrefix(c.AlertWebhookURL, "https://") {
		return fmt.Errorf("ALERT_WEBHOOK_URL must be an http(s) URL")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
