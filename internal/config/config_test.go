package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "HOTSPOT_LIMIT", "")
	setEnv(t, "HIGH_RISK_TAG", "")
	setEnv(t, "INTERCEPT_AMOUNT_THRESHOLD", "")
	setEnv(t, "ALERT_WEBHOOK_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultHotspotLimit, cfg.HotspotLimit)
	assert.Equal(t, int64(DefaultInterceptAmountThreshold), cfg.InterceptAmountThreshold)
	assert.Equal(t, DefaultHighRiskTag, cfg.HighRiskTag)
	assert.Equal(t, DefaultModelPath, cfg.ModelPath)
	assert.Equal(t, DefaultEncoderPath, cfg.EncoderPath)
	assert.Equal(t, DefaultHotspotCacheTTL, cfg.HotspotCacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "HOTSPOT_LIMIT", "50")
	setEnv(t, "INTERCEPT_AMOUNT_THRESHOLD", "75000")
	setEnv(t, "HOTSPOT_CACHE_TTL", "2m")
	setEnv(t, "KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	setEnv(t, "ALERT_WEBHOOK_URL", "https://alerts.example.test/hook")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 50, cfg.HotspotLimit)
	assert.Equal(t, int64(75000), cfg.InterceptAmountThreshold)
	assert.Equal(t, 2*time.Minute, cfg.HotspotCacheTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "https://alerts.example.test/hook", cfg.AlertWebhookURL)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	setEnv(t, "HOTSPOT_LIMIT", "lots")
	setEnv(t, "HOTSPOT_CACHE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultHotspotLimit, cfg.HotspotLimit)
	assert.Equal(t, DefaultHotspotCacheTTL, cfg.HotspotCacheTTL)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:                     "5000",
			HotspotLimit:             500,
			InterceptAmountThreshold: 50000,
			HighRiskTag:              "RINGLEADER",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Port = "" }, wantErr: "PORT is required"},
		{name: "zero hotspot limit", mutate: func(c *Config) { c.HotspotLimit = 0 }, wantErr: "HOTSPOT_LIMIT"},
		{name: "negative threshold", mutate: func(c *Config) { c.InterceptAmountThreshold = -1 }, wantErr: "INTERCEPT_AMOUNT_THRESHOLD"},
		{name: "blank tag", mutate: func(c *Config) { c.HighRiskTag = "  " }, wantErr: "HIGH_RISK_TAG"},
		{name: "bad webhook scheme", mutate: func(c *Config) { c.AlertWebhookURL = "ftp://x" }, wantErr: "ALERT_WEBHOOK_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	dev := &Config{Env: "development"}
	prod := &Config{Env: "production"}

	assert.True(t, dev.IsDevelopment())
	assert.False(t, dev.IsProduction())
	assert.True(t, prod.IsProduction())
	assert.False(t, prod.IsDevelopment())
}
