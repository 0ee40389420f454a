package config

import (
	"time"

	"github.com/spf13/viper"
)

// WalletConfig bounds the optimistic-concurrency retry loop.
type WalletConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter is the backoff randomization factor in [0, 1].
	Jitter float64
}

func LoadWalletConfig() *WalletConfig {
	viper.SetDefault("wallet.max_attempts", 5)
	viper.SetDefault("wallet.initial_backoff", 10*time.Millisecond)
	viper.SetDefault("wallet.max_backoff", 200*time.Millisecond)
	viper.SetDefault("wallet.jitter", 0.5)

	cfg := &WalletConfig{
		MaxAttempts:    viper.GetInt("wallet.max_attempts"),
		InitialBackoff: viper.GetDuration("wallet.initial_backoff"),
		MaxBackoff:     viper.GetDuration("wallet.max_backoff"),
		Jitter:         viper.GetFloat64("wallet.jitter"),
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = 0.5
	}
	return cfg
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

func LoadTelemetryConfig() *TelemetryConfig {
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "marketplace-backend")

	return &TelemetryConfig{
		Enabled:      viper.GetBool("telemetry.enabled"),
		OTLPEndpoint: viper.GetString("telemetry.otlp_endpoint"),
		ServiceName:  viper.GetString("telemetry.service_name"),
	}
}

type HTTPConfig struct {
	Port           string
	IdempotencyTTL time.Duration
}

func LoadHTTPConfig() *HTTPConfig {
	viper.SetDefault("http.port", "8080")
	viper.SetDefault("idempotency.ttl", 24*time.Hour)

	return &HTTPConfig{
		Port:           viper.GetString("http.port"),
		IdempotencyTTL: viper.GetDuration("idempotency.ttl"),
	}
}
