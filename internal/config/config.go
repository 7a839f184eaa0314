package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the agentdeck gateway.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Providers ProvidersConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	// URL enables the PostgreSQL store when set; empty falls back to the
	// in-memory store with file snapshots.
	URL            string
	MaxConnections int
}

type ProvidersConfig struct {
	// File is the path of the providers JSON file (preferred, Docker setups).
	File string
	// JSON is the raw providers JSON (local/dev fallback when File is unset).
	JSON string
	// UpstreamTimeout bounds a single provider completion call.
	UpstreamTimeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AGENTDECK_PORT", 8080),
		Version: envStr("AGENTDECK_VERSION", "0.2.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Providers: ProvidersConfig{
			File:            envStr("PROVIDERS_FILE", ""),
			JSON:            envStr("PROVIDERS_JSON", ""),
			UpstreamTimeout: envDuration("PROVIDER_TIMEOUT", 60*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agentdeck-gateway"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
