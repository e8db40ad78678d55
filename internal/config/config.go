// Package config reads process settings from the environment, after loading
// the nearest .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultServiceName       = "storefront"
	defaultLedgerTimeout     = 5 * time.Second
	defaultLowStockThreshold = 5
)

type Config struct {
	// DatabaseURL selects the Postgres store. Empty means the in-memory store.
	DatabaseURL       string
	LedgerTimeout     time.Duration
	LogLevel          string
	Environment       string
	ServiceName       string
	OTLPEndpoint      string
	TracingDisabled   bool
	LowStockThreshold int

	// EnvFile is the .env that was loaded, if any.
	EnvFile string
}

func (c Config) Development() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == "local"
}

// Load reads .env (variables already set win) and then the environment.
func Load() (Config, error) {
	path := findEnvFile()
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.EnvFile = path
	return cfg, nil
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LedgerTimeout:     defaultLedgerTimeout,
		LogLevel:          envOr("LOG_LEVEL", "info"),
		Environment:       envOr("APP_ENV", "production"),
		ServiceName:       envOr("SERVICE_NAME", defaultServiceName),
		OTLPEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		LowStockThreshold: defaultLowStockThreshold,
	}

	if v := strings.TrimSpace(os.Getenv("LEDGER_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("LEDGER_TIMEOUT: invalid duration %q", v)
		}
		cfg.LedgerTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("TRACING_DISABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("TRACING_DISABLED: invalid bool %q", v)
		}
		cfg.TracingDisabled = b
	}
	if v := strings.TrimSpace(os.Getenv("LOW_STOCK_THRESHOLD")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("LOW_STOCK_THRESHOLD: invalid count %q", v)
		}
		cfg.LowStockThreshold = n
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	default:
		return Config{}, fmt.Errorf("LOG_LEVEL: unknown level %q", cfg.LogLevel)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// findEnvFile walks up from the working directory looking for .env.
func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
