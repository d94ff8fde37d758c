// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	// Store settings.
	StoreDriver string // "sqlite" or "postgres".
	DatabaseURL string // File path for sqlite, connection URL for postgres.

	// Evaluation settings.
	Workers           int // Alternatives evaluated concurrently by Explain.
	EvalTolerance     float64
	EvalMaxIterations int
	Discount          float64 // Used only for domains without a goal.

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel  string
	LogFormat string // "json" or "text".
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values are reported together rather than silently replaced.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		StoreDriver:  envStr("XPLAN_STORE_DRIVER", "sqlite"),
		DatabaseURL:  envStr("XPLAN_DATABASE_URL", "xplan.db"),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "xplan"),
		LogLevel:     envStr("XPLAN_LOG_LEVEL", "info"),
		LogFormat:    envStr("XPLAN_LOG_FORMAT", "json"),
	}

	var err error
	cfg.Workers, err = envInt("XPLAN_WORKERS", 4)
	collect(err)
	cfg.EvalTolerance, err = envFloat("XPLAN_EVAL_TOLERANCE", 1e-9)
	collect(err)
	cfg.EvalMaxIterations, err = envInt("XPLAN_EVAL_MAX_ITERATIONS", 100000)
	collect(err)
	cfg.Discount, err = envFloat("XPLAN_DISCOUNT", 0.95)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: XPLAN_STORE_DRIVER must be sqlite or postgres, got %q", c.StoreDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: XPLAN_DATABASE_URL is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: XPLAN_WORKERS must be positive")
	}
	if c.EvalTolerance <= 0 {
		return fmt.Errorf("config: XPLAN_EVAL_TOLERANCE must be positive")
	}
	if c.EvalMaxIterations <= 0 {
		return fmt.Errorf("config: XPLAN_EVAL_MAX_ITERATIONS must be positive")
	}
	if c.Discount <= 0 || c.Discount >= 1 {
		return fmt.Errorf("config: XPLAN_DISCOUNT must be in (0, 1)")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: XPLAN_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}
