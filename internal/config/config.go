package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL    string
	Port           string
	LogLevel       string
	ViewConfigPath string

	// Engine defaults applied to migrations that don't set their own.
	BatchSize      int
	RetryConflicts int

	// Store client
	QueryTimeout        time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

func Load() Config {
	return Config{
		DatabaseURL:         getEnvRequired("DATABASE_URL"),
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		ViewConfigPath:      getEnv("VIEW_CONFIG_PATH", ""),
		BatchSize:           getEnvInt("BATCH_SIZE", 20),
		RetryConflicts:      getEnvInt("RETRY_CONFLICTS", 2),
		QueryTimeout:        getEnvDuration("QUERY_TIMEOUT", 30*time.Second),
		BreakerMaxFailures:  getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerResetTimeout: getEnvDuration("BREAKER_RESET_TIMEOUT", 10*time.Second),
	}
}

func getEnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable " + key + " is not set")
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
