package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/docshift")
	defer os.Unsetenv("DATABASE_URL")

	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("VIEW_CONFIG_PATH")
	os.Unsetenv("BATCH_SIZE")
	os.Unsetenv("RETRY_CONFLICTS")
	os.Unsetenv("QUERY_TIMEOUT")
	os.Unsetenv("BREAKER_MAX_FAILURES")
	os.Unsetenv("BREAKER_RESET_TIMEOUT")

	cfg := Load()

	if cfg.DatabaseURL != "postgres://localhost/docshift" {
		t.Errorf("DatabaseURL: got %q", cfg.DatabaseURL)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port: got %q, want %q", cfg.Port, "8080")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.ViewConfigPath != "" {
		t.Errorf("ViewConfigPath: got %q, want empty", cfg.ViewConfigPath)
	}
	if cfg.BatchSize != 20 {
		t.Errorf("BatchSize: got %d, want 20", cfg.BatchSize)
	}
	if cfg.RetryConflicts != 2 {
		t.Errorf("RetryConflicts: got %d, want 2", cfg.RetryConflicts)
	}
	if cfg.QueryTimeout != 30*time.Second {
		t.Errorf("QueryTimeout: got %v, want 30s", cfg.QueryTimeout)
	}
	if cfg.BreakerMaxFailures != 5 {
		t.Errorf("BreakerMaxFailures: got %d, want 5", cfg.BreakerMaxFailures)
	}
	if cfg.BreakerResetTimeout != 10*time.Second {
		t.Errorf("BreakerResetTimeout: got %v, want 10s", cfg.BreakerResetTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://db:5432/x")
	os.Setenv("PORT", "9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("VIEW_CONFIG_PATH", "/etc/docshift/views.json")
	os.Setenv("BATCH_SIZE", "100")
	os.Setenv("RETRY_CONFLICTS", "5")
	os.Setenv("QUERY_TIMEOUT", "5s")
	os.Setenv("BREAKER_MAX_FAILURES", "3")
	os.Setenv("BREAKER_RESET_TIMEOUT", "1m")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("VIEW_CONFIG_PATH")
		os.Unsetenv("BATCH_SIZE")
		os.Unsetenv("RETRY_CONFLICTS")
		os.Unsetenv("QUERY_TIMEOUT")
		os.Unsetenv("BREAKER_MAX_FAILURES")
		os.Unsetenv("BREAKER_RESET_TIMEOUT")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port: got %q", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q", cfg.LogLevel)
	}
	if cfg.ViewConfigPath != "/etc/docshift/views.json" {
		t.Errorf("ViewConfigPath: got %q", cfg.ViewConfigPath)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize: got %d", cfg.BatchSize)
	}
	if cfg.RetryConflicts != 5 {
		t.Errorf("RetryConflicts: got %d", cfg.RetryConflicts)
	}
	if cfg.QueryTimeout != 5*time.Second {
		t.Errorf("QueryTimeout: got %v", cfg.QueryTimeout)
	}
	if cfg.BreakerMaxFailures != 3 {
		t.Errorf("BreakerMaxFailures: got %d", cfg.BreakerMaxFailures)
	}
	if cfg.BreakerResetTimeout != time.Minute {
		t.Errorf("BreakerResetTimeout: got %v", cfg.BreakerResetTimeout)
	}
}

func TestLoad_MissingRequired_Panics(t *testing.T) {
	os.Unsetenv("DATABASE_URL")

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for missing DATABASE_URL")
		}
	}()

	Load()
}

func TestGetEnvInt_Invalid(t *testing.T) {
	os.Setenv("TEST_BAD_INT", "not-a-number")
	defer os.Unsetenv("TEST_BAD_INT")

	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("got %d, want fallback 7", got)
	}
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	os.Setenv("TEST_BAD_DURATION", "soon")
	defer os.Unsetenv("TEST_BAD_DURATION")

	if got := getEnvDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("got %v, want fallback 1s", got)
	}
}
