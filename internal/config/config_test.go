package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var keys = []string{
	"CONFIG_FILE", "DATABASE_URL", "HTTP_PORT", "QUOTE_BASE_URL", "QUOTE_RETRY_MAX",
	"QUOTE_RETRY_BASE_DELAY", "QUOTE_RATE_LIMIT", "DEFAULT_USDJPY_RATE", "LOG_LEVEL",
	"SNAPSHOT_INTERVAL", "SHEETS_SPREADSHEET_ID", "GOOGLE_CREDENTIALS_JSON", "TIMEZONE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.QuoteBaseURL != "https://query1.finance.yahoo.com" {
		t.Errorf("QuoteBaseURL = %q, want default", cfg.QuoteBaseURL)
	}
	if cfg.QuoteRetryMax != 3 {
		t.Errorf("QuoteRetryMax = %d, want 3", cfg.QuoteRetryMax)
	}
	if cfg.QuoteRetryBaseDelay != time.Second {
		t.Errorf("QuoteRetryBaseDelay = %v, want 1s", cfg.QuoteRetryBaseDelay)
	}
	if cfg.DefaultUSDJPYRate.String() != "150" {
		t.Errorf("DefaultUSDJPYRate = %s, want 150", cfg.DefaultUSDJPYRate)
	}
	if cfg.SnapshotInterval != 24*time.Hour {
		t.Errorf("SnapshotInterval = %v, want 24h", cfg.SnapshotInterval)
	}
	if cfg.SheetsEnabled() {
		t.Error("SheetsEnabled() = true without credentials")
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want INFO", cfg.SlogLevel())
	}
	if cfg.Location == nil || cfg.Location.String() != "Asia/Tokyo" {
		t.Errorf("Location = %v, want Asia/Tokyo", cfg.Location)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("QUOTE_RETRY_MAX", "10")
	t.Setenv("QUOTE_RETRY_BASE_DELAY", "5s")
	t.Setenv("DEFAULT_USDJPY_RATE", "152.5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
	if cfg.QuoteRetryMax != 10 {
		t.Errorf("QuoteRetryMax = %d, want 10", cfg.QuoteRetryMax)
	}
	if cfg.QuoteRetryBaseDelay != 5*time.Second {
		t.Errorf("QuoteRetryBaseDelay = %v, want 5s", cfg.QuoteRetryBaseDelay)
	}
	if cfg.DefaultUSDJPYRate.String() != "152.5" {
		t.Errorf("DefaultUSDJPYRate = %s, want 152.5", cfg.DefaultUSDJPYRate)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want DEBUG", cfg.SlogLevel())
	}
	if cfg.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Location)
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUOTE_RETRY_MAX", "not-a-number")
	t.Setenv("QUOTE_RETRY_BASE_DELAY", "invalid-duration")
	t.Setenv("DEFAULT_USDJPY_RATE", "-1")
	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.QuoteRetryMax != 3 {
		t.Errorf("QuoteRetryMax = %d, want default 3 on invalid input", cfg.QuoteRetryMax)
	}
	if cfg.QuoteRetryBaseDelay != time.Second {
		t.Errorf("QuoteRetryBaseDelay = %v, want default 1s on invalid input", cfg.QuoteRetryBaseDelay)
	}
	if cfg.DefaultUSDJPYRate.String() != "150" {
		t.Errorf("DefaultUSDJPYRate = %s, want default 150 on invalid input", cfg.DefaultUSDJPYRate)
	}
	if cfg.Location.String() != "Asia/Tokyo" {
		t.Errorf("Location = %v, want default Asia/Tokyo on invalid input", cfg.Location)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "solosaving.toml")
	content := `
database_url = "postgres://file/db"
http_port = "7070"
quote_rate_limit = 2.5
quote_retry_max = 7
snapshot_interval = "12h"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DatabaseURL != "postgres://file/db" {
		t.Errorf("DatabaseURL = %q, want value from file", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9191" {
		t.Errorf("HTTPPort = %q, want env to win over file", cfg.HTTPPort)
	}
	if cfg.QuoteRateLimit != 2.5 {
		t.Errorf("QuoteRateLimit = %v, want 2.5", cfg.QuoteRateLimit)
	}
	if cfg.QuoteRetryMax != 7 {
		t.Errorf("QuoteRetryMax = %d, want 7", cfg.QuoteRetryMax)
	}
	if cfg.SnapshotInterval != 12*time.Hour {
		t.Errorf("SnapshotInterval = %v, want 12h", cfg.SnapshotInterval)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	clearEnv(t)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("http_port = "), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed config file")
	}
}
