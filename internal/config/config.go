// Package config loads application settings from the environment, an optional
// .env file and an optional TOML file. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	DatabaseURL string
	DBMaxConns  int
	HTTPPort    string
	AdminAPIKey string

	QuoteBaseURL        string
	QuoteRetryMax       int
	QuoteRetryBaseDelay time.Duration
	QuoteRateLimit      float64
	QuoteConcurrency    int
	QuoteCacheTTL       time.Duration
	HistoryCacheTTL     time.Duration
	DefaultUSDJPYRate   decimal.Decimal

	RefreshInterval  time.Duration
	SnapshotInterval time.Duration
	RequestTimeout   time.Duration
	// Location decides the calendar day snapshots and history are recorded on.
	Location *time.Location

	LogLevel  string
	LogFormat string

	SheetsSpreadsheetID   string
	GoogleCredentialsJSON string
}

// loader resolves one key from the environment first, then from the config file.
type loader struct {
	file map[string]any
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	l := loader{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		l.file = file
	}

	return Config{
		DatabaseURL:           l.orDefaultWarn("DATABASE_URL", ""),
		DBMaxConns:            l.orDefaultInt("DB_MAX_CONNS", 10),
		HTTPPort:              l.orDefault("HTTP_PORT", "8080"),
		AdminAPIKey:           l.orDefault("ADMIN_API_KEY", ""),
		QuoteBaseURL:          l.orDefault("QUOTE_BASE_URL", "https://query1.finance.yahoo.com"),
		QuoteRetryMax:         l.orDefaultInt("QUOTE_RETRY_MAX", 3),
		QuoteRetryBaseDelay:   l.orDefaultDuration("QUOTE_RETRY_BASE_DELAY", time.Second),
		QuoteRateLimit:        l.orDefaultFloat("QUOTE_RATE_LIMIT", 5),
		QuoteConcurrency:      l.orDefaultInt("QUOTE_CONCURRENCY", 4),
		QuoteCacheTTL:         l.orDefaultDuration("QUOTE_CACHE_TTL", 5*time.Minute),
		HistoryCacheTTL:       l.orDefaultDuration("HISTORY_CACHE_TTL", 6*time.Hour),
		DefaultUSDJPYRate:     l.orDefaultDecimal("DEFAULT_USDJPY_RATE", decimal.NewFromInt(150)),
		RefreshInterval:       l.orDefaultDuration("REFRESH_INTERVAL", time.Hour),
		SnapshotInterval:      l.orDefaultDuration("SNAPSHOT_INTERVAL", 24*time.Hour),
		RequestTimeout:        l.orDefaultDuration("REQUEST_TIMEOUT", 30*time.Second),
		Location:              l.orDefaultLocation("TIMEZONE", "Asia/Tokyo"),
		LogLevel:              l.orDefault("LOG_LEVEL", "info"),
		LogFormat:             l.orDefault("LOG_FORMAT", "text"),
		SheetsSpreadsheetID:   l.orDefault("SHEETS_SPREADSHEET_ID", ""),
		GoogleCredentialsJSON: l.orDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}, nil
}

// readFile parses a flat TOML file whose keys are the lower-cased variable names,
// e.g. database_url = "postgres://...".
func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var file map[string]any
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return file, nil
}

func (l loader) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := l.file[strings.ToLower(key)]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func (l loader) orDefault(key, defaultVal string) string {
	if v := l.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (l loader) orDefaultWarn(key, defaultVal string) string {
	v := l.orDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required config value not set", "key", key)
	}
	return v
}

func (l loader) orDefaultInt(key string, defaultVal int) int {
	if v := l.lookup(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer config value, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func (l loader) orDefaultFloat(key string, defaultVal float64) float64 {
	if v := l.lookup(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid number config value, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func (l loader) orDefaultDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if v := l.lookup(key); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || !d.IsPositive() {
			slog.Warn("invalid decimal config value, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func (l loader) orDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := l.lookup(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration config value, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func (l loader) orDefaultLocation(key, defaultVal string) *time.Location {
	name := l.orDefault(key, defaultVal)
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("invalid time zone config value, using default", "key", key, "value", name, "default", defaultVal)
		if loc, err = time.LoadLocation(defaultVal); err != nil {
			loc = time.UTC
		}
	}
	return loc
}

// SheetsEnabled reports whether snapshot export to Google Sheets is configured.
func (c Config) SheetsEnabled() bool {
	return c.SheetsSpreadsheetID != "" && c.GoogleCredentialsJSON != ""
}

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
