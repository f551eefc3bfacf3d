// Package config provides configuration management functionality.
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

// Config holds application configuration. It is built once at process start
// and handed to each component, instead of components reading the environment
// on their own.
type Config struct {
	DataDir        string // Base directory for the database, archives and staging (always absolute)
	LogLevel       string
	BaseCurrency   string   // Base currency for API requests and scraping (default EUR)
	QuoteSymbols   []string // Quote currencies fetched from the rates API
	LookbackMonths int      // Trailing window for the historical dataset and API range
	HistoryCSVPath string   // Bundled historical dataset (read-only input)
	RatesAPIURL    string   // Frankfurter-compatible endpoint
	ScrapeURL      string   // Live rates page
	HTTPTimeout    time.Duration

	SMTP    SMTPConfig
	Remote  RemoteConfig
	Archive ArchiveConfig
}

// SMTPConfig holds outbound mail relay settings for alerting.
type SMTPConfig struct {
	Host      string
	Port      int
	Sender    string
	Password  string
	Recipient string
}

// Enabled reports whether enough configuration is present to send alerts.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port > 0 && c.Sender != "" && c.Recipient != ""
}

// RemoteConfig holds the remote backend used for best-effort replication.
type RemoteConfig struct {
	URL   string
	Key   string
	Table string
}

// Enabled reports whether remote forwarding is configured.
func (c RemoteConfig) Enabled() bool {
	return c.URL != "" && c.Key != ""
}

// ArchiveConfig holds optional S3-compatible storage for archive replication.
type ArchiveConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Enabled reports whether archive replication is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		BaseCurrency:   strings.ToUpper(getEnv("BASE_CURRENCY", "EUR")),
		QuoteSymbols:   getEnvAsList("QUOTE_CURRENCIES", []string{"USD", "GBP", "CHF", "JPY"}),
		LookbackMonths: getEnvAsInt("LOOKBACK_MONTHS", 2),
		HistoryCSVPath: getEnv("HISTORY_CSV_PATH", filepath.Join(absDataDir, "raw", "daily_forex_rates.csv")),
		RatesAPIURL:    getEnv("RATES_API_URL", "https://api.frankfurter.app"),
		ScrapeURL:      getEnv("SCRAPE_URL", "https://www.x-rates.com/table/?from=EUR&amount=1"),
		HTTPTimeout:    time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_SERVER", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Sender:    getEnv("EMAIL_ADDRESS", ""),
			Password:  getEnv("EMAIL_PASSWORD", ""),
			Recipient: getEnv("RECIPIENT_EMAIL", ""),
		},
		Remote: RemoteConfig{
			URL:   getEnv("SUPABASE_URL", ""),
			Key:   getEnv("SUPABASE_KEY", ""),
			Table: getEnv("SUPABASE_TABLE", "forex_rates"),
		},
		Archive: ArchiveConfig{
			Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the location of the local relational store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "database", "forex_data.db")
}

// ProcessedDir returns the directory holding per-source archive files.
func (c *Config) ProcessedDir() string {
	return filepath.Join(c.DataDir, "processed")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.LookbackMonths <= 0 {
		return fmt.Errorf("LOOKBACK_MONTHS must be positive, got %d", c.LookbackMonths)
	}
	if len(c.QuoteSymbols) == 0 {
		return fmt.Errorf("QUOTE_CURRENCIES must name at least one currency")
	}
	for _, s := range c.QuoteSymbols {
		if s == c.BaseCurrency {
			return fmt.Errorf("quote currency %s equals the base currency", s)
		}
	}
	// SMTP, remote backend and archive replication are optional; the
	// corresponding features degrade to disabled when unset.
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		trimmed := strings.ToUpper(strings.TrimSpace(v))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
