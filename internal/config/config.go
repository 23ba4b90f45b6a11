package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultAPITimeout bounds a single remote call. After it elapses the call
// counts as failed and the local fallback runs.
const DefaultAPITimeout = 10 * time.Second

type Config struct {
	// HTTP Server
	Port string

	// Database
	DatabaseURL  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// API middleware
	RateLimitPerMinute int
	CORSAllowedOrigins []string

	// Client: remote store
	APIBaseURL  string
	APITimeout  time.Duration
	APIRetryMax int

	// Client: local store
	LocalBackend    string
	LocalDataPath   string
	LocalStorageKey string

	// Client: identity and display
	UserID   string
	Currency string

	// Google Sheets mirror
	GoogleSpreadsheetID string
	GoogleSheetName     string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "3000"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/spndr.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spndr"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8081", "http://localhost:19006"}),

		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:3000"),
		APITimeout:  getEnvDuration("API_TIMEOUT", DefaultAPITimeout),
		APIRetryMax: getEnvInt("API_RETRY_MAX", 0),

		LocalBackend:    getEnv("LOCAL_BACKEND", "file"),
		LocalDataPath:   getEnv("LOCAL_DATA_PATH", "./data/local"),
		LocalStorageKey: getEnv("LOCAL_STORAGE_KEY", "@transactions"),

		UserID:   getEnv("USER_ID", "user_1"),
		Currency: getEnv("CURRENCY", "USD"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Transactions"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// UsesPostgres reports whether the API should store transactions in
// PostgreSQL instead of SQLite.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// Validate checks the settings every process shares and returns all
// problems in one error.
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate database
	if c.DatabaseURL != "" {
		if parsedURL, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid database URL: %v", err))
		} else if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid database URL scheme '%s': must be 'postgres' or 'postgresql'", parsedURL.Scheme))
		}
	} else if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when DATABASE_URL is not set")
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if err := c.validateClient(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateClient checks only the settings the client needs.
func (c *Config) ValidateClient() error {
	if err := c.validateClient(); err != nil {
		return fmt.Errorf("configuration validation failed:\n- %s", err)
	}
	return nil
}

func (c *Config) validateClient() error {
	var errors []string

	if parsedURL, err := url.Parse(c.APIBaseURL); err != nil || parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': must be an absolute URL", c.APIBaseURL))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.APITimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be positive", c.APITimeout))
	} else if c.APITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at most 5 minutes", c.APITimeout))
	}
	if c.APIRetryMax < 0 || c.APIRetryMax > 10 {
		errors = append(errors, fmt.Sprintf("invalid API retry max %d: must be between 0 and 10", c.APIRetryMax))
	}

	validBackends := []string{"file", "sqlite", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.LocalBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid local backend '%s': must be one of %v", c.LocalBackend, validBackends))
	} else if c.LocalBackend != "memory" {
		if c.LocalDataPath == "" {
			errors = append(errors, fmt.Sprintf("local data path cannot be empty when using %s backend", c.LocalBackend))
		} else if dir := filepath.Dir(c.LocalDataPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create local data directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.LocalStorageKey == "" {
		errors = append(errors, "local storage key cannot be empty")
	}
	if strings.TrimSpace(c.UserID) == "" {
		errors = append(errors, "user ID cannot be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
