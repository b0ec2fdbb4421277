package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Tracking sink names accepted by TRACKING_SINK.
const (
	SinkNone   = "none"
	SinkAMQP   = "amqp"
	SinkSheets = "sheets"
	SinkSQLite = "sqlite"
)

type Config struct {
	// Backend service credentials
	ServiceURL     string
	ServiceAnonKey string

	// Environment
	AppEnv   string
	LogLevel string

	// HTTP Server
	Port          string
	SessionSecret string
	// SecureCookies defaults to on outside development.
	SecureCookies bool

	// Query cache
	QueryStaleTime    time.Duration
	QueryGCTime       time.Duration
	QueryMaxEntries   int
	QueryFetchTimeout time.Duration

	// Tracking
	TrackingSink    string
	TrackingTimeout time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Database (page-view journal)
	SQLiteDBPath string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Tracker worker
	WorkerBatchSize      int
	WorkerMirrorInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		ServiceURL:     strings.TrimSpace(os.Getenv("SERVICE_URL")),
		ServiceAnonKey: strings.TrimSpace(os.Getenv("SERVICE_ANON_KEY")),

		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Port:          getEnv("PORT", "8081"),
		SessionSecret: os.Getenv("SESSION_SECRET"),

		QueryStaleTime:    getEnvDuration("QUERY_STALE_TIME", 5*time.Minute),
		QueryGCTime:       getEnvDuration("QUERY_GC_TIME", 30*time.Minute),
		QueryMaxEntries:   getEnvInt("QUERY_MAX_ENTRIES", 500),
		QueryFetchTimeout: getEnvDuration("QUERY_FETCH_TIMEOUT", 10*time.Second),

		TrackingSink:    getEnv("TRACKING_SINK", SinkNone),
		TrackingTimeout: getEnvDuration("TRACKING_TIMEOUT", 5*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moneta"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "page_views"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/moneta.db"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "PageViews"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		WorkerBatchSize:      getEnvInt("WORKER_BATCH_SIZE", 50),
		WorkerMirrorInterval: getEnvDuration("WORKER_MIRROR_INTERVAL", time.Minute),
	}

	cfg.SecureCookies = getEnvBool("SECURE_COOKIES", !cfg.IsDevelopment())

	return cfg
}

// IsDevelopment reports whether the process runs in a development build.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local":
		return true
	default:
		return false
	}
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateCredentials checks only the backend credentials. A failure here is fatal.
func (c *Config) ValidateCredentials() error {
	if errors := c.credentialProblems(); len(errors) > 0 {
		return fmt.Errorf("missing backend credentials:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) credentialProblems() []string {
	var errors []string
	if c.ServiceURL == "" {
		errors = append(errors, "SERVICE_URL is required")
	} else if u, err := url.Parse(c.ServiceURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid SERVICE_URL '%s': must be an absolute http(s) URL", c.ServiceURL))
	}
	if c.ServiceAnonKey == "" {
		errors = append(errors, "SERVICE_ANON_KEY is required")
	}
	return errors
}

// Validate validates the configuration, backend credentials included, and
// returns an error listing every problem.
func (c *Config) Validate() error {
	return combine(append(c.credentialProblems(), c.settingsProblems()...))
}

// ValidateSettings validates everything except the backend credentials,
// which the tracker process does not use.
func (c *Config) ValidateSettings() error {
	return combine(c.settingsProblems())
}

func combine(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) settingsProblems() []string {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SessionSecret != "" && len(c.SessionSecret) < 16 {
		errors = append(errors, "SESSION_SECRET must be at least 16 characters")
	}

	// Validate query cache policy
	if c.QueryStaleTime < 0 {
		errors = append(errors, fmt.Sprintf("invalid query stale time %v: must not be negative", c.QueryStaleTime))
	}
	if c.QueryGCTime < time.Second {
		errors = append(errors, fmt.Sprintf("invalid query gc time %v: must be at least 1 second", c.QueryGCTime))
	}
	if c.QueryMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid query max entries %d: must be at least 1", c.QueryMaxEntries))
	}
	if c.QueryFetchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid query fetch timeout %v: must be positive", c.QueryFetchTimeout))
	}

	// Validate tracking sink
	validSinks := []string{SinkNone, SinkAMQP, SinkSheets, SinkSQLite}
	isValidSink := false
	for _, sink := range validSinks {
		if c.TrackingSink == sink {
			isValidSink = true
			break
		}
	}
	if !isValidSink {
		errors = append(errors, fmt.Sprintf("invalid tracking sink '%s': must be one of %v", c.TrackingSink, validSinks))
	}
	if c.TrackingTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid tracking timeout %v: must be positive", c.TrackingTimeout))
	}

	// Validate AMQP configuration
	if c.TrackingSink == SinkAMQP && c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required when using the amqp tracking sink")
	}
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

	// Validate SQLite configuration
	if c.TrackingSink == SinkSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using the sqlite tracking sink")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate Google Sheets configuration
	if c.TrackingSink == SinkSheets {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using the sheets tracking sink")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using the sheets tracking sink")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets tracking sink")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.WorkerBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid worker batch size %d: must be at least 1", c.WorkerBatchSize))
	} else if c.WorkerBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid worker batch size %d: must be at most 1000", c.WorkerBatchSize))
	}
	if c.WorkerMirrorInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid worker mirror interval %v: must be at least 1 second", c.WorkerMirrorInterval))
	}

	return errors
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
