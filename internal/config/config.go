package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	// HTTP Server
	Port         string `env:"PORT"`
	CookieSecure bool   `env:"COOKIE_SECURE"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=text json"`

	// Backend selection
	DataBackend    string        `env:"DATA_BACKEND" validate:"oneof=supabase sqlite postgres memory"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT"`

	// Hosted backend
	SupabaseURL     string `env:"SUPABASE_URL" validate:"omitempty,url"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`

	// Self-hosted backends
	SQLiteDBPath        string `env:"SQLITE_DB_PATH"`
	PostgresDSN         string `env:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"POSTGRES_AUTO_MIGRATE"`
	MemoryDataDir       string `env:"MEMORY_DATA_DIR"`
	MemoryUserEmail     string `env:"MEMORY_USER_EMAIL" validate:"omitempty,email"`
	MemoryUserPassword  string `env:"MEMORY_USER_PASSWORD"`

	// Sessions
	SessionSecret string        `env:"SESSION_SECRET" validate:"omitempty,min=32"`
	SessionTTL    time.Duration `env:"SESSION_TTL"`
	SessionStore  string        `env:"SESSION_STORE" validate:"oneof=memory redis"`
	RedisURL      string        `env:"REDIS_URL" validate:"omitempty,url"`

	// AMQP
	AMQPURL      string `env:"AMQP_URL" validate:"omitempty,url"`
	AMQPExchange string `env:"AMQP_EXCHANGE"`
	AMQPQueue    string `env:"AMQP_QUEUE"`

	// Google Sheets mirror (worker)
	GoogleSpreadsheetID      string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleServiceAccountFile string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DataBackend:    getEnv("DATA_BACKEND", "supabase"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 7*time.Second),

		SupabaseURL:     getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey: getEnv("SUPABASE_ANON_KEY", ""),

		SQLiteDBPath:        getEnv("SQLITE_DB_PATH", "./data/olyfo.db"),
		PostgresDSN:         getEnv("POSTGRES_DSN", ""),
		PostgresAutoMigrate: getEnvBool("POSTGRES_AUTO_MIGRATE", true),
		MemoryDataDir:       getEnv("MEMORY_DATA_DIR", "data"),
		MemoryUserEmail:     getEnv("MEMORY_USER_EMAIL", ""),
		MemoryUserPassword:  getEnv("MEMORY_USER_PASSWORD", ""),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 12*time.Hour),
		SessionStore:  getEnv("SESSION_STORE", "memory"),
		RedisURL:      getEnv("REDIS_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "olyfo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "olyfo_activity"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "supabase":
		if c.SupabaseURL == "" {
			problems = append(problems, "SUPABASE_URL is required when using supabase backend")
		}
		if c.SupabaseAnonKey == "" {
			problems = append(problems, "SUPABASE_ANON_KEY is required when using supabase backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			problems = append(problems, "POSTGRES_DSN is required when using postgres backend")
		}
	}

	if c.SessionStore == "redis" {
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required when using redis session store")
		}
		if c.SessionSecret == "" {
			problems = append(problems, "SESSION_SECRET is required when using redis session store")
		}
	}
	if c.SessionTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.BackendTimeout < time.Second {
		problems = append(problems, fmt.Sprintf("invalid backend timeout %v: must be at least 1 second", c.BackendTimeout))
	} else if c.BackendTimeout > 5*time.Minute {
		problems = append(problems, fmt.Sprintf("invalid backend timeout %v: must be at most 5 minutes", c.BackendTimeout))
	}

	if c.AMQPURL != "" {
		if !strings.HasPrefix(c.AMQPURL, "amqp://") && !strings.HasPrefix(c.AMQPURL, "amqps://") {
			problems = append(problems, "invalid AMQP URL scheme: must be 'amqp' or 'amqps'")
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings only the worker needs.
func (c *Config) ValidateWorker() error {
	var problems []string
	if c.AMQPURL == "" {
		problems = append(problems, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID == "" {
		problems = append(problems, "GOOGLE_SPREADSHEET_ID is required for the worker")
	}
	if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
		problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the worker")
	}
	if len(problems) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// describe renders one struct-tag failure without echoing secret values.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("invalid %s '%v': must be one of [%s]", fe.Field(), fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("invalid %s: must be a URL", fe.Field())
	case "email":
		return fmt.Sprintf("invalid %s '%v': must be an email address", fe.Field(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("invalid %s: failed '%s' check", fe.Field(), fe.Tag())
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
