package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL        string
	SlowQueryThreshold time.Duration
	LogSQL             bool

	// JWT
	JWTSecret          string
	JWTExpirationHours int

	// Storage
	StoragePath string
	MaxUploadMB int

	// Background Workers
	WorkerCount int

	// CORS
	AllowedOrigins []string

	// External dependencies (blob store, identity provider)
	DependencyTimeout time.Duration

	// Electronic signatures
	SignatureAttemptsPerMinute int

	// Email (Resend)
	EnableEmailNotifications bool
	ResendAPIKey             string
	FromEmail                string
	AppURL                   string

	// Reports
	WkhtmltopdfPath string

	// Sentry
	SentryDSN string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                       getEnv("PORT", "8080"),
		Environment:                getEnv("ENVIRONMENT", "development"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		SlowQueryThreshold:         time.Duration(getEnvAsInt("DB_SLOW_QUERY_MS", 200)) * time.Millisecond,
		LogSQL:                     getEnvAsBool("DB_LOG_SQL", false),
		JWTSecret:                  getEnv("JWT_SECRET", ""),
		JWTExpirationHours:         getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		StoragePath:                getEnv("STORAGE_PATH", "./storage"),
		MaxUploadMB:                getEnvAsInt("MAX_UPLOAD_MB", 50),
		WorkerCount:                getEnvAsInt("WORKER_COUNT", 5),
		AllowedOrigins:             getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		DependencyTimeout:          time.Duration(getEnvAsInt("DEPENDENCY_TIMEOUT_SECONDS", 10)) * time.Second,
		SignatureAttemptsPerMinute: getEnvAsInt("SIGNATURE_ATTEMPTS_PER_MINUTE", 5),
		EnableEmailNotifications:   getEnvAsBool("ENABLE_EMAIL_NOTIFICATIONS", false),
		ResendAPIKey:               getEnv("RESEND_API_KEY", ""),
		FromEmail:                  getEnv("FROM_EMAIL", "noreply@pharmavault.app"),
		AppURL:                     getEnv("APP_URL", "http://localhost:3000"),
		WkhtmltopdfPath:            getEnv("WKHTMLTOPDF_PATH", ""),
		SentryDSN:                  getEnv("SENTRY_DSN", ""),
	}

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	if cfg.DependencyTimeout <= 0 {
		return nil, fmt.Errorf("DEPENDENCY_TIMEOUT_SECONDS must be positive")
	}

	// Set default JWT secret for development
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	return cfg, nil
}

// MaxUploadBytes returns the upload size limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool reads an environment variable as boolean
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
