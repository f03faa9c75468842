package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Remote CRM object store configuration
	CRM CRMConfig

	// Local audit/reconciliation database configuration
	Database DatabaseConfig

	// JWT configuration for portal session tokens
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Reconciliation job configuration
	Reconcile ReconcileConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// CRMConfig holds remote object store configuration
type CRMConfig struct {
	BaseURL     string        // Provider API base URL
	AccessToken string        // Bearer token (SECRET - never expose to client)
	Timeout     time.Duration // Per-request timeout

	// Provider-imposed per-call limits. These match the observed provider
	// limits and should only be lowered, never raised.
	ObjectBatchLimit      int // batch object read/update/create (100)
	AssociationBatchLimit int // batch association read (1000)
	WriteBatchLimit       int // batch association create/archive (100)
}

// DatabaseConfig holds audit database configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	SessionTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// ReconcileConfig holds capacity reconciliation configuration
type ReconcileConfig struct {
	Enabled      bool
	CronSpec     string        // cron expression with seconds precision
	HorizonDays  int           // how far ahead to reconcile session counters
	SessionBatch int           // sessions reconciled per run
	RunTimeout   time.Duration // upper bound for a single run
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		CRM: CRMConfig{
			BaseURL:               getEnv("CRM_BASE_URL", "https://api.hubapi.com"),
			AccessToken:           getEnv("CRM_ACCESS_TOKEN", ""),
			Timeout:               time.Duration(getEnvAsInt("CRM_TIMEOUT_SECONDS", 30)) * time.Second,
			ObjectBatchLimit:      getEnvAsInt("CRM_OBJECT_BATCH_LIMIT", 100),
			AssociationBatchLimit: getEnvAsInt("CRM_ASSOCIATION_BATCH_LIMIT", 1000),
			WriteBatchLimit:       getEnvAsInt("CRM_WRITE_BATCH_LIMIT", 100),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			SessionTokenExpiry: time.Duration(getEnvAsInt("JWT_SESSION_TOKEN_EXPIRY", 1800)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization"}),
		},
		Reconcile: ReconcileConfig{
			Enabled:      getEnvAsBool("RECONCILE_ENABLED", true),
			CronSpec:     getEnv("RECONCILE_CRON", "0 */30 * * * *"),
			HorizonDays:  getEnvAsInt("RECONCILE_HORIZON_DAYS", 30),
			SessionBatch: getEnvAsInt("RECONCILE_SESSION_BATCH", 200),
			RunTimeout:   time.Duration(getEnvAsInt("RECONCILE_RUN_TIMEOUT_SECONDS", 120)) * time.Second,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.CRM.AccessToken == "" {
		return fmt.Errorf("CRM_ACCESS_TOKEN is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Server.Environment == "production" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}

	if c.CRM.ObjectBatchLimit <= 0 || c.CRM.AssociationBatchLimit <= 0 || c.CRM.WriteBatchLimit <= 0 {
		return fmt.Errorf("CRM batch limits must be positive")
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer with a fallback default
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsBool retrieves an environment variable as a boolean with a fallback default
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsSlice retrieves a comma-separated environment variable as a slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
