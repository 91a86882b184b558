package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protection store kinds
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDatabase = "database"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port     string
	LogLevel string

	// Database configuration
	DBType               string // mysql, postgres, sqlite, sqlserver, etc.
	DBHost               string
	DBPort               string
	DBAppDatabase        string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int

	// Authorizer configuration
	AuthzURL      string
	AuthzClientID string

	// Protection guard
	RedisURL             string
	ProtectionStore      string
	ProtectionMonthlyCap int
	ProtectionFailPolicy string
	RuleCacheTTL         time.Duration
	EventRetention       time.Duration

	// Edge functions
	EdgeFunctionsURL string
	EdgeServiceKey   string

	// Event archive
	ArchiveBucket string
	ArchivePrefix string
	ArchiveRegion string

	// Optional static credentials and endpoint for S3 compatible stores
	ArchiveEndpoint        string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DBType:               getEnv("DB_TYPE", "postgres"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBAppDatabase:        getEnv("DB_APP_DATABASE", ""),
		DBAppUser:            getEnv("DB_APP_USER", ""),
		DBAppPassword:        getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit: getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		ProtectionStore:      strings.ToLower(getEnv("PROTECTION_STORE", StoreDatabase)),
		ProtectionMonthlyCap: getEnvAsInt("PROTECTION_MONTHLY_CAP", 10),
		ProtectionFailPolicy: strings.ToLower(getEnv("PROTECTION_FAIL_POLICY", "open")),
		RuleCacheTTL:         time.Duration(getEnvAsInt("RULE_CACHE_TTL_SECONDS", 30)) * time.Second,
		EventRetention:       time.Duration(getEnvAsInt("EVENT_RETENTION_DAYS", 90)) * 24 * time.Hour,
		EdgeFunctionsURL:     strings.TrimSuffix(getEnv("EDGE_FUNCTIONS_URL", ""), "/"),
		EdgeServiceKey:       getEnv("EDGE_SERVICE_KEY", ""),
		ArchiveBucket:        getEnv("ARCHIVE_BUCKET", ""),
		ArchivePrefix:        getEnv("ARCHIVE_PREFIX", "autogift-events"),
		ArchiveRegion:        getEnv("ARCHIVE_REGION", "us-east-1"),

		ArchiveEndpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		ArchiveSecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
	}

	// Validate required fields
	if cfg.DBAppDatabase == "" {
		return nil, fmt.Errorf("DB_APP_DATABASE is required")
	}
	if cfg.DBType != "sqlite" && cfg.DBAppUser == "" {
		return nil, fmt.Errorf("DB_APP_USER is required")
	}
	if cfg.AuthzURL == "" {
		return nil, fmt.Errorf("AUTHZ_URL is required")
	}
	if cfg.AuthzClientID == "" {
		return nil, fmt.Errorf("AUTHZ_CLIENT_ID is required")
	}
	if cfg.EdgeFunctionsURL == "" {
		return nil, fmt.Errorf("EDGE_FUNCTIONS_URL is required")
	}

	switch cfg.ProtectionStore {
	case StoreMemory, StoreDatabase:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when PROTECTION_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported PROTECTION_STORE: %s", cfg.ProtectionStore)
	}

	if cfg.ProtectionFailPolicy != "open" && cfg.ProtectionFailPolicy != "closed" {
		return nil, fmt.Errorf("PROTECTION_FAIL_POLICY must be open or closed, got %s", cfg.ProtectionFailPolicy)
	}
	if cfg.ProtectionMonthlyCap < 1 {
		return nil, fmt.Errorf("PROTECTION_MONTHLY_CAP must be positive")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
