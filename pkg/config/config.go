package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sitekit/sitekit/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Storage configuration
	Storage StorageConfig

	// Cache configuration
	Cache CacheConfig

	// Site registry configuration
	Sites SitesConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// StorageConfig selects and configures the backing store
type StorageConfig struct {
	// Type is one of "memory", "sqlite" or "postgres"
	Type string

	// SQLitePath is the database file for the sqlite backend
	SQLitePath string

	// PostgresURL is the DSN for the postgres backend
	PostgresURL string

	// MaxOpenConns bounds the SQL connection pool
	MaxOpenConns int
	MaxIdleConns int
}

// CacheConfig configures the site name cache
type CacheConfig struct {
	// Type is one of "lru" or "redis"
	Type string

	// LRUSize is the in-process cache capacity
	LRUSize int

	// Redis connection settings, used when Type is "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// SitesConfig holds registry behavior settings
type SitesConfig struct {
	// PublicAuthority receives the public grant on PUBLIC and MODERATED
	// sites
	PublicAuthority string

	// TrashRetention is how long deleted sites stay restorable
	TrashRetention time.Duration

	// PurgeSchedule is the cron expression of the trash purger
	PurgeSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// AuditLogDir enables the file audit trail when non-empty
	AuditLogDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage:       loadStorageConfig(),
		Cache:         loadCacheConfig(),
		Sites:         loadSitesConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:         getEnv("SITEKIT_STORAGE_TYPE", "memory"),
		SQLitePath:   getEnv("SITEKIT_SQLITE_PATH", "sitekit.db"),
		PostgresURL:  getEnv("SITEKIT_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("SITEKIT_MAX_OPEN_CONNS", 25),
		MaxIdleConns: getEnvInt("SITEKIT_MAX_IDLE_CONNS", 5),
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Type:          getEnv("SITEKIT_CACHE_TYPE", "lru"),
		LRUSize:       getEnvInt("SITEKIT_CACHE_SIZE", 512),
		RedisAddr:     getEnv("SITEKIT_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("SITEKIT_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("SITEKIT_REDIS_DB", 0),
		RedisTTL:      getEnvDuration("SITEKIT_REDIS_TTL", 15*time.Minute),
	}
}

// loadSitesConfig loads site registry configuration from environment
func loadSitesConfig() SitesConfig {
	return SitesConfig{
		PublicAuthority: getEnv("SITEKIT_PUBLIC_AUTHORITY", "GROUP_EVERYONE"),
		TrashRetention:  getEnvDuration("SITEKIT_TRASH_RETENTION", 30*24*time.Hour),
		PurgeSchedule:   getEnv("SITEKIT_PURGE_SCHEDULE", "0 3 * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("SITEKIT_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("SITEKIT_METRICS_ENABLED", true),
		AuditLogDir:    getEnv("SITEKIT_AUDIT_LOG_DIR", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory":
		// No further settings.
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite, or postgres)", c.Storage.Type)
	}

	switch c.Cache.Type {
	case "lru":
		if c.Cache.LRUSize <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be lru or redis)", c.Cache.Type)
	}

	if c.Sites.PublicAuthority == "" {
		return fmt.Errorf("public authority is required")
	}
	if c.Sites.TrashRetention <= 0 {
		return fmt.Errorf("trash retention must be positive")
	}
	if c.Sites.PurgeSchedule == "" {
		return fmt.Errorf("purge schedule is required")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
