// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Storage settings:
//
//	SITEKIT_STORAGE_TYPE="memory"  # memory, sqlite, postgres
//	SITEKIT_SQLITE_PATH="sitekit.db"
//	SITEKIT_POSTGRES_URL="postgres://localhost/sitekit"
//	SITEKIT_MAX_OPEN_CONNS="25"
//	SITEKIT_MAX_IDLE_CONNS="5"
//
// Cache settings:
//
//	SITEKIT_CACHE_TYPE="lru"  # lru, redis
//	SITEKIT_CACHE_SIZE="512"
//	SITEKIT_REDIS_ADDR="localhost:6379"
//	SITEKIT_REDIS_TTL="15m"
//
// Site registry settings:
//
//	SITEKIT_PUBLIC_AUTHORITY="GROUP_EVERYONE"
//	SITEKIT_TRASH_RETENTION="720h"
//	SITEKIT_PURGE_SCHEDULE="0 3 * * *"
//
// Observability settings:
//
//	SITEKIT_LOG_LEVEL="info"  # debug, info, warn, error
//	SITEKIT_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/repo: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
