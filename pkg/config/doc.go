// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	FORMHIVE_HOST="0.0.0.0"
//	FORMHIVE_PORT="8080"
//	FORMHIVE_HEALTH_PORT="9090"
//	FORMHIVE_READ_TIMEOUT="15s"
//	FORMHIVE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	FORMHIVE_POSTGRES_URL="postgres://localhost/formhive"
//	FORMHIVE_POSTGRES_REPLICA_URLS="postgres://replica1/formhive,postgres://replica2/formhive"
//	FORMHIVE_POSTGRES_MAX_CONNS="20"
//
// Redis and cache settings:
//
//	FORMHIVE_REDIS_URL="redis://localhost:6379"
//	FORMHIVE_REDIS_POOL_SIZE="10"
//	FORMHIVE_DECISION_CACHE_ENABLED="true"
//	FORMHIVE_DECISION_CACHE_TTL="5m"
//	FORMHIVE_FORM_CACHE_SIZE="1024"
//
// Audit settings:
//
//	FORMHIVE_AUDIT_RETENTION_DAYS="90"
//	FORMHIVE_AUDIT_LOG_ALL_REQUESTS="false"
//
// Observability settings:
//
//	FORMHIVE_LOG_LEVEL="info"  # debug, info, warn, error
//	FORMHIVE_METRICS_ENABLED="true"
//	FORMHIVE_OTEL_ENABLED="true"
//	FORMHIVE_OTEL_ENDPOINT="otel-collector:4317"
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
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage/postgres: Uses database and Redis configuration
//   - pkg/observability: Uses observability configuration
package config
