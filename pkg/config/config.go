package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/formhive/formhive/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Access engine configuration
	Access AccessConfig

	// Forms configuration
	Forms FormsConfig

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string // Comma-separated read replica URLs
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// AccessConfig holds access engine configuration
type AccessConfig struct {
	// DecisionCacheEnabled toggles the Redis decision cache
	DecisionCacheEnabled bool

	// DecisionCacheTTL bounds staleness for cached access decisions
	DecisionCacheTTL time.Duration
}

// FormsConfig holds form service configuration
type FormsConfig struct {
	// CategoriesFile is the YAML file defining allowed form categories
	CategoriesFile string

	// CacheSize is the number of forms held in the in-process LRU cache
	CacheSize int

	// CacheTTL bounds staleness for cached form records
	CacheTTL time.Duration
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	// LogAllRequests logs every HTTP request, not just mutations
	LogAllRequests bool

	// RetentionDays is how long audit events are kept before cleanup
	RetentionDays int

	// FileLogPath enables a secondary file audit log when non-empty
	FileLogPath string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Access:        loadAccessConfig(),
		Forms:         loadFormsConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FORMHIVE_HOST", "0.0.0.0"),
		Port:            getEnv("FORMHIVE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FORMHIVE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FORMHIVE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FORMHIVE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FORMHIVE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FORMHIVE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("FORMHIVE_POSTGRES_URL", ""),
		ReplicaURLs: getEnv("FORMHIVE_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("FORMHIVE_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("FORMHIVE_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("FORMHIVE_POSTGRES_TIMEOUT", 10*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("FORMHIVE_REDIS_URL", ""),
		Password:   getEnv("FORMHIVE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("FORMHIVE_REDIS_DB", 0),
		MaxRetries: getEnvInt("FORMHIVE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("FORMHIVE_REDIS_POOL_SIZE", 10),
	}
}

// loadAccessConfig loads access engine configuration from environment
func loadAccessConfig() AccessConfig {
	return AccessConfig{
		DecisionCacheEnabled: getEnvBool("FORMHIVE_DECISION_CACHE_ENABLED", true),
		DecisionCacheTTL:     getEnvDuration("FORMHIVE_DECISION_CACHE_TTL", 5*time.Minute),
	}
}

// loadFormsConfig loads form service configuration from environment
func loadFormsConfig() FormsConfig {
	return FormsConfig{
		CategoriesFile: getEnv("FORMHIVE_CATEGORIES_FILE", ""),
		CacheSize:      getEnvInt("FORMHIVE_FORM_CACHE_SIZE", 1024),
		CacheTTL:       getEnvDuration("FORMHIVE_FORM_CACHE_TTL", 5*time.Minute),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		LogAllRequests: getEnvBool("FORMHIVE_AUDIT_LOG_ALL_REQUESTS", false),
		RetentionDays:  getEnvInt("FORMHIVE_AUDIT_RETENTION_DAYS", 90),
		FileLogPath:    getEnv("FORMHIVE_AUDIT_FILE_LOG_PATH", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("FORMHIVE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FORMHIVE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FORMHIVE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FORMHIVE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FORMHIVE_OTEL_SERVICE_NAME", "formhive"),
		OTelServiceVersion: getEnv("FORMHIVE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FORMHIVE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("postgres max conns must be at least min conns")
	}

	// The decision cache needs Redis
	if c.Access.DecisionCacheEnabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when the decision cache is enabled")
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
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
