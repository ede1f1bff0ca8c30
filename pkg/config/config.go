package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/observability"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Redis configuration (empty Addr selects in-memory backends)
	Redis RedisConfig

	// Token service configuration
	Token TokenConfig

	// Session manager configuration
	Session SessionConfig

	// API key engine configuration
	APIKey APIKeyConfig

	// RBAC engine configuration
	RBAC RBACConfig

	// Audit sink configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// ServiceName is this instance's identity; inbound service tokens
	// must target it.
	ServiceName string

	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// RoutesFile is an optional YAML route table; absent, every route
	// requires authentication.
	RoutesFile string

	// TenantHeader carries the request tenant on inbound requests.
	TenantHeader string

	// AdminMFAMaxAge demands an MFA assertion no older than this on
	// admin-tier routes. Zero disables the check.
	AdminMFAMaxAge time.Duration

	// RateLimit caps requests per client per RateWindow across the whole
	// listener. Zero disables the limiter.
	RateLimit  int
	RateWindow string
}

// RedisConfig holds the shared Redis connection settings. A single client
// backs the session store and the quota counters.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	KeyPrefix  string
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// TokenConfig holds JWT issuance settings. The signing secret is read from
// the environment only; it never appears in files.
type TokenConfig struct {
	Issuer        string
	Audience      string
	SigningKeyID  string
	SigningSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ServiceTTL    time.Duration

	// RevocationCapacity bounds the in-memory revocation list.
	RevocationCapacity int
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	TTL        time.Duration
	Sliding    bool
	MaxPerUser int

	// CookieName is the cookie the edge reads session credentials from.
	CookieName string

	// SweepSchedule is a cron expression for the expired-session sweep.
	SweepSchedule string
}

// APIKeyConfig holds API key engine settings
type APIKeyConfig struct {
	MaxKeysPerUser   int
	DefaultRateLimit int
	// DefaultRateWindow is minute, hour or day.
	DefaultRateWindow string
}

// RBACConfig holds role engine settings
type RBACConfig struct {
	// RolesFile is an optional YAML role definition file loaded at boot.
	RolesFile string

	// WatchRoles reloads RolesFile on change.
	WatchRoles bool

	// CacheSize bounds the decision cache.
	CacheSize int
}

// AuditConfig holds audit sink settings
type AuditConfig struct {
	// Sink is "log", "file", "both" or "none".
	Sink string

	// FilePath receives events when Sink is file or both.
	FilePath string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Redis:         loadRedisConfig(),
		Token:         loadTokenConfig(),
		Session:       loadSessionConfig(),
		APIKey:        loadAPIKeyConfig(),
		RBAC:          loadRBACConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		ServiceName:     getEnv("DOTMAC_SERVICE_NAME", "authd"),
		Host:            getEnv("DOTMAC_HOST", "0.0.0.0"),
		Port:            getEnv("DOTMAC_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DOTMAC_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DOTMAC_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DOTMAC_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DOTMAC_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DOTMAC_HEALTH_PORT", "9090"),
		RoutesFile:      getEnv("DOTMAC_ROUTES_FILE", ""),
		TenantHeader:    getEnv("DOTMAC_TENANT_HEADER", "X-Tenant-ID"),
		AdminMFAMaxAge:  getEnvDuration("DOTMAC_ADMIN_MFA_MAX_AGE", 0),
		RateLimit:       getEnvInt("DOTMAC_EDGE_RATE_LIMIT", 120),
		RateWindow:      getEnv("DOTMAC_EDGE_RATE_WINDOW", "minute"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       getEnv("DOTMAC_REDIS_ADDR", ""),
		Password:   getEnv("DOTMAC_REDIS_PASSWORD", ""),
		DB:         getEnvInt("DOTMAC_REDIS_DB", 0),
		PoolSize:   getEnvInt("DOTMAC_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("DOTMAC_REDIS_MAX_RETRIES", 3),
		KeyPrefix:  getEnv("DOTMAC_REDIS_KEY_PREFIX", "dotmac"),
	}
}

func loadTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:        getEnv("DOTMAC_TOKEN_ISSUER", "dotmac-auth"),
		Audience:      getEnv("DOTMAC_TOKEN_AUDIENCE", "dotmac-platform"),
		SigningKeyID:  getEnv("DOTMAC_TOKEN_SIGNING_KEY_ID", "primary"),
		SigningSecret: getEnv("DOTMAC_TOKEN_SIGNING_SECRET", ""),
		AccessTTL:     getEnvDuration("DOTMAC_TOKEN_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getEnvDuration("DOTMAC_TOKEN_REFRESH_TTL", 7*24*time.Hour),
		ServiceTTL:    getEnvDuration("DOTMAC_TOKEN_SERVICE_TTL", 5*time.Minute),

		RevocationCapacity: getEnvInt("DOTMAC_TOKEN_REVOCATION_CAP", 100000),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:           getEnvDuration("DOTMAC_SESSION_TTL", 24*time.Hour),
		Sliding:       getEnvBool("DOTMAC_SESSION_SLIDING", true),
		MaxPerUser:    getEnvInt("DOTMAC_SESSION_MAX_PER_USER", 5),
		CookieName:    getEnv("DOTMAC_SESSION_COOKIE_NAME", "dm_session"),
		SweepSchedule: getEnv("DOTMAC_SESSION_SWEEP_SCHEDULE", "@every 5m"),
	}
}

func loadAPIKeyConfig() APIKeyConfig {
	return APIKeyConfig{
		MaxKeysPerUser:    getEnvInt("DOTMAC_APIKEY_MAX_PER_USER", 10),
		DefaultRateLimit:  getEnvInt("DOTMAC_APIKEY_RATE_LIMIT", 1000),
		DefaultRateWindow: getEnv("DOTMAC_APIKEY_RATE_WINDOW", "hour"),
	}
}

func loadRBACConfig() RBACConfig {
	return RBACConfig{
		RolesFile:  getEnv("DOTMAC_RBAC_ROLES_FILE", ""),
		WatchRoles: getEnvBool("DOTMAC_RBAC_WATCH_ROLES", false),
		CacheSize:  getEnvInt("DOTMAC_RBAC_CACHE_SIZE", 10000),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Sink:     getEnv("DOTMAC_AUDIT_SINK", "log"),
		FilePath: getEnv("DOTMAC_AUDIT_FILE", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("DOTMAC_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("DOTMAC_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.AdminMFAMaxAge < 0 {
		return fmt.Errorf("admin MFA max age must not be negative")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("edge rate limit must not be negative")
	}
	if c.Server.RateLimit > 0 {
		if _, err := quota.ParseWindow(c.Server.RateWindow); err != nil {
			return fmt.Errorf("invalid edge rate window: %w", err)
		}
	}

	if c.Token.SigningSecret == "" {
		return fmt.Errorf("DOTMAC_TOKEN_SIGNING_SECRET is required")
	}
	if len(c.Token.SigningSecret) < 32 {
		return fmt.Errorf("token signing secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.ServiceTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return fmt.Errorf("refresh lifetime must exceed access lifetime")
	}
	if c.Token.RevocationCapacity <= 0 {
		return fmt.Errorf("token revocation capacity must be positive")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.MaxPerUser <= 0 {
		return fmt.Errorf("session max per user must be positive")
	}

	if c.APIKey.MaxKeysPerUser <= 0 {
		return fmt.Errorf("api key max per user must be positive")
	}
	if c.APIKey.DefaultRateLimit <= 0 {
		return fmt.Errorf("api key rate limit must be positive")
	}
	if _, err := quota.ParseWindow(c.APIKey.DefaultRateWindow); err != nil {
		return fmt.Errorf("invalid api key rate window: %w", err)
	}

	if c.RBAC.CacheSize <= 0 {
		return fmt.Errorf("rbac cache size must be positive")
	}
	if c.RBAC.WatchRoles && c.RBAC.RolesFile == "" {
		return fmt.Errorf("role watching requires a roles file")
	}

	switch c.Audit.Sink {
	case "log", "none", "both", "file":
	default:
		return fmt.Errorf("invalid audit sink: %s (must be log, file, both, or none)", c.Audit.Sink)
	}
	if (c.Audit.Sink == "file" || c.Audit.Sink == "both") && c.Audit.FilePath == "" {
		return fmt.Errorf("audit file path is required for the %s sink", c.Audit.Sink)
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
