// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings except the token signing secret, which has
// no safe default and must be provided.
//
// # Configuration Structure
//
// Server settings:
//
//	DOTMAC_SERVICE_NAME="authd"
//	DOTMAC_HOST="0.0.0.0"
//	DOTMAC_PORT="8080"
//	DOTMAC_HEALTH_PORT="9090"
//	DOTMAC_READ_TIMEOUT="15s"
//	DOTMAC_WRITE_TIMEOUT="15s"
//	DOTMAC_ROUTES_FILE="/etc/dotmac/routes.yaml"
//
// Redis settings (leave DOTMAC_REDIS_ADDR empty to run on in-memory backends):
//
//	DOTMAC_REDIS_ADDR="localhost:6379"
//	DOTMAC_REDIS_DB="0"
//	DOTMAC_REDIS_POOL_SIZE="10"
//	DOTMAC_REDIS_KEY_PREFIX="dotmac"
//
// Token settings:
//
//	DOTMAC_TOKEN_SIGNING_SECRET="..."   # required, at least 32 bytes
//	DOTMAC_TOKEN_ISSUER="dotmac-auth"
//	DOTMAC_TOKEN_AUDIENCE="dotmac-platform"
//	DOTMAC_TOKEN_ACCESS_TTL="15m"
//	DOTMAC_TOKEN_REFRESH_TTL="168h"
//
// Session, API key and RBAC settings:
//
//	DOTMAC_SESSION_TTL="24h"
//	DOTMAC_SESSION_SLIDING="true"
//	DOTMAC_SESSION_MAX_PER_USER="5"
//	DOTMAC_SESSION_SWEEP_SCHEDULE="@every 5m"
//	DOTMAC_APIKEY_MAX_PER_USER="10"
//	DOTMAC_APIKEY_RATE_LIMIT="1000"
//	DOTMAC_APIKEY_RATE_WINDOW="hour"  # minute, hour, day
//	DOTMAC_RBAC_ROLES_FILE="/etc/dotmac/roles.yaml"
//	DOTMAC_RBAC_WATCH_ROLES="true"
//
// Audit and observability settings:
//
//	DOTMAC_AUDIT_SINK="log"  # log, file, both, none
//	DOTMAC_AUDIT_FILE="/var/log/dotmac/audit.jsonl"
//	DOTMAC_LOG_LEVEL="info"  # debug, info, warn, error
//	DOTMAC_METRICS_ENABLED="true"
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
//	fmt.Printf("Redis: %v\n", cfg.Redis.Enabled())
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/quota: Validates the API key rate window
package config
