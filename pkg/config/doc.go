// Package config loads service configuration from environment variables and
// the reconciliation policy from a YAML file.
//
// # Environment
//
// Server:
//
//	ROLLCALL_HOST="0.0.0.0"
//	ROLLCALL_PORT="8080"
//	ROLLCALL_SHUTDOWN_TIMEOUT="30s"
//
// Storage:
//
//	ROLLCALL_POSTGRES_URL="postgres://localhost/rollcall?sslmode=disable"
//	ROLLCALL_REDIS_URL="redis://localhost:6379/0"  # optional, enables leases
//
// Platform and identity provider:
//
//	ROLLCALL_DISCORD_TOKEN="..."
//	ROLLCALL_DISCORD_GUILD_ID="..."
//	ROLLCALL_SSO_CLIENT_ID="..."
//	ROLLCALL_SSO_CLIENT_SECRET="..."
//	ROLLCALL_SSO_TENANT_ID="..."
//	ROLLCALL_SSO_REDIRECT_URL="https://rollcall.example/oauth/callback"
//
// Observability:
//
//	ROLLCALL_LOG_LEVEL="info"  # debug, info, warn, error
//	ROLLCALL_OTEL_ENABLED="true"
//	ROLLCALL_OTEL_ENDPOINT="otel-collector:4317"
//
// # Policy
//
//	cfg, err := config.LoadConfig()
//	policy, err := config.LoadPolicy(cfg.PolicyFile)
//	catalog := policy.Catalog()
package config
