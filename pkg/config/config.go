package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/rollcall/pkg/sso"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Discord       DiscordConfig
	SSO           sso.Config
	Admin         AdminConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig

	// PolicyFile points at the YAML reconciliation policy
	PolicyFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig holds Redis settings. An empty URL disables leases and the
// distributed rate limiter.
type RedisConfig struct {
	URL      string
	PoolSize int
	LeaseTTL time.Duration
}

// DiscordConfig holds the bot credentials
type DiscordConfig struct {
	Token   string
	GuildID string
}

// AdminConfig guards the admin API
type AdminConfig struct {
	Token          string
	RefreshPerMin  int
	RateLimitRedis bool
}

// JobsConfig holds background job settings
type JobsConfig struct {
	ProducerSchedule string
	PurgeSchedule    string
	RequestTTL       time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Discord:       loadDiscordConfig(),
		SSO:           loadSSOConfig(),
		Admin:         loadAdminConfig(),
		Jobs:          loadJobsConfig(),
		Observability: loadObservabilityConfig(),
		PolicyFile:    getEnv("ROLLCALL_POLICY_FILE", "policy.yaml"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ROLLCALL_HOST", "0.0.0.0"),
		Port:            getEnv("ROLLCALL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ROLLCALL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ROLLCALL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ROLLCALL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ROLLCALL_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("ROLLCALL_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("ROLLCALL_POSTGRES_MAX_CONNS", 10),
		MaxIdleConns:    getEnvInt("ROLLCALL_POSTGRES_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("ROLLCALL_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		MigrateOnStart:  getEnvBool("ROLLCALL_MIGRATE_ON_START", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("ROLLCALL_REDIS_URL", ""),
		PoolSize: getEnvInt("ROLLCALL_REDIS_POOL_SIZE", 10),
		LeaseTTL: getEnvDuration("ROLLCALL_LEASE_TTL", 15*time.Second),
	}
}

func loadDiscordConfig() DiscordConfig {
	return DiscordConfig{
		Token:   getEnv("ROLLCALL_DISCORD_TOKEN", ""),
		GuildID: getEnv("ROLLCALL_DISCORD_GUILD_ID", ""),
	}
}

func loadSSOConfig() sso.Config {
	cfg := sso.Config{
		ClientID:     getEnv("ROLLCALL_SSO_CLIENT_ID", ""),
		ClientSecret: getEnv("ROLLCALL_SSO_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("ROLLCALL_SSO_REDIRECT_URL", ""),
		TenantID:     getEnv("ROLLCALL_SSO_TENANT_ID", ""),
		AuthURL:      getEnv("ROLLCALL_SSO_AUTH_URL", ""),
		TokenURL:     getEnv("ROLLCALL_SSO_TOKEN_URL", ""),
		IssuerURL:    getEnv("ROLLCALL_SSO_ISSUER_URL", ""),
		GraphURL:     getEnv("ROLLCALL_SSO_GRAPH_URL", ""),
	}
	if scopes := getEnv("ROLLCALL_SSO_SCOPES", ""); scopes != "" {
		cfg.Scopes = splitList(scopes)
	}
	return cfg
}

func loadAdminConfig() AdminConfig {
	return AdminConfig{
		Token:          getEnv("ROLLCALL_ADMIN_TOKEN", ""),
		RefreshPerMin:  getEnvInt("ROLLCALL_REFRESH_PER_MINUTE", 5),
		RateLimitRedis: getEnvBool("ROLLCALL_RATE_LIMIT_REDIS", true),
	}
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		ProducerSchedule: getEnv("ROLLCALL_PRODUCER_SCHEDULE", "@every 3s"),
		PurgeSchedule:    getEnv("ROLLCALL_PURGE_SCHEDULE", "@hourly"),
		RequestTTL:       getEnvDuration("ROLLCALL_REQUEST_TTL", 24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("ROLLCALL_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("ROLLCALL_LOG_FORMAT", "json")),
		MetricsEnabled:     getEnvBool("ROLLCALL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ROLLCALL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ROLLCALL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ROLLCALL_OTEL_SERVICE_NAME", "rollcall"),
		OTelServiceVersion: getEnv("ROLLCALL_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("ROLLCALL_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("ROLLCALL_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("discord guild id is required")
	}
	if c.PolicyFile == "" {
		return fmt.Errorf("policy file is required")
	}
	if err := c.SSO.Validate(); err != nil {
		return fmt.Errorf("invalid sso config: %w", err)
	}
	if c.Admin.RefreshPerMin <= 0 {
		return fmt.Errorf("refresh rate limit must be positive")
	}
	if c.Jobs.RequestTTL <= 0 {
		return fmt.Errorf("request TTL must be positive")
	}

	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

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

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
