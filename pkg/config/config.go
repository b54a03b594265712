// Package config provides unified configuration for the tokengate server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TOKENGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the tokengate server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	CORS          CORSConfig          `yaml:"cors"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port" validate:"gt=0,lte=65535"` // default: 8080
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`            // default: 10s
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`               // default: 30s
}

// AuthConfig holds the gate's policy and the key sources of trusted issuers.
type AuthConfig struct {
	TrustedIssuer     string          `yaml:"trusted_issuer" validate:"required"` // default: "internal"
	CookieName        string          `yaml:"cookie_name" validate:"required"`    // default: "UC_TOKEN"
	Issuers           []IssuerConfig  `yaml:"issuers" validate:"dive"`
	AllowedAlgs       []string        `yaml:"allowed_algs" validate:"dive,oneof=RS256 RS384 RS512 PS256 PS384 PS512 ES256 ES384 ES512 EdDSA"`
	Leeway            time.Duration   `yaml:"leeway"` // default: 60s, negative disables
	Audience          string          `yaml:"audience"`
	RequireExpiration bool            `yaml:"require_expiration"`
	RefreshInterval   time.Duration   `yaml:"refresh_interval"` // default: 1h
	BypassPaths       []string        `yaml:"bypass_paths"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// IssuerConfig names the single key source of one issuer.
type IssuerConfig struct {
	Issuer       string `yaml:"issuer" json:"issuer" validate:"required"`
	JWKSURL      string `yaml:"jwks_url" json:"jwks_url" validate:"omitempty,url"`
	DiscoveryURL string `yaml:"discovery_url" json:"discovery_url" validate:"omitempty,url"`
	JWKSFile     string `yaml:"jwks_file" json:"jwks_file"`
	JWKS         string `yaml:"jwks" json:"jwks"` // inline JWK Set document
}

// RateLimitConfig holds per-subject rate limiting settings.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"` // 0 disables
}

// StorageConfig holds account store settings.
type StorageConfig struct {
	Type     string          `yaml:"type" validate:"oneof=memory postgres"` // default: "memory"
	Accounts []AccountConfig `yaml:"accounts" validate:"dive"`              // seed for the memory store
	Postgres PostgresConfig  `yaml:"postgres"`
	Redis    RedisConfig     `yaml:"redis"`
}

// AccountConfig describes an account seeded into the memory store.
type AccountConfig struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Email      string `yaml:"email" json:"email" validate:"required"`
	ExternalID string `yaml:"external_id" json:"external_id"`
	State      string `yaml:"state" json:"state" validate:"omitempty,oneof=ENABLED DISABLED"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	DSNFile        string        `yaml:"dsn_file"`                       // _file variant for dsn
	MaxConns       int32         `yaml:"max_conns" validate:"gte=0"`     // default: 25
	QueryTimeout   time.Duration `yaml:"query_timeout" validate:"gte=0"` // default: 2s
	MigrateOnStart bool          `yaml:"migrate_on_start"`               // default: false
}

// RedisConfig holds the account cache settings.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"` // default: "localhost:6379"
	Password     string        `yaml:"password"`
	PasswordFile string        `yaml:"password_file"` // _file variant for password
	DB           int           `yaml:"db" validate:"gte=0"`
	KeyPrefix    string        `yaml:"key_prefix"` // default: "tokengate:account:"

	// TTL bounds how long a disabled account can keep passing the gate from
	// a cached copy. At most MaxRedisTTL.
	TTL time.Duration `yaml:"ttl" validate:"gte=0"` // default: 30s
}

// MaxRedisTTL is the largest accepted storage.redis.ttl.
const MaxRedisTTL = 5 * time.Minute

// UpstreamConfig points at the protected service.
type UpstreamConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"` // empty disables proxying
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" validate:"gte=0"` // seconds
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"` // default: "info"
	Format string `yaml:"format" validate:"oneof=text json"`            // default: "text"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Auth: AuthConfig{
			TrustedIssuer:   "internal",
			CookieName:      "UC_TOKEN",
			Leeway:          60 * time.Second,
			RefreshInterval: time.Hour,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:     25,
				QueryTimeout: 2 * time.Second,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "tokengate:account:",
				TTL:       30 * time.Second,
			},
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
