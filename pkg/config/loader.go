package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TOKENGATE_CONFIG env, ./config.yaml, /etc/tokengate/config.yaml)
//  3. TOKENGATE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TOKENGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/tokengate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check TOKENGATE_CONFIG env var.
	if envPath := os.Getenv("TOKENGATE_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/tokengate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so that typos do not silently weaken the gate.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps TOKENGATE_* environment variables to config fields.
// Malformed numeric or JSON values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TOKENGATE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TOKENGATE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	// Auth.
	if v := os.Getenv("TOKENGATE_TRUSTED_ISSUER"); v != "" {
		cfg.Auth.TrustedIssuer = v
	}
	if v := os.Getenv("TOKENGATE_COOKIE_NAME"); v != "" {
		cfg.Auth.CookieName = v
	}
	if v := os.Getenv("TOKENGATE_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("TOKENGATE_LEEWAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TOKENGATE_LEEWAY: %w", err)
		}
		cfg.Auth.Leeway = d
	}
	if v := os.Getenv("TOKENGATE_ALLOWED_ALGS"); v != "" {
		cfg.Auth.AllowedAlgs = splitList(v)
	}
	if v := os.Getenv("TOKENGATE_RATE_LIMIT_RPM"); v != "" {
		rpm, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TOKENGATE_RATE_LIMIT_RPM: %w", err)
		}
		cfg.Auth.RateLimit.RequestsPerMinute = rpm
	}

	// TOKENGATE_ISSUERS: JSON array of issuer key sources.
	if v := os.Getenv("TOKENGATE_ISSUERS"); v != "" {
		var issuers []IssuerConfig
		if err := json.Unmarshal([]byte(v), &issuers); err != nil {
			return fmt.Errorf("TOKENGATE_ISSUERS: %w", err)
		}
		cfg.Auth.Issuers = issuers
	}

	// Storage.
	if v := os.Getenv("TOKENGATE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("TOKENGATE_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}

	// TOKENGATE_ACCOUNTS: JSON array of accounts for the memory store.
	if v := os.Getenv("TOKENGATE_ACCOUNTS"); v != "" {
		var accounts []AccountConfig
		if err := json.Unmarshal([]byte(v), &accounts); err != nil {
			return fmt.Errorf("TOKENGATE_ACCOUNTS: %w", err)
		}
		cfg.Storage.Accounts = accounts
	}

	// Setting a redis address enables the cache.
	if v := os.Getenv("TOKENGATE_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
		cfg.Storage.Redis.Enabled = true
	}
	if v := os.Getenv("TOKENGATE_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}

	if v := os.Getenv("TOKENGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("TOKENGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TOKENGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}

	return nil
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// storage.redis.password_file -> storage.redis.password
	if cfg.Storage.Redis.PasswordFile != "" && cfg.Storage.Redis.Password == "" {
		val, err := readSecretFile(cfg.Storage.Redis.PasswordFile)
		if err != nil {
			return fmt.Errorf("storage.redis.password_file: %w", err)
		}
		cfg.Storage.Redis.Password = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
