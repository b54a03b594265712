package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate checks struct tags. Field names are reported by their YAML key.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateStorage()...)

	if c.CORS.Enabled && len(c.CORS.AllowedOrigins) == 0 {
		errs = append(errs, fmt.Errorf("cors.allowed_origins is required when cors.enabled is true"))
	}
	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}

func (c *Config) validateAuth() []error {
	var errs []error

	seen := make(map[string]bool, len(c.Auth.Issuers))
	for i, iss := range c.Auth.Issuers {
		sources := 0
		for _, s := range []string{iss.JWKSURL, iss.DiscoveryURL, iss.JWKSFile, iss.JWKS} {
			if s != "" {
				sources++
			}
		}
		if sources != 1 {
			errs = append(errs, fmt.Errorf("auth.issuers[%d] must set exactly one of jwks_url, discovery_url, jwks_file, jwks; got %d", i, sources))
		}
		if iss.Issuer != "" && seen[iss.Issuer] {
			errs = append(errs, fmt.Errorf("auth.issuers[%d].issuer %q is configured more than once", i, iss.Issuer))
		}
		seen[iss.Issuer] = true
	}

	// Tokens from any other issuer are rejected before key resolution, so
	// the trusted issuer is the only one that needs keys.
	if c.Auth.TrustedIssuer != "" && !seen[c.Auth.TrustedIssuer] {
		errs = append(errs, fmt.Errorf("auth.issuers must include a key source for trusted_issuer %q", c.Auth.TrustedIssuer))
	}

	for i, p := range c.Auth.BypassPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("auth.bypass_paths[%d] must start with \"/\", got %q", i, p))
		}
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	if c.Storage.Redis.Enabled && c.Storage.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("storage.redis.addr is required when storage.redis.enabled is true"))
	}
	if c.Storage.Redis.TTL > MaxRedisTTL {
		errs = append(errs, fmt.Errorf("storage.redis.ttl must be <= %v, got %v", MaxRedisTTL, c.Storage.Redis.TTL))
	}

	seen := make(map[string]bool, len(c.Storage.Accounts))
	for i, a := range c.Storage.Accounts {
		key := strings.ToLower(a.Email)
		if key != "" && seen[key] {
			errs = append(errs, fmt.Errorf("storage.accounts[%d].email %q is configured more than once", i, a.Email))
		}
		seen[key] = true
	}

	return errs
}

// fieldError renders a validator failure with the YAML path of the field.
func fieldError(fe validator.FieldError) error {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", path)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", path, fe.Param(), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Errorf("%s must be a valid URL, got %q", path, fmt.Sprint(fe.Value()))
	case "gt":
		return fmt.Errorf("%s must be > %s, got %v", path, fe.Param(), fe.Value())
	case "gte":
		return fmt.Errorf("%s must be >= %s, got %v", path, fe.Param(), fe.Value())
	case "lte":
		return fmt.Errorf("%s must be <= %s, got %v", path, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s failed %q validation", path, fe.Tag())
	}
}
