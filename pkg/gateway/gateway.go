// Package gateway assembles a running tokengate from its configuration:
// account store, key resolver, gate and HTTP router.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rhuss/tokengate/pkg/auth"
	"github.com/rhuss/tokengate/pkg/auth/jwks"
	"github.com/rhuss/tokengate/pkg/config"
	"github.com/rhuss/tokengate/pkg/storage"
	"github.com/rhuss/tokengate/pkg/storage/memory"
	"github.com/rhuss/tokengate/pkg/storage/postgres"
	rediscache "github.com/rhuss/tokengate/pkg/storage/redis"
	transporthttp "github.com/rhuss/tokengate/pkg/transport/http"
)

// Gateway is an assembled tokengate.
type Gateway struct {
	// Handler serves health, metrics and the gated routes.
	Handler http.Handler

	// Accounts is the account store behind the identity stage.
	Accounts storage.AccountStore

	// Gate is the authentication gate wrapped around protected routes.
	Gate *auth.Gate

	cancel context.CancelFunc
}

// New builds a gateway. The returned gateway owns background key refresh
// and store connections until Close is called.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Auth.Issuers) == 0 {
		return nil, ErrNoIssuers
	}

	accounts, err := NewAccountStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("account store: %w", err)
	}

	// Key refresh runs until Close.
	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	resolver, err := jwks.New(refreshCtx, ResolverConfig(cfg.Auth, logger))
	if err != nil {
		cancel()
		accounts.Close()
		return nil, fmt.Errorf("key resolver: %w", err)
	}

	gate, err := auth.NewGate(auth.Config{
		TrustedIssuer: cfg.Auth.TrustedIssuer,
		CookieName:    cfg.Auth.CookieName,
		Resolver:      resolver,
		Accounts:      accounts,
		Logger:        logger,
	})
	if err != nil {
		cancel()
		accounts.Close()
		return nil, err
	}

	var limiter auth.RateLimiter
	if cfg.Auth.RateLimit.RequestsPerMinute > 0 {
		limiter = auth.NewInProcessLimiter(cfg.Auth.RateLimit.RequestsPerMinute)
	}

	routerCfg := transporthttp.RouterConfig{
		Gate:           auth.Middleware(gate, limiter, cfg.Auth.BypassPaths, logger),
		Ready:          accounts,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
		Logger:         logger,
	}
	if cfg.Upstream.URL != "" {
		target, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			cancel()
			accounts.Close()
			return nil, fmt.Errorf("upstream url: %w", err)
		}
		routerCfg.Upstream = target
	}
	if cfg.CORS.Enabled {
		routerCfg.CORS = &cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           cfg.CORS.MaxAge,
		}
	}

	return &Gateway{
		Handler:  transporthttp.NewRouter(routerCfg),
		Accounts: accounts,
		Gate:     gate,
		cancel:   cancel,
	}, nil
}

// Close stops key refresh and releases the account store.
func (g *Gateway) Close() error {
	g.cancel()
	return g.Accounts.Close()
}

// ResolverConfig maps the auth section onto the key resolver configuration.
func ResolverConfig(cfg config.AuthConfig, logger *slog.Logger) jwks.Config {
	sources := make([]jwks.Source, 0, len(cfg.Issuers))
	for _, iss := range cfg.Issuers {
		src := jwks.Source{
			Issuer:       iss.Issuer,
			JWKSURL:      iss.JWKSURL,
			DiscoveryURL: iss.DiscoveryURL,
			JWKSFile:     iss.JWKSFile,
		}
		if iss.JWKS != "" {
			src.JWKS = json.RawMessage(iss.JWKS)
		}
		sources = append(sources, src)
	}

	return jwks.Config{
		Sources:           sources,
		AllowedAlgs:       cfg.AllowedAlgs,
		Leeway:            cfg.Leeway,
		Audience:          cfg.Audience,
		RequireExpiration: cfg.RequireExpiration,
		RefreshInterval:   cfg.RefreshInterval,
		HTTPClient:        &http.Client{Timeout: 10 * time.Second},
		Logger:            logger,
	}
}

// NewAccountStore builds the configured account store, wrapped in the
// redis cache when enabled.
func NewAccountStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.AccountStore, error) {
	var store storage.AccountStore

	switch cfg.Type {
	case "memory", "":
		accounts := make([]*auth.Account, 0, len(cfg.Accounts))
		for _, a := range cfg.Accounts {
			accounts = append(accounts, accountFromConfig(a))
		}
		mem := memory.New(accounts...)
		logger.Info("account store ready", "type", "memory", "accounts", mem.Len())
		store = mem
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			QueryTimeout:   cfg.Postgres.QueryTimeout,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("account store ready", "type", "postgres", "migrate_on_start", cfg.Postgres.MigrateOnStart)
		store = pg
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	if !cfg.Redis.Enabled {
		return store, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cache, err := rediscache.New(rediscache.Config{
		Client:    client,
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.TTL,
		Logger:    logger,
	}, store)
	if err != nil {
		client.Close()
		store.Close()
		return nil, err
	}
	// An unreachable cache degrades to direct lookups, so it only warns.
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("account cache unreachable, lookups fall through", "addr", cfg.Redis.Addr, "error", err)
	}
	logger.Info("account cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	return cache, nil
}

func accountFromConfig(a config.AccountConfig) *auth.Account {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	state := auth.AccountState(a.State)
	if state == "" {
		state = auth.AccountEnabled
	}
	return &auth.Account{
		ID:         id,
		Name:       a.Name,
		Email:      a.Email,
		ExternalID: a.ExternalID,
		State:      state,
	}
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ErrNoIssuers is returned when no key source is configured.
var ErrNoIssuers = errors.New("gateway: no issuer key sources configured")
