// Package redis provides a read-through account cache backed by Redis.
//
// The cache wraps another AccountStore. Found accounts are cached as JSON
// with a TTL; missing accounts are never cached, so a newly created account
// is visible on its next request. Redis failures are logged and the lookup
// falls through to the wrapped store.
//
// A state change made directly in the wrapped store (an account disabled in
// postgres, say) is only seen once the cached entry expires, so the TTL is
// the upper bound on how long a disabled account keeps passing the gate.
// It is capped at MaxTTL. Callers that change account state through this
// process should call Invalidate to apply the change at once.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/tokengate/pkg/auth"
	"github.com/rhuss/tokengate/pkg/observability"
	"github.com/rhuss/tokengate/pkg/storage"
)

const (
	// DefaultTTL is how long a found account stays cached when no TTL is set.
	DefaultTTL = 30 * time.Second

	// MaxTTL bounds the delay before a disabled account is rejected.
	MaxTTL = 5 * time.Minute
)

// Config contains configuration options for the Redis account cache.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "tokengate:account:"
	KeyPrefix string

	// TTL is how long a found account stays cached. Default: DefaultTTL.
	// Values above MaxTTL are rejected.
	TTL time.Duration

	// Logger receives cache failures. Default: slog.Default().
	Logger *slog.Logger
}

// Cache is an AccountStore that caches lookups of the wrapped store.
type Cache struct {
	client    *redis.Client
	next      storage.AccountStore
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
}

// Ensure Cache implements storage.AccountStore at compile time.
var _ storage.AccountStore = (*Cache)(nil)

// New creates a cache in front of next.
func New(config Config, next storage.AccountStore) (*Cache, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if next == nil {
		return nil, fmt.Errorf("backing account store is required")
	}

	// Apply defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "tokengate:account:"
	}
	if config.TTL > MaxTTL {
		return nil, fmt.Errorf("cache ttl %v exceeds maximum %v", config.TTL, MaxTTL)
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Cache{
		client:    config.Client,
		next:      next,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    config.Logger,
	}, nil
}

func (c *Cache) key(subject string) string {
	return c.keyPrefix + subject
}

// FindAccountByIdentity serves the account from Redis when cached and
// from the wrapped store otherwise.
func (c *Cache) FindAccountByIdentity(ctx context.Context, subject string) (*auth.Account, error) {
	redisKey := c.key(subject)

	if a, ok := c.cached(ctx, redisKey); ok {
		return a, nil
	}

	a, err := c.next.FindAccountByIdentity(ctx, subject)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, storage.ErrNotFound
	}

	data, err := json.Marshal(a)
	if err != nil {
		return a, nil
	}
	if err := c.client.Set(ctx, redisKey, data, c.ttl).Err(); err != nil {
		c.logger.Debug("account cache write failed", "key", redisKey, "error", err)
	}

	return a, nil
}

// cached reads a cached account. Misses, read failures and corrupt entries
// all report false so the caller falls through to the wrapped store.
func (c *Cache) cached(ctx context.Context, redisKey string) (*auth.Account, bool) {
	val, err := c.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.AccountCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		c.logger.Warn("account cache read failed", "key", redisKey, "error", err)
		observability.AccountCacheTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	var a auth.Account
	if err := json.Unmarshal(val, &a); err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", redisKey, "error", err)
		observability.AccountCacheTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	observability.AccountCacheTotal.WithLabelValues("hit").Inc()
	return &a, true
}

// Invalidate drops the cached entry for a subject.
func (c *Cache) Invalidate(ctx context.Context, subject string) error {
	if err := c.client.Del(ctx, c.key(subject)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", c.key(subject), err)
	}
	return nil
}

// HealthCheck verifies Redis and the wrapped store are reachable.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return c.next.HealthCheck(ctx)
}

// Close closes the Redis client and the wrapped store.
func (c *Cache) Close() error {
	return errors.Join(c.client.Close(), c.next.Close())
}
