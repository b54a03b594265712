package postgres

import (
	"log/slog"
	"time"
)

// Config holds the settings of the account lookup database.
type Config struct {
	// DSN is the connection string of the database holding the accounts
	// table, e.g. "postgres://gate:pass@db:5432/accounts?sslmode=require".
	DSN string

	// MaxConns caps concurrent account lookups (default: 25). Requests
	// beyond it wait for a connection within QueryTimeout.
	MaxConns int32

	// MinConns keeps warm connections for the first requests after idle
	// periods (default: 2).
	MinConns int32

	// MaxConnLifetime recycles connections so failovers and credential
	// rotation are picked up (default: 30 minutes).
	MaxConnLifetime time.Duration

	// MaxConnIdleTime closes connections idle longer than this
	// (default: 5 minutes).
	MaxConnIdleTime time.Duration

	// QueryTimeout bounds a single account lookup (default: 2 seconds).
	// A lookup that times out is a failed lookup, never an allow.
	QueryTimeout time.Duration

	// MigrateOnStart creates or upgrades the accounts table at startup.
	MigrateOnStart bool

	// Logger receives migration progress. Default: slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 25
	}
	if c.MinConns <= 0 {
		c.MinConns = min(2, c.MaxConns)
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
