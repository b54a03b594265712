// Package postgres provides a PostgreSQL implementation of storage.AccountStore.
// It uses pgx/v5 for connection pooling and resolves token subjects against
// the email column of the accounts table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/tokengate/pkg/auth"
	"github.com/rhuss/tokengate/pkg/storage"
)

// Store is a PostgreSQL-backed AccountStore.
type Store struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *slog.Logger
}

// Ensure Store implements storage.AccountStore at compile time.
var _ storage.AccountStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, the accounts schema is migrated before the
// store is returned.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, cfg: cfg, logger: cfg.Logger}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

const findByEmailQuery = `
	SELECT id, name, email, external_id, state, created_at, updated_at
	FROM accounts
	WHERE email = $1`

// FindAccountByIdentity returns the account whose email equals the subject.
func (s *Store) FindAccountByIdentity(ctx context.Context, subject string) (*auth.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var (
		a          auth.Account
		externalID *string
		state      string
	)
	err := s.pool.QueryRow(ctx, findByEmailQuery, subject).Scan(
		&a.ID, &a.Name, &a.Email, &externalID, &state, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}

	if externalID != nil {
		a.ExternalID = *externalID
	}
	a.State = auth.AccountState(state)

	return &a, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
