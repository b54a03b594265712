// Package memory provides an in-memory AccountStore for tests and
// development deployments. Accounts are seeded at startup and lost when
// the process exits.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rhuss/tokengate/pkg/auth"
	"github.com/rhuss/tokengate/pkg/storage"
)

// Store is an in-memory AccountStore keyed by email.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*auth.Account
	now      func() time.Time
}

// Ensure Store implements storage.AccountStore at compile time.
var _ storage.AccountStore = (*Store)(nil)

// New creates a store seeded with the given accounts.
func New(accounts ...*auth.Account) *Store {
	s := &Store{
		accounts: make(map[string]*auth.Account, len(accounts)),
		now:      time.Now,
	}
	for _, a := range accounts {
		s.Put(a)
	}
	return s
}

// Put inserts or replaces an account. Accounts without an email are
// ignored since they could never match a subject. A missing state
// defaults to ENABLED.
func (s *Store) Put(a *auth.Account) {
	if a == nil || a.Email == "" {
		return
	}
	cp := *a
	if cp.State == "" {
		cp.State = auth.AccountEnabled
	}
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[cp.Email] = &cp
}

// SetState changes the state of an existing account.
func (s *Store) SetState(email string, state auth.AccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[email]
	if !ok {
		return fmt.Errorf("account %q: %w", email, storage.ErrNotFound)
	}
	a.State = state
	a.UpdatedAt = s.now()
	return nil
}

// FindAccountByIdentity returns a copy of the account whose email equals
// the subject.
func (s *Store) FindAccountByIdentity(_ context.Context, subject string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[subject]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
