package storage

import (
	"context"

	"github.com/rhuss/tokengate/pkg/auth"
)

// AccountStore is an account lookup backed by a resource that can be
// health-checked and released.
type AccountStore interface {
	auth.AccountLookup

	// HealthCheck verifies the backing resource is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases connections and resources.
	Close() error
}
