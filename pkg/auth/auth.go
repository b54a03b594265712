package auth

import (
	"context"
	"net/http"
	"time"
)

// AuthDecision represents the two possible outcomes of a pass through the gate.
type AuthDecision int

const (
	// Allow means every stage passed. The verified token is attached.
	Allow AuthDecision = iota

	// Deny means a stage failed. The request must not reach the inner handler.
	Deny
)

func (d AuthDecision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Token    *Token     // populated only when Decision == Allow
	Err      *AuthError // populated only when Decision == Deny
}

// Authenticator examines request credentials and returns a decision.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Verifier checks a token's signature and temporal claims against one key.
// On success it returns the token marked as verified.
type Verifier interface {
	Verify(ctx context.Context, tok *Token) (*Token, error)
}

// KeyResolver maps an (issuer, key id) pair to a Verifier. Implementations
// own key fetching, caching and rotation and must be safe for concurrent use.
type KeyResolver interface {
	ResolveVerifier(ctx context.Context, issuer, keyID string) (Verifier, error)
}

// AccountLookup maps a verified subject to an account. Implementations
// return ErrAccountNotFound (possibly wrapped) when no account matches and
// must be safe for concurrent use.
type AccountLookup interface {
	FindAccountByIdentity(ctx context.Context, subject string) (*Account, error)
}

// AccountState is the enablement state of an account.
type AccountState string

const (
	AccountEnabled  AccountState = "ENABLED"
	AccountDisabled AccountState = "DISABLED"
)

// Account is a principal known to the account store.
type Account struct {
	ID         string       `json:"id"`
	Name       string       `json:"name,omitempty"`
	Email      string       `json:"email"`
	ExternalID string       `json:"external_id,omitempty"`
	State      AccountState `json:"state"`
	CreatedAt  time.Time    `json:"created_at,omitzero"`
	UpdatedAt  time.Time    `json:"updated_at,omitzero"`
}

// Enabled reports whether the account may be granted access.
func (a *Account) Enabled() bool {
	return a != nil && a.State == AccountEnabled
}
