package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	testSecret  = []byte("test-signing-secret-0123456789abcdef")
	otherSecret = []byte("another-secret-that-does-not-match!!")
)

const testKeyID = "key-1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signToken mints an HS256 token with the given kid header and claims.
func signToken(t *testing.T, secret []byte, kid string, claims jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

// validClaims returns trusted-issuer claims for subject.
func validClaims(subject string) jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"iss":   DefaultTrustedIssuer,
		"sub":   subject,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "tables:read",
	}
}

// hmacVerifier checks HS256 signatures against one shared secret.
type hmacVerifier struct {
	secret []byte
}

func (v *hmacVerifier) Verify(_ context.Context, tok *Token) (*Token, error) {
	parser := jwtlib.NewParser(jwtlib.WithValidMethods([]string{"HS256"}))
	if _, err := parser.Parse(tok.Raw(), func(*jwtlib.Token) (any, error) { return v.secret, nil }); err != nil {
		return nil, err
	}
	return tok.AsVerified(), nil
}

// fakeResolver resolves key ids to HMAC verifiers and counts calls.
type fakeResolver struct {
	mu    sync.Mutex
	keys  map[string][]byte
	err   error
	calls int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{keys: map[string][]byte{testKeyID: testSecret}}
}

func (r *fakeResolver) ResolveVerifier(_ context.Context, _, keyID string) (Verifier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	secret, ok := r.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("unknown key %q", keyID)
	}
	return &hmacVerifier{secret: secret}, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeAccounts is an in-memory AccountLookup that counts calls.
type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*Account
	err      error
	calls    int
}

func newFakeAccounts(accounts ...*Account) *fakeAccounts {
	f := &fakeAccounts{accounts: make(map[string]*Account)}
	for _, a := range accounts {
		f.accounts[a.Email] = a
	}
	return f
}

func (f *fakeAccounts) FindAccountByIdentity(_ context.Context, subject string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[subject]
	if !ok {
		return nil, fmt.Errorf("subject %q: %w", subject, ErrAccountNotFound)
	}
	return a, nil
}

func (f *fakeAccounts) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var (
	alice = &Account{ID: "acc-1", Name: "Alice", Email: "alice@example.com", State: AccountEnabled}
	bob   = &Account{ID: "acc-2", Name: "Bob", Email: "bob@example.com", State: AccountEnabled}
	carol = &Account{ID: "acc-3", Name: "Carol", Email: "carol@example.com", State: AccountDisabled}
)

// newTestGate builds a gate over the fakes with alice, bob and carol.
func newTestGate(t *testing.T) (*Gate, *fakeResolver, *fakeAccounts) {
	t.Helper()
	resolver := newFakeResolver()
	accounts := newFakeAccounts(alice, bob, carol)
	gate, err := NewGate(Config{
		Resolver: resolver,
		Accounts: accounts,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate, resolver, accounts
}
