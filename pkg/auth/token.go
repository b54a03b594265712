package auth

import (
	"fmt"
	"maps"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Registered claim and header names read by the gate.
const (
	ClaimIssuer  = "iss"
	ClaimSubject = "sub"
	HeaderKeyID  = "kid"
)

// Token is a decoded JWT. A Token returned by DecodeToken is untrusted;
// only a Verifier produces a Token for which Verified reports true.
// Tokens are never mutated after construction.
type Token struct {
	raw      string
	header   map[string]any
	claims   jwtlib.MapClaims
	verified bool
}

// DecodeToken parses a compact JWT into its header fields and claims
// without checking the signature. It fails for anything that is not a
// structurally valid token.
func DecodeToken(raw string) (*Token, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	claims := jwtlib.MapClaims{}
	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	header := parsed.Header
	if header == nil {
		header = map[string]any{}
	}

	return &Token{raw: raw, header: header, claims: claims}, nil
}

// AsVerified returns a copy of the token marked as cryptographically
// verified. It is meant for Verifier implementations.
func (t *Token) AsVerified() *Token {
	cp := *t
	cp.verified = true
	return &cp
}

// Verified reports whether a Verifier has accepted this token.
func (t *Token) Verified() bool { return t != nil && t.verified }

// Raw returns the compact serialization.
func (t *Token) Raw() string { return t.raw }

// Issuer returns the iss claim, or empty string.
func (t *Token) Issuer() string { return t.ClaimString(ClaimIssuer) }

// Subject returns the sub claim, or empty string.
func (t *Token) Subject() string { return t.ClaimString(ClaimSubject) }

// KeyID returns the kid header field, or empty string.
func (t *Token) KeyID() string { return t.HeaderString(HeaderKeyID) }

// Algorithm returns the alg header field, or empty string.
func (t *Token) Algorithm() string { return t.HeaderString("alg") }

// ClaimString returns a claim as a string. Non-string values yield "".
func (t *Token) ClaimString(name string) string {
	s, _ := t.claims[name].(string)
	return s
}

// Claims returns a copy of all claims.
func (t *Token) Claims() map[string]any {
	return maps.Clone(map[string]any(t.claims))
}

// HeaderString returns a header field as a string. Non-string values yield "".
func (t *Token) HeaderString(name string) string {
	s, _ := t.header[name].(string)
	return s
}

// Header returns a copy of all header fields.
func (t *Token) Header() map[string]any {
	return maps.Clone(t.header)
}

// ExpiresAt returns the exp claim, if present and numeric.
func (t *Token) ExpiresAt() (time.Time, bool) {
	exp, err := t.claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
