package auth

import "context"

// DecodedTokenKey is the well-known attribute name of the verified token.
// Adapters that expose request attributes by name use it as the key.
const DecodedTokenKey = "DECODED_JWT"

// tokenKey is a private type for the verified token context key.
type tokenKey struct{}

// SetToken stores the verified token in the context.
func SetToken(ctx context.Context, tok *Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFromContext retrieves the verified token.
// Returns nil if the request did not pass the gate.
func TokenFromContext(ctx context.Context) *Token {
	if v, ok := ctx.Value(tokenKey{}).(*Token); ok {
		return v
	}
	return nil
}
