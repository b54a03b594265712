// Package jwks provides a KeyResolver that verifies tokens against JSON
// Web Key Sets.
//
// Each trusted issuer has exactly one key source: a remote JWKS URL, an
// OIDC discovery URL whose jwks_uri is followed, a local JWKS file, or an
// inline JWKS document. Remote sets are refreshed in the background and
// re-fetched (rate limited) when an unknown kid shows up, so key rotation
// needs no restart.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tokengate/pkg/auth"
)

// DefaultAllowedAlgs lists the asymmetric algorithms accepted by default.
var DefaultAllowedAlgs = []string{"RS256", "RS384", "RS512", "PS256", "ES256", "ES384"}

// DefaultLeeway is the clock skew tolerated on exp, nbf and iat.
const DefaultLeeway = 60 * time.Second

var (
	// ErrUnknownIssuer is returned for issuers without a configured key source.
	ErrUnknownIssuer = errors.New("jwks: unknown issuer")

	// ErrUnknownKey is returned when the issuer's key set has no key with the
	// requested id.
	ErrUnknownKey = errors.New("jwks: unknown key id")

	// ErrKeyMismatch is returned when a verifier is asked to check a token
	// whose kid differs from the key it was resolved for.
	ErrKeyMismatch = errors.New("jwks: token kid does not match resolved key")
)

// Source configures where the keys of one issuer come from. Exactly one of
// JWKSURL, DiscoveryURL, JWKSFile and JWKS must be set.
type Source struct {
	// Issuer is the iss claim value the keys sign for.
	Issuer string

	// JWKSURL is a remote JWK Set endpoint.
	JWKSURL string

	// DiscoveryURL is an OIDC issuer URL. Its discovery document must
	// publish a jwks_uri.
	DiscoveryURL string

	// JWKSFile is a path to a JWK Set document on disk.
	JWKSFile string

	// JWKS is an inline JWK Set document.
	JWKS json.RawMessage
}

// Config holds the resolver configuration.
type Config struct {
	Sources []Source

	// AllowedAlgs restricts the accepted alg header values.
	// Default: DefaultAllowedAlgs.
	AllowedAlgs []string

	// Leeway is the tolerated clock skew. Default: DefaultLeeway.
	// Negative values disable the leeway.
	Leeway time.Duration

	// Audience, when set, must appear in the aud claim.
	Audience string

	// RequireExpiration rejects tokens without an exp claim.
	RequireExpiration bool

	// RefreshInterval controls how often remote key sets are refreshed.
	// Default: 1 hour.
	RefreshInterval time.Duration

	// HTTPClient is used for discovery and JWKS fetches.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	// Logger receives refresh failures. Default: slog.Default().
	Logger *slog.Logger
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = DefaultAllowedAlgs
	}
	switch {
	case c.Leeway == 0:
		c.Leeway = DefaultLeeway
	case c.Leeway < 0:
		c.Leeway = 0
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// issuerKeys is the key set and parser policy of one issuer.
type issuerKeys struct {
	keys   keyfunc.Keyfunc
	parser *jwtlib.Parser
}

// Resolver maps (issuer, kid) pairs to verifiers. It is safe for
// concurrent use.
type Resolver struct {
	issuers map[string]*issuerKeys
}

var _ auth.KeyResolver = (*Resolver)(nil)

// New creates a resolver and loads every configured key source. The
// context bounds discovery and ends the background refresh of remote key
// sets when it is canceled.
func New(ctx context.Context, cfg Config) (*Resolver, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("jwks: at least one key source is required")
	}
	cfg.applyDefaults()

	r := &Resolver{issuers: make(map[string]*issuerKeys, len(cfg.Sources))}
	for i, src := range cfg.Sources {
		if src.Issuer == "" {
			return nil, fmt.Errorf("jwks: source %d: issuer is required", i)
		}
		if _, dup := r.issuers[src.Issuer]; dup {
			return nil, fmt.Errorf("jwks: issuer %q configured twice", src.Issuer)
		}

		kf, err := loadKeys(ctx, src, &cfg)
		if err != nil {
			return nil, fmt.Errorf("jwks: issuer %q: %w", src.Issuer, err)
		}

		r.issuers[src.Issuer] = &issuerKeys{
			keys:   kf,
			parser: jwtlib.NewParser(parserOptions(src.Issuer, &cfg)...),
		}
		cfg.Logger.Debug("key source loaded", "issuer", src.Issuer, "kind", src.kind())
	}

	return r, nil
}

// parserOptions builds JWT parser options based on the configuration.
func parserOptions(issuer string, cfg *Config) []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(cfg.AllowedAlgs),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithLeeway(cfg.Leeway),
	}
	if cfg.RequireExpiration {
		opts = append(opts, jwtlib.WithExpirationRequired())
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	return opts
}

func (s Source) kind() string {
	switch {
	case s.JWKSURL != "":
		return "jwks_url"
	case s.DiscoveryURL != "":
		return "discovery_url"
	case s.JWKSFile != "":
		return "jwks_file"
	case len(s.JWKS) > 0:
		return "inline"
	}
	return ""
}

func (s Source) sourceCount() int {
	n := 0
	for _, set := range []bool{s.JWKSURL != "", s.DiscoveryURL != "", s.JWKSFile != "", len(s.JWKS) > 0} {
		if set {
			n++
		}
	}
	return n
}

// loadKeys builds the key set of one source.
func loadKeys(ctx context.Context, src Source, cfg *Config) (keyfunc.Keyfunc, error) {
	if n := src.sourceCount(); n != 1 {
		return nil, fmt.Errorf("exactly one key source is required, got %d", n)
	}

	switch {
	case len(src.JWKS) > 0:
		return keyfunc.NewJWKSetJSON(src.JWKS)

	case src.JWKSFile != "":
		data, err := os.ReadFile(src.JWKSFile)
		if err != nil {
			return nil, fmt.Errorf("reading JWKS file: %w", err)
		}
		return keyfunc.NewJWKSetJSON(data)

	case src.DiscoveryURL != "":
		jwksURL, err := discoverJWKSURL(ctx, src.DiscoveryURL, cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		return remoteKeys(ctx, jwksURL, cfg)

	default:
		return remoteKeys(ctx, src.JWKSURL, cfg)
	}
}

// discoverJWKSURL reads jwks_uri from the OIDC discovery document.
func discoverJWKSURL(ctx context.Context, issuerURL string, client *http.Client) (string, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuerURL)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return "", errors.New("discovery incomplete: missing jwks_uri")
	}
	return meta.JwksURI, nil
}

// remoteKeys creates an auto-refreshing key set for a JWKS endpoint.
func remoteKeys(ctx context.Context, jwksURL string, cfg *Config) (keyfunc.Keyfunc, error) {
	logger := cfg.Logger
	kf, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{jwksURL}, keyfunc.Override{
		Client:          cfg.HTTPClient,
		RefreshInterval: cfg.RefreshInterval,
		// Bounds both the wait for the unknown-kid refresh limiter and
		// the refresh request itself.
		RateLimitWaitMax: 5 * time.Second,
		RefreshErrorHandlerFunc: func(u string) func(ctx context.Context, err error) {
			return func(ctx context.Context, err error) {
				logger.WarnContext(ctx, "JWKS refresh failed", "url", u, "error", err)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return kf, nil
}

// ResolveVerifier returns a verifier bound to the issuer's key with the
// given id.
func (r *Resolver) ResolveVerifier(ctx context.Context, issuer, keyID string) (auth.Verifier, error) {
	ik, ok := r.issuers[issuer]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssuer, issuer)
	}

	if _, err := ik.keys.Storage().KeyRead(ctx, keyID); err != nil {
		if errors.Is(err, jwkset.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, keyID)
		}
		return nil, fmt.Errorf("jwks: reading key %q: %w", keyID, err)
	}

	return &verifier{issuer: ik, keyID: keyID}, nil
}

// verifier checks tokens against one resolved key.
type verifier struct {
	issuer *issuerKeys
	keyID  string
}

// Verify checks the signature, algorithm, issuer and temporal claims.
func (v *verifier) Verify(ctx context.Context, tok *auth.Token) (*auth.Token, error) {
	if tok.KeyID() != v.keyID {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrKeyMismatch, tok.KeyID(), v.keyID)
	}

	if _, err := v.issuer.parser.Parse(tok.Raw(), v.issuer.keys.KeyfuncCtx(ctx)); err != nil {
		return nil, fmt.Errorf("jwks: token verification failed: %w", err)
	}

	return tok.AsVerified(), nil
}
