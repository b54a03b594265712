package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/tokengate/pkg/observability"
)

// DefaultTrustedIssuer is the issuer value of tokens minted by the
// deployment itself.
const DefaultTrustedIssuer = "internal"

// Config holds the gate's collaborators and policy.
type Config struct {
	// TrustedIssuer is the only accepted iss claim. Default: "internal".
	TrustedIssuer string

	// CookieName is the cookie that may carry the token. Default: "UC_TOKEN".
	CookieName string

	// Resolver maps (issuer, kid) to a Verifier. Required.
	Resolver KeyResolver

	// Accounts maps a verified subject to an account. Required.
	Accounts AccountLookup

	// Logger receives diagnostic output. Default: slog.Default().
	Logger *slog.Logger
}

// Gate runs the four-stage decision procedure. It holds no per-request
// state and is safe for concurrent use when its collaborators are.
type Gate struct {
	trustedIssuer string
	extractor     *Extractor
	resolver      KeyResolver
	accounts      AccountLookup
	logger        *slog.Logger
}

var _ Authenticator = (*Gate)(nil)

// NewGate creates a gate from the given configuration.
func NewGate(cfg Config) (*Gate, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("auth: key resolver is required")
	}
	if cfg.Accounts == nil {
		return nil, errors.New("auth: account lookup is required")
	}
	if cfg.TrustedIssuer == "" {
		cfg.TrustedIssuer = DefaultTrustedIssuer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gate{
		trustedIssuer: cfg.TrustedIssuer,
		extractor:     NewExtractor(cfg.CookieName, cfg.Logger),
		resolver:      cfg.Resolver,
		accounts:      cfg.Accounts,
		logger:        cfg.Logger,
	}, nil
}

// Authenticate runs the gate against an HTTP request.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	g.logger.Debug("checking request", "path", r.URL.Path)
	return g.Check(ctx, r.Header.Get("Authorization"), cookieHeader(r))
}

// Check runs the gate against raw Authorization and Cookie header values.
// Every stage either passes its output on or ends the pass with a denial.
func (g *Gate) Check(ctx context.Context, authorization, cookie string) AuthResult {
	raw, _, err := g.extractor.Extract(authorization, cookie)
	if err != nil {
		return deny(reject(StageExtractingCredential, ReasonNoCredential, err))
	}

	tok, err := DecodeToken(raw)
	if err != nil {
		return deny(reject(StageDecodingToken, ReasonMalformedToken, err))
	}

	verified, authErr := g.validateIssuer(ctx, tok)
	if authErr != nil {
		return deny(authErr)
	}

	if authErr := g.validateIdentity(ctx, verified); authErr != nil {
		return deny(authErr)
	}

	return AuthResult{Decision: Allow, Token: verified}
}

// validateIssuer checks the issuer before any key resolution, so lookups
// only ever happen for the trusted issuer, then verifies the signature.
func (g *Gate) validateIssuer(ctx context.Context, tok *Token) (*Token, *AuthError) {
	issuer := tok.Issuer()
	if issuer == "" {
		return nil, reject(StageValidatingIssuer, ReasonMissingIssuer, errors.New("token has no iss claim"))
	}
	keyID := tok.KeyID()
	if keyID == "" {
		return nil, reject(StageValidatingIssuer, ReasonMissingKeyID, errors.New("token has no kid header"))
	}

	g.logger.Debug("validating access token", "issuer", issuer)

	if issuer != g.trustedIssuer {
		return nil, reject(StageValidatingIssuer, ReasonUntrustedIssuer, fmt.Errorf("issuer %q is not trusted", issuer))
	}

	if err := ctx.Err(); err != nil {
		return nil, reject(StageResolvingVerifier, ReasonKeyResolution, err)
	}
	verifier, err := g.resolver.ResolveVerifier(ctx, issuer, keyID)
	if err != nil {
		return nil, reject(StageResolvingVerifier, ReasonKeyResolution, err)
	}
	if verifier == nil {
		return nil, reject(StageResolvingVerifier, ReasonKeyResolution, fmt.Errorf("no verifier for key %q", keyID))
	}

	verified, err := verifier.Verify(ctx, tok)
	if err != nil {
		return nil, reject(StageVerifyingSignature, ReasonInvalidSignature, err)
	}
	if !verified.Verified() || verified.Raw() != tok.Raw() {
		return nil, reject(StageVerifyingSignature, ReasonInvalidSignature, errors.New("verifier did not accept the token"))
	}

	return verified, nil
}

// validateIdentity requires the subject to resolve to an enabled account.
// Lookup failures of any kind are reported as "user not allowed"; only the
// reason tag tells a missing account apart from a backend error.
func (g *Gate) validateIdentity(ctx context.Context, tok *Token) *AuthError {
	subject := tok.Subject()
	if subject == "" {
		return reject(StageResolvingAccount, ReasonMissingSubject, errors.New("token has no sub claim"))
	}

	if err := ctx.Err(); err != nil {
		observability.AccountLookupErrorsTotal.WithLabelValues("canceled").Inc()
		return reject(StageResolvingAccount, ReasonAccountLookup, err)
	}
	account, err := g.accounts.FindAccountByIdentity(ctx, subject)
	switch {
	case errors.Is(err, ErrAccountNotFound), err == nil && account == nil:
		observability.AccountLookupErrorsTotal.WithLabelValues("not_found").Inc()
		if err == nil {
			err = ErrAccountNotFound
		}
		return reject(StageResolvingAccount, ReasonAccountNotFound, err)
	case err != nil:
		observability.AccountLookupErrorsTotal.WithLabelValues(lookupErrorType(err)).Inc()
		g.logger.Debug("account lookup failed", "subject", subject, "error", err)
		return reject(StageResolvingAccount, ReasonAccountLookup, err)
	}

	if !account.Enabled() {
		return reject(StageCheckingAccountState, ReasonAccountDisabled, fmt.Errorf("account state is %q", account.State))
	}

	g.logger.Debug("access allowed", "subject", subject)
	return nil
}

func lookupErrorType(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "backend"
}

func deny(err *AuthError) AuthResult {
	return AuthResult{Decision: Deny, Err: err}
}
