package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/tokengate/pkg/api"
	"github.com/rhuss/tokengate/pkg/observability"
	"github.com/rhuss/tokengate/pkg/transport"
)

// Middleware creates HTTP middleware from an Authenticator and optional
// RateLimiter. It checks the bypass list, runs the gate, attaches the
// verified token to the request context and optionally enforces rate limits.
// The inner handler runs only when the gate allows the request.
func Middleware(authn Authenticator, limiter RateLimiter, bypassEndpoints []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			result := authn.Authenticate(r.Context(), r)
			observability.AuthDuration.WithLabelValues(result.Decision.String()).Observe(time.Since(start).Seconds())

			if result.Decision != Allow || result.Token == nil {
				authErr := result.Err
				if authErr == nil {
					// An allow without a token is treated as a failed signature check.
					authErr = reject(StageVerifyingSignature, ReasonInvalidSignature, nil)
				}
				observability.AuthDecisionsTotal.WithLabelValues("deny", authErr.Kind.String()).Inc()
				observability.AuthRejectionsTotal.WithLabelValues(string(authErr.Reason)).Inc()

				logger.Warn("request rejected",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", transport.RequestIDFromContext(r.Context()),
					"kind", authErr.Kind.String(),
					"stage", string(authErr.Stage),
					"reason", string(authErr.Reason),
					"error", authErr.Err,
				)
				WriteRejection(w, authErr)
				return
			}

			observability.AuthDecisionsTotal.WithLabelValues("allow", "none").Inc()
			subject := result.Token.Subject()

			attrs := []any{
				"subject", subject,
				"alg", result.Token.Algorithm(),
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			}
			if exp, ok := result.Token.ExpiresAt(); ok {
				attrs = append(attrs, "expires_in", time.Until(exp).Round(time.Second))
			}
			logger.Debug("authentication succeeded", attrs...)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), subject); err != nil {
					logger.Warn("rate limit exceeded", "subject", subject)
					observability.RateLimitRejectedTotal.Inc()
					transport.WriteErrorResponse(w, api.NewTooManyRequestsError("rate limit exceeded"), http.StatusTooManyRequests)
					return
				}
			}

			ctx := SetToken(r.Context(), result.Token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteRejection writes the public form of a rejection. Nothing beyond the
// kind and the fixed message reaches the caller.
func WriteRejection(w http.ResponseWriter, err *AuthError) {
	if err.Kind == KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	}
	transport.WriteErrorResponse(w, err.APIError(), err.HTTPStatus())
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}
