package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/tokengate/pkg/api"
	"github.com/rhuss/tokengate/pkg/auth"
	"github.com/rhuss/tokengate/pkg/observability"
	"github.com/rhuss/tokengate/pkg/transport"
)

// ReadinessChecker reports whether a dependency can serve traffic.
type ReadinessChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig holds the parts the router is assembled from.
type RouterConfig struct {
	// Gate wraps every protected route. Required.
	Gate func(http.Handler) http.Handler

	// Ready backs /readyz. Nil means always ready.
	Ready ReadinessChecker

	// Upstream is the protected service. Nil disables proxying and
	// unmatched protected paths answer 404.
	Upstream *url.URL

	// CORS enables cross-origin handling when non-nil.
	CORS *cors.Options

	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool

	// MetricsPath defaults to "/metrics".
	MetricsPath string

	Logger *slog.Logger
}

// NewRouter builds the HTTP handler. Health, readiness and metrics
// endpoints are served outside the gate; everything else passes it first.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()

	r.Use(
		transport.Recovery(cfg.Logger),
		transport.RequestID(),
		transport.Logging(cfg.Logger),
		observability.MetricsMiddleware,
	)
	if cfg.CORS != nil {
		r.Use(cors.Handler(*cfg.CORS))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", readyHandler(cfg.Ready, cfg.Logger))
	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(cfg.Gate)
		r.Get("/api/whoami", whoamiHandler)

		if cfg.Upstream != nil {
			r.Handle("/*", NewProxy(cfg.Upstream, cfg.Logger))
		} else {
			r.Handle("/*", http.HandlerFunc(notFound))
		}
	})

	return r
}

func readyHandler(ready ReadinessChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready.HealthCheck(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}
}

// whoamiResponse describes the caller as seen by the gate.
type whoamiResponse struct {
	Subject   string         `json:"subject"`
	Issuer    string         `json:"issuer"`
	KeyID     string         `json:"kid"`
	Algorithm string         `json:"alg"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Claims    map[string]any `json:"claims"`
}

func whoamiHandler(w http.ResponseWriter, r *http.Request) {
	tok := auth.TokenFromContext(r.Context())
	if tok == nil {
		// Unreachable behind the gate.
		transport.WriteAPIError(w, api.NewUnauthenticatedError(auth.MessageNoAuthorization))
		return
	}
	resp := whoamiResponse{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		KeyID:     tok.KeyID(),
		Algorithm: tok.Algorithm(),
		Claims:    tok.Claims(),
	}
	if exp, ok := tok.ExpiresAt(); ok {
		resp.ExpiresAt = &exp
	}
	transport.WriteJSON(w, http.StatusOK, resp)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	transport.WriteAPIError(w, api.NewNotFoundError("no route for "+r.URL.Path))
}
