package http

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rhuss/tokengate/pkg/api"
	"github.com/rhuss/tokengate/pkg/auth"
	"github.com/rhuss/tokengate/pkg/observability"
	"github.com/rhuss/tokengate/pkg/transport"
)

// Headers set on proxied requests. Client-supplied values are dropped.
const (
	HeaderAuthenticatedSubject = "X-Authenticated-Subject"
	HeaderAuthenticatedIssuer  = "X-Authenticated-Issuer"
)

// NewProxy returns a reverse proxy to the protected service. The verified
// subject and issuer are forwarded as headers; upstream failures become
// 502 responses.
func NewProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			pr.Out.Header.Del(HeaderAuthenticatedSubject)
			pr.Out.Header.Del(HeaderAuthenticatedIssuer)
			if tok := auth.TokenFromContext(pr.In.Context()); tok != nil {
				pr.Out.Header.Set(HeaderAuthenticatedSubject, tok.Subject())
				pr.Out.Header.Set(HeaderAuthenticatedIssuer, tok.Issuer())
			}
			if id := transport.RequestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(transport.RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			observability.UpstreamErrorsTotal.Inc()
			logger.Error("upstream request failed",
				"request_id", transport.RequestIDFromContext(r.Context()),
				"path", r.URL.Path,
				"upstream", target.Host,
				"error", err,
			)
			transport.WriteAPIError(w, api.NewBadGatewayError("upstream unavailable"))
		},
	}
}
