package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	gohttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/cors"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rhuss/tokengate/pkg/api"
	"github.com/rhuss/tokengate/pkg/auth"
	"github.com/rhuss/tokengate/pkg/observability"
	"github.com/rhuss/tokengate/pkg/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testGate admits requests carrying X-Test-Token and rejects the rest.
// Token verification is covered by the auth package.
func testGate(next gohttp.Handler) gohttp.Handler {
	return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		tok, err := auth.DecodeToken(r.Header.Get("X-Test-Token"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			transport.WriteAPIError(w, api.NewUnauthenticatedError(auth.MessageNoAuthorization))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetToken(r.Context(), tok.AsVerified())))
	})
}

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"iss": "internal",
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "key-1"
	raw, err := tok.SignedString([]byte("router-test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

type readiness struct{ err error }

func (r readiness) HealthCheck(context.Context) error { return r.err }

func newTestRouter(t *testing.T, mutate func(*RouterConfig)) *httptest.Server {
	t.Helper()
	cfg := RouterConfig{
		Gate:           testGate,
		MetricsEnabled: true,
		Logger:         quietLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header map[string]string) *gohttp.Response {
	t.Helper()
	req, err := gohttp.NewRequest(gohttp.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := gohttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_PublicEndpointsSkipGate(t *testing.T) {
	srv := newTestRouter(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := get(t, srv.URL+path, nil)
		if resp.StatusCode != gohttp.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, gohttp.StatusOK)
		}
	}
}

func TestRouter_MetricsExposition(t *testing.T) {
	srv := newTestRouter(t, nil)

	get(t, srv.URL+"/healthz", nil)
	resp := get(t, srv.URL+"/metrics", nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tokengate_requests_total") {
		t.Error("metrics output missing tokengate_requests_total")
	}
}

func TestRouter_MetricsDisabledIsGated(t *testing.T) {
	srv := newTestRouter(t, func(c *RouterConfig) { c.MetricsEnabled = false })

	resp := get(t, srv.URL+"/metrics", nil)
	if resp.StatusCode != gohttp.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusUnauthorized)
	}
}

func TestRouter_ReadyzReportsDependencyFailure(t *testing.T) {
	srv := newTestRouter(t, func(c *RouterConfig) {
		c.Ready = readiness{err: errors.New("database unreachable")}
	})

	resp := get(t, srv.URL+"/readyz", nil)
	if resp.StatusCode != gohttp.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusServiceUnavailable)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "database") {
		t.Errorf("readiness body leaks cause: %q", body)
	}
}

func TestRouter_ProtectedRouteRequiresGate(t *testing.T) {
	srv := newTestRouter(t, nil)

	resp := get(t, srv.URL+"/api/whoami", nil)
	if resp.StatusCode != gohttp.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusUnauthorized)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want %q", got, "Bearer")
	}
}

func TestRouter_Whoami(t *testing.T) {
	srv := newTestRouter(t, nil)

	resp := get(t, srv.URL+"/api/whoami", map[string]string{"X-Test-Token": mintToken(t, "alice@example.com")})
	if resp.StatusCode != gohttp.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}

	var got whoamiResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Subject != "alice@example.com" {
		t.Errorf("subject = %q, want %q", got.Subject, "alice@example.com")
	}
	if got.Issuer != "internal" {
		t.Errorf("issuer = %q, want %q", got.Issuer, "internal")
	}
	if got.KeyID != "key-1" {
		t.Errorf("kid = %q, want %q", got.KeyID, "key-1")
	}
	if got.Algorithm != "HS256" {
		t.Errorf("alg = %q, want %q", got.Algorithm, "HS256")
	}
	if got.ExpiresAt == nil {
		t.Fatal("expires_at missing")
	}
	if until := time.Until(*got.ExpiresAt); until <= 0 || until > time.Hour {
		t.Errorf("expires_at = %v, want within the next hour", got.ExpiresAt)
	}
	if got.Claims["sub"] != "alice@example.com" {
		t.Errorf("claims[sub] = %v, want %q", got.Claims["sub"], "alice@example.com")
	}
}

func TestRouter_NoUpstreamAnswersNotFound(t *testing.T) {
	srv := newTestRouter(t, nil)

	resp := get(t, srv.URL+"/some/path", map[string]string{"X-Test-Token": mintToken(t, "alice@example.com")})
	if resp.StatusCode != gohttp.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusNotFound)
	}
}

func TestRouter_ProxiesToUpstream(t *testing.T) {
	var gotPath, gotSubject, gotIssuer, gotRequestID string
	upstream := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		gotPath = r.URL.RequestURI()
		gotSubject = r.Header.Get(HeaderAuthenticatedSubject)
		gotIssuer = r.Header.Get(HeaderAuthenticatedIssuer)
		gotRequestID = r.Header.Get(transport.RequestIDHeader)
		w.WriteHeader(gohttp.StatusTeapot)
		w.Write([]byte("from upstream"))
	}))
	defer upstream.Close()

	target, _ := url.Parse(upstream.URL)
	srv := newTestRouter(t, func(c *RouterConfig) { c.Upstream = target })

	resp := get(t, srv.URL+"/orders/42?expand=items", map[string]string{
		"X-Test-Token":             mintToken(t, "alice@example.com"),
		HeaderAuthenticatedSubject: "mallory@example.com",
		transport.RequestIDHeader:  "req-proxy-1",
	})

	if resp.StatusCode != gohttp.StatusTeapot {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusTeapot)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "from upstream" {
		t.Errorf("body = %q, want %q", body, "from upstream")
	}
	if gotPath != "/orders/42?expand=items" {
		t.Errorf("upstream path = %q, want %q", gotPath, "/orders/42?expand=items")
	}
	if gotSubject != "alice@example.com" {
		t.Errorf("forwarded subject = %q, want %q", gotSubject, "alice@example.com")
	}
	if gotIssuer != "internal" {
		t.Errorf("forwarded issuer = %q, want %q", gotIssuer, "internal")
	}
	if gotRequestID != "req-proxy-1" {
		t.Errorf("forwarded request id = %q, want %q", gotRequestID, "req-proxy-1")
	}
}

func TestRouter_RejectedRequestNeverReachesUpstream(t *testing.T) {
	hits := 0
	upstream := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		hits++
	}))
	defer upstream.Close()

	target, _ := url.Parse(upstream.URL)
	srv := newTestRouter(t, func(c *RouterConfig) { c.Upstream = target })

	resp := get(t, srv.URL+"/orders", nil)
	if resp.StatusCode != gohttp.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusUnauthorized)
	}
	if hits != 0 {
		t.Errorf("upstream hits = %d, want 0", hits)
	}
}

func TestRouter_UpstreamDownIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(gohttp.NotFoundHandler())
	target, _ := url.Parse(upstream.URL)
	upstream.Close()

	srv := newTestRouter(t, func(c *RouterConfig) { c.Upstream = target })
	before := testutil.ToFloat64(observability.UpstreamErrorsTotal)

	resp := get(t, srv.URL+"/orders", map[string]string{"X-Test-Token": mintToken(t, "alice@example.com")})
	if resp.StatusCode != gohttp.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusBadGateway)
	}

	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Type != api.ErrorTypeBadGateway {
		t.Errorf("error body = %+v, want type %q", body.Error, api.ErrorTypeBadGateway)
	}
	if got := testutil.ToFloat64(observability.UpstreamErrorsTotal) - before; got != 1 {
		t.Errorf("upstream errors delta = %v, want 1", got)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestRouter(t, func(c *RouterConfig) {
		c.CORS = &cors.Options{
			AllowedOrigins:   []string{"https://app.example.com"},
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}
	})

	req, _ := gohttp.NewRequest(gohttp.MethodOptions, srv.URL+"/api/whoami", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := gohttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://app.example.com")
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
	}
}
