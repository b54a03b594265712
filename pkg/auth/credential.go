package auth

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

const (
	// BearerPrefix is the literal, case-sensitive Authorization scheme prefix.
	BearerPrefix = "Bearer "

	// DefaultTokenCookie is the cookie that carries the access token for
	// browser clients.
	DefaultTokenCookie = "UC_TOKEN"
)

// CredentialSource records where a credential was found.
type CredentialSource string

const (
	SourceNone          CredentialSource = ""
	SourceAuthorization CredentialSource = "authorization"
	SourceCookie        CredentialSource = "cookie"
)

// Extractor locates the bearer credential of a request.
type Extractor struct {
	cookieName string
	pattern    *regexp.Regexp
	logger     *slog.Logger
}

// NewExtractor creates an extractor for the given token cookie name.
// An empty name selects DefaultTokenCookie.
func NewExtractor(cookieName string, logger *slog.Logger) *Extractor {
	if cookieName == "" {
		cookieName = DefaultTokenCookie
	}
	if logger == nil {
		logger = slog.Default()
	}
	// RE2 matching is linear in the input, and the name must start at a
	// cookie boundary so OLD_UC_TOKEN does not match UC_TOKEN.
	pattern := regexp.MustCompile(`(?:^|[;\s])` + regexp.QuoteMeta(cookieName) + `=([^\s;]+)`)
	return &Extractor{cookieName: cookieName, pattern: pattern, logger: logger}
}

var defaultExtractor = NewExtractor(DefaultTokenCookie, nil)

// ExtractCredential is Extractor.Extract with the default cookie name.
func ExtractCredential(authorization, cookie string) (string, CredentialSource, error) {
	return defaultExtractor.Extract(authorization, cookie)
}

// Extract returns the credential from the Authorization header value or
// the Cookie header value. Empty values count as absent. A "Bearer "
// header always wins over the cookie.
func (e *Extractor) Extract(authorization, cookie string) (string, CredentialSource, error) {
	if authorization == "" && cookie == "" {
		return "", SourceNone, ErrNoCredential
	}

	if strings.HasPrefix(authorization, BearerPrefix) {
		return authorization[len(BearerPrefix):], SourceAuthorization, nil
	}

	if cookie != "" && strings.Contains(cookie, e.cookieName) {
		e.logger.Debug("reading access token from cookie", "cookie", e.cookieName)
		if m := e.pattern.FindStringSubmatch(cookie); m != nil {
			return m[1], SourceCookie, nil
		}
	}

	return "", SourceNone, ErrNoCredential
}

// FromRequest extracts the credential from an HTTP request. Multiple
// Cookie header fields (as sent over HTTP/2) are joined before matching.
func (e *Extractor) FromRequest(r *http.Request) (string, CredentialSource, error) {
	return e.Extract(r.Header.Get("Authorization"), cookieHeader(r))
}

func cookieHeader(r *http.Request) string {
	values := r.Header.Values("Cookie")
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	default:
		return strings.Join(values, "; ")
	}
}
