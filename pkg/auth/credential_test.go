package auth

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractCredential(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
		cookie        string
		want          string
		wantSource    CredentialSource
		wantErr       bool
	}{
		{name: "neither header", wantErr: true},
		{name: "bearer header", authorization: "Bearer abc.def.ghi", want: "abc.def.ghi", wantSource: SourceAuthorization},
		{name: "bearer with empty remainder", authorization: "Bearer ", want: "", wantSource: SourceAuthorization},
		{name: "lowercase scheme is not bearer", authorization: "bearer abc", wantErr: true},
		{name: "basic scheme without cookie", authorization: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "basic scheme falls back to cookie", authorization: "Basic dXNlcjpwYXNz", cookie: "UC_TOKEN=abc123", want: "abc123", wantSource: SourceCookie},
		{name: "header wins over cookie", authorization: "Bearer header-token", cookie: "UC_TOKEN=cookie-token", want: "header-token", wantSource: SourceAuthorization},
		{name: "cookie only", cookie: "UC_TOKEN=abc123", want: "abc123", wantSource: SourceCookie},
		{name: "cookie among other pairs", cookie: "theme=dark; UC_TOKEN=abc123; lang=en", want: "abc123", wantSource: SourceCookie},
		{name: "cookie without spaces", cookie: "theme=dark;UC_TOKEN=abc123;lang=en", want: "abc123", wantSource: SourceCookie},
		{name: "first match wins", cookie: "UC_TOKEN=first; UC_TOKEN=second", want: "first", wantSource: SourceCookie},
		{name: "prefixed name does not match", cookie: "OLD_UC_TOKEN=stale", wantErr: true},
		{name: "prefixed name then real cookie", cookie: "OLD_UC_TOKEN=stale; UC_TOKEN=fresh", want: "fresh", wantSource: SourceCookie},
		{name: "empty cookie value", cookie: "UC_TOKEN=; lang=en", wantErr: true},
		{name: "name without value", cookie: "UC_TOKEN", wantErr: true},
		{name: "unrelated cookies", cookie: "session=xyz; lang=en", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source, err := ExtractCredential(tt.authorization, tt.cookie)
			if tt.wantErr {
				if !errors.Is(err, ErrNoCredential) {
					t.Fatalf("error = %v, want ErrNoCredential", err)
				}
				if source != SourceNone {
					t.Errorf("source = %q, want none", source)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("credential = %q, want %q", got, tt.want)
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
		})
	}
}

func TestExtractor_CustomCookieName(t *testing.T) {
	e := NewExtractor("session_jwt", discardLogger())

	got, source, err := e.Extract("", "UC_TOKEN=ignored; session_jwt=custom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "custom" || source != SourceCookie {
		t.Errorf("Extract() = (%q, %q), want (%q, %q)", got, source, "custom", SourceCookie)
	}

	if _, _, err := e.Extract("", "UC_TOKEN=abc"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("default cookie name should not match, got err = %v", err)
	}
}

func TestExtractor_CookieNameIsQuoted(t *testing.T) {
	e := NewExtractor("a.b", discardLogger())

	if _, _, err := e.Extract("", "aXb=value"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("regex metacharacters in the cookie name must match literally, got err = %v", err)
	}
}

func TestExtractor_FromRequestJoinsCookieHeaders(t *testing.T) {
	e := NewExtractor("", discardLogger())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Add("Cookie", "theme=dark")
	req.Header.Add("Cookie", "UC_TOKEN=from-second-header")

	got, source, err := e.FromRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-second-header" || source != SourceCookie {
		t.Errorf("FromRequest() = (%q, %q), want (%q, %q)", got, source, "from-second-header", SourceCookie)
	}
}

func TestExtractor_AdversarialCookie(t *testing.T) {
	// A long run of near-matches must not blow up matching time.
	cookie := strings.Repeat("UC_TOKEN", 50000) + strings.Repeat(" ", 50000)

	if _, _, err := ExtractCredential("", cookie); !errors.Is(err, ErrNoCredential) {
		t.Errorf("error = %v, want ErrNoCredential", err)
	}
}
