package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rhuss/tokengate/pkg/api"
)

func TestAuthDecision_String(t *testing.T) {
	if got := Allow.String(); got != "allow" {
		t.Errorf("Allow.String() = %q, want %q", got, "allow")
	}
	if got := Deny.String(); got != "deny" {
		t.Errorf("Deny.String() = %q, want %q", got, "deny")
	}
}

func TestAccount_Enabled(t *testing.T) {
	tests := []struct {
		name    string
		account *Account
		want    bool
	}{
		{"enabled", &Account{State: AccountEnabled}, true},
		{"disabled", &Account{State: AccountDisabled}, false},
		{"empty state", &Account{}, false},
		{"unknown state", &Account{State: "SUSPENDED"}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReject_KindAndMessage(t *testing.T) {
	tests := []struct {
		reason     Reason
		wantKind   ErrorKind
		wantMsg    string
		wantStatus int
	}{
		{ReasonNoCredential, KindUnauthenticated, MessageNoAuthorization, http.StatusUnauthorized},
		{ReasonMalformedToken, KindUnauthenticated, MessageInvalidToken, http.StatusUnauthorized},
		{ReasonMissingIssuer, KindPermissionDenied, MessageInvalidToken, http.StatusForbidden},
		{ReasonMissingKeyID, KindPermissionDenied, MessageInvalidToken, http.StatusForbidden},
		{ReasonUntrustedIssuer, KindPermissionDenied, MessageInvalidToken, http.StatusForbidden},
		{ReasonKeyResolution, KindPermissionDenied, MessageInvalidToken, http.StatusForbidden},
		{ReasonInvalidSignature, KindPermissionDenied, MessageInvalidToken, http.StatusForbidden},
		{ReasonMissingSubject, KindPermissionDenied, MessageUserNotAllowed, http.StatusForbidden},
		{ReasonAccountLookup, KindPermissionDenied, MessageUserNotAllowed, http.StatusForbidden},
		{ReasonAccountNotFound, KindPermissionDenied, MessageUserNotAllowed, http.StatusForbidden},
		{ReasonAccountDisabled, KindPermissionDenied, MessageUserNotAllowed, http.StatusForbidden},
		{Reason("unheard_of"), KindPermissionDenied, MessageInvalidToken, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := reject(StageValidatingIssuer, tt.reason, nil)
			if err.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", err.Kind, tt.wantKind)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if got := err.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestAuthError_Is(t *testing.T) {
	cause := errors.New("lookup timed out")
	err := reject(StageResolvingAccount, ReasonAccountLookup, cause)

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("expected errors.Is(err, ErrPermissionDenied)")
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Error("permission denied must not match ErrUnauthenticated")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable via Unwrap")
	}

	unauth := reject(StageExtractingCredential, ReasonNoCredential, ErrNoCredential)
	if !errors.Is(unauth, ErrUnauthenticated) {
		t.Error("expected errors.Is(err, ErrUnauthenticated)")
	}
}

func TestAuthError_APIErrorHidesCause(t *testing.T) {
	err := reject(StageResolvingAccount, ReasonAccountLookup, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	apiErr := err.APIError()
	if apiErr.Type != api.ErrorTypePermissionDenied {
		t.Errorf("Type = %q, want %q", apiErr.Type, api.ErrorTypePermissionDenied)
	}
	if apiErr.Message != MessageUserNotAllowed {
		t.Errorf("Message = %q, want %q", apiErr.Message, MessageUserNotAllowed)
	}
	if apiErr.Code != "" {
		t.Errorf("Code = %q, want empty", apiErr.Code)
	}
}

func TestTokenContext(t *testing.T) {
	ctx := context.Background()

	if got := TokenFromContext(ctx); got != nil {
		t.Errorf("expected nil token from empty context, got %v", got)
	}

	tok := &Token{raw: "x.y.z", claims: map[string]any{"sub": "alice@example.com"}, verified: true}
	ctx = SetToken(ctx, tok)

	got := TokenFromContext(ctx)
	if got != tok {
		t.Fatalf("TokenFromContext() = %v, want %v", got, tok)
	}
	if got.Subject() != "alice@example.com" {
		t.Errorf("Subject() = %q, want %q", got.Subject(), "alice@example.com")
	}
}
