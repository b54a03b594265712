package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/tokengate/pkg/api"
)

// ErrorKind is the externally visible class of a rejection.
type ErrorKind int

const (
	// KindUnauthenticated means no usable credential was presented.
	KindUnauthenticated ErrorKind = iota + 1

	// KindPermissionDenied means a credential was presented but not accepted.
	KindPermissionDenied
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Reason tags why a request was rejected. Reasons are for logs and metrics
// only and are never written to the response.
type Reason string

const (
	ReasonNoCredential     Reason = "no_credential"
	ReasonMalformedToken   Reason = "malformed_token"
	ReasonMissingIssuer    Reason = "missing_issuer"
	ReasonMissingKeyID     Reason = "missing_key_id"
	ReasonUntrustedIssuer  Reason = "untrusted_issuer"
	ReasonKeyResolution    Reason = "key_resolution"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonMissingSubject   Reason = "missing_subject"
	ReasonAccountLookup    Reason = "account_lookup"
	ReasonAccountNotFound  Reason = "account_not_found"
	ReasonAccountDisabled  Reason = "account_disabled"
)

// Stage names a state of the per-request decision procedure.
type Stage string

const (
	StageExtractingCredential Stage = "extracting_credential"
	StageDecodingToken        Stage = "decoding_token"
	StageValidatingIssuer     Stage = "validating_issuer"
	StageResolvingVerifier    Stage = "resolving_verifier"
	StageVerifyingSignature   Stage = "verifying_signature"
	StageResolvingAccount     Stage = "resolving_account"
	StageCheckingAccountState Stage = "checking_account_state"
)

// Public rejection messages.
const (
	MessageNoAuthorization = "no authorization found"
	MessageInvalidToken    = "invalid access token"
	MessageUserNotAllowed  = "user not allowed"
)

// Sentinel errors.
var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrPermissionDenied = errors.New("access denied")
	ErrTooManyRequests  = errors.New("rate limit exceeded")

	// ErrNoCredential is returned by the extractor when neither header
	// yields a bearer credential.
	ErrNoCredential = errors.New("no bearer credential in request")

	// ErrMalformedToken is returned by DecodeToken for structurally invalid input.
	ErrMalformedToken = errors.New("malformed token")

	// ErrAccountNotFound is returned by AccountLookup implementations when
	// no account matches the subject.
	ErrAccountNotFound = errors.New("account not found")
)

type rejection struct {
	kind    ErrorKind
	message string
}

var rejections = map[Reason]rejection{
	ReasonNoCredential:     {KindUnauthenticated, MessageNoAuthorization},
	ReasonMalformedToken:   {KindUnauthenticated, MessageInvalidToken},
	ReasonMissingIssuer:    {KindPermissionDenied, MessageInvalidToken},
	ReasonMissingKeyID:     {KindPermissionDenied, MessageInvalidToken},
	ReasonUntrustedIssuer:  {KindPermissionDenied, MessageInvalidToken},
	ReasonKeyResolution:    {KindPermissionDenied, MessageInvalidToken},
	ReasonInvalidSignature: {KindPermissionDenied, MessageInvalidToken},
	ReasonMissingSubject:   {KindPermissionDenied, MessageUserNotAllowed},
	ReasonAccountLookup:    {KindPermissionDenied, MessageUserNotAllowed},
	ReasonAccountNotFound:  {KindPermissionDenied, MessageUserNotAllowed},
	ReasonAccountDisabled:  {KindPermissionDenied, MessageUserNotAllowed},
}

// AuthError is a tagged rejection. Kind and Message form the public
// contract; Reason, Stage and Err are internal diagnostics.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Reason  Reason
	Stage   Stage
	Err     error
}

// reject builds the AuthError for a reason. Unknown reasons deny.
func reject(stage Stage, reason Reason, cause error) *AuthError {
	r, ok := rejections[reason]
	if !ok {
		r = rejection{KindPermissionDenied, MessageInvalidToken}
	}
	return &AuthError{
		Kind:    r.kind,
		Message: r.message,
		Reason:  reason,
		Stage:   stage,
		Err:     cause,
	}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s (%s): %v", e.Kind, e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s at %s (%s)", e.Kind, e.Stage, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so callers can use
// errors.Is(err, ErrUnauthenticated) without inspecting fields.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.Kind == KindUnauthenticated
	case ErrPermissionDenied:
		return e.Kind == KindPermissionDenied
	}
	return false
}

// APIError returns the public representation of the rejection.
func (e *AuthError) APIError() *api.APIError {
	if e.Kind == KindUnauthenticated {
		return api.NewUnauthenticatedError(e.Message)
	}
	return api.NewPermissionDeniedError(e.Message)
}

// HTTPStatus maps the rejection kind to a status code.
func (e *AuthError) HTTPStatus() int {
	if e.Kind == KindUnauthenticated {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}
