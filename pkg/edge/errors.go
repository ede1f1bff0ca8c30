package edge

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/apikey"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/session"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/token"
)

// Code is a stable machine-readable denial code. Codes are part of the wire
// contract; clients branch on them.
type Code string

const (
	CodeNotAuthenticated    Code = "not_authenticated"
	CodeTokenExpired        Code = "token_expired"
	CodeInvalidSignature    Code = "invalid_signature"
	CodeInvalidAudience     Code = "invalid_audience"
	CodeInvalidIssuer       Code = "invalid_issuer"
	CodeInsufficientScope   Code = "insufficient_scope"
	CodeInsufficientRole    Code = "insufficient_role"
	CodeTenantMismatch      Code = "tenant_mismatch"
	CodeUnauthorizedService Code = "unauthorized_service"
	CodeRateLimitExceeded   Code = "rate_limit_exceeded"
	CodeMFARequired         Code = "mfa_required"
	CodeConfigurationError  Code = "configuration_error"
	CodeBackendUnavailable  Code = "backend_unavailable"
)

// AuthError is the single denial shape the edge produces. Messages are
// deliberately uniform within a class so a denial never reveals whether the
// target exists.
type AuthError struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	HTTP    int               `json:"-"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("edge: %s: %s", e.Code, e.Message)
}

func notAuthenticated(msg string) *AuthError {
	if msg == "" {
		msg = "authentication required"
	}
	return &AuthError{Code: CodeNotAuthenticated, Message: msg, HTTP: http.StatusUnauthorized}
}

// forbidden denials share one message regardless of cause so responses stay
// enumeration-safe; the code still lets well-behaved clients branch.
func forbidden(code Code) *AuthError {
	return &AuthError{Code: code, Message: "access denied", HTTP: http.StatusForbidden}
}

func configurationError(msg string) *AuthError {
	return &AuthError{Code: CodeConfigurationError, Message: msg, HTTP: http.StatusInternalServerError}
}

func backendUnavailable() *AuthError {
	return &AuthError{
		Code:    CodeBackendUnavailable,
		Message: "temporarily unavailable, retry with backoff",
		HTTP:    http.StatusServiceUnavailable,
	}
}

func rateLimited(limit int, window quota.Window, resetAt time.Time) *AuthError {
	return &AuthError{
		Code:    CodeRateLimitExceeded,
		Message: "rate limit exceeded",
		HTTP:    http.StatusTooManyRequests,
		Details: map[string]string{
			"limit":    strconv.Itoa(limit),
			"window":   window.String(),
			"reset_at": resetAt.UTC().Format(time.RFC3339),
		},
	}
}

// classify maps collaborator errors onto the edge's stable codes. Anything
// unrecognized fails closed as not_authenticated.
func classify(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	var rle *apikey.RateLimitError
	if errors.As(err, &rle) {
		return rateLimited(rle.Limit, rle.Window, rle.ResetAt)
	}

	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return &AuthError{Code: CodeTokenExpired, Message: "token expired", HTTP: http.StatusUnauthorized}
	case errors.Is(err, token.ErrInvalidSignature):
		return &AuthError{Code: CodeInvalidSignature, Message: "invalid token signature", HTTP: http.StatusUnauthorized}
	case errors.Is(err, token.ErrInvalidAudience):
		return &AuthError{Code: CodeInvalidAudience, Message: "invalid token audience", HTTP: http.StatusUnauthorized}
	case errors.Is(err, token.ErrInvalidIssuer):
		return &AuthError{Code: CodeInvalidIssuer, Message: "invalid token issuer", HTTP: http.StatusUnauthorized}
	case errors.Is(err, token.ErrServiceNotRegistered),
		errors.Is(err, token.ErrTargetNotAllowed),
		errors.Is(err, token.ErrOperationNotAllowed):
		return forbidden(CodeUnauthorizedService)
	case errors.Is(err, token.ErrNoSigningKey):
		return configurationError("signing keys not configured")
	case errors.Is(err, token.ErrTokenRevoked),
		errors.Is(err, token.ErrTokenMalformed),
		errors.Is(err, token.ErrWrongTokenType):
		return notAuthenticated("invalid credential")
	case errors.Is(err, apikey.ErrBackendUnavailable),
		errors.Is(err, session.ErrBackendUnavailable),
		errors.Is(err, quota.ErrBackendUnavailable):
		return backendUnavailable()
	case errors.Is(err, apikey.ErrKeyNotFound),
		errors.Is(err, apikey.ErrKeyRevoked),
		errors.Is(err, apikey.ErrKeySuspended),
		errors.Is(err, apikey.ErrKeyExpired),
		errors.Is(err, apikey.ErrIPNotAllowed),
		errors.Is(err, apikey.ErrHTTPSRequired):
		return notAuthenticated("invalid credential")
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrSessionNotActive):
		return notAuthenticated("session no longer valid")
	}
	return notAuthenticated("invalid credential")
}
