package token

import "errors"

// Verification fails closed with a distinct error per failure mode so that
// callers can branch: an expired token prompts a refresh, a bad signature is
// treated as an attack.
var (
	ErrTokenExpired     = errors.New("token: expired")
	ErrTokenMalformed   = errors.New("token: malformed")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrInvalidAudience  = errors.New("token: audience mismatch")
	ErrInvalidIssuer    = errors.New("token: issuer mismatch")
	ErrTokenRevoked     = errors.New("token: revoked")
	ErrWrongTokenType   = errors.New("token: wrong token type")

	ErrServiceNotRegistered = errors.New("token: service not registered")
	ErrTargetNotAllowed     = errors.New("token: target service not allowed")
	ErrOperationNotAllowed  = errors.New("token: operation not allowed")

	ErrNoSigningKey = errors.New("token: no signing key available")
)
