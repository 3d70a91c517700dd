package idtoken

import "errors"

// Sentinel errors for token validation. Each rejection the validator can
// produce matches exactly one of these through errors.Is, and every
// validation-layer rejection additionally matches ErrTokenInvalid.
var (
	// ErrTokenInvalid is the category all validation-layer rejections
	// belong to. A token that fails with it should be rejected outright.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned when the signature is structurally valid
	// but the token's validity window has passed. The holder should
	// re-authenticate.
	ErrTokenExpired = errors.New("token expired")

	// ErrSignature is returned when no cached or freshly refreshed key
	// verified the token's signature. Indicates a forged, corrupted, or
	// wrong-issuer token.
	ErrSignature = errors.New("token not verified as issued by the provider")

	// ErrAudienceMismatch is returned when the token's aud claim does not
	// match any expected audience.
	ErrAudienceMismatch = errors.New("token audience mismatch")

	// ErrClientIDMismatch is returned when the token's authorized party
	// does not match the expected client ID.
	ErrClientIDMismatch = errors.New("token client id mismatch")

	// ErrInvalidIssuer is returned when the token's iss claim is not one of
	// the trusted issuers.
	ErrInvalidIssuer = errors.New("token issuer not trusted")

	// ErrKeySourceUnavailable is the category for infrastructure failures:
	// no signing keys could be obtained at all. It does NOT match
	// ErrTokenInvalid; the identity is unverifiable rather than invalid,
	// and callers may want to retry later instead of rejecting.
	ErrKeySourceUnavailable = errors.New("unable to retrieve signing keys")

	// ErrTokenMissing is returned by the middleware when no token is
	// present on the request and credentials are required.
	ErrTokenMissing = errors.New("token missing")
)

// Common error codes carried by ValidationError.
const (
	ErrorCodeTokenExpired     = "token_expired"
	ErrorCodeInvalidSignature = "invalid_signature"
	ErrorCodeInvalidAudience  = "invalid_audience"
	ErrorCodeInvalidClientID  = "invalid_client_id"
	ErrorCodeInvalidIssuer    = "invalid_issuer"
)

// ValidationError is a validation-layer rejection of a token. It carries a
// machine-readable code for logging and metrics alongside the underlying
// cause, and matches both ErrTokenInvalid and the sentinel for its code
// through errors.Is.
type ValidationError struct {
	// Code is a machine-readable error code (e.g. "token_expired").
	Code string

	// Message is a human-readable description of the rejection.
	Message string

	// Details contains the underlying error, if any.
	Details error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Details != nil {
		return e.Message + ": " + e.Details.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ValidationError) Unwrap() error {
	return e.Details
}

// Is matches the error against ErrTokenInvalid and against the sentinel
// corresponding to its code.
func (e *ValidationError) Is(target error) bool {
	if target == ErrTokenInvalid {
		return true
	}
	switch e.Code {
	case ErrorCodeTokenExpired:
		return target == ErrTokenExpired
	case ErrorCodeInvalidSignature:
		return target == ErrSignature
	case ErrorCodeInvalidAudience:
		return target == ErrAudienceMismatch
	case ErrorCodeInvalidClientID:
		return target == ErrClientIDMismatch
	case ErrorCodeInvalidIssuer:
		return target == ErrInvalidIssuer
	}
	return false
}

// NewValidationError creates a ValidationError with the given code and message.
func NewValidationError(code, message string, details error) *ValidationError {
	return &ValidationError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CertificateError signals that no signing keys could be obtained: the key
// refresh failed and no cached key validated the token. Unlike
// ValidationError it represents an availability problem, not a token-trust
// problem; it matches ErrKeySourceUnavailable and never ErrTokenInvalid.
type CertificateError struct {
	// Details contains the refresh failure.
	Details error
}

// Error implements the error interface.
func (e *CertificateError) Error() string {
	if e.Details != nil {
		return ErrKeySourceUnavailable.Error() + ": " + e.Details.Error()
	}
	return ErrKeySourceUnavailable.Error()
}

// Unwrap returns the underlying refresh failure.
func (e *CertificateError) Unwrap() error {
	return e.Details
}

// Is matches the error against ErrKeySourceUnavailable.
func (e *CertificateError) Is(target error) bool {
	return target == ErrKeySourceUnavailable
}
