package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Auth taxonomy - the only auth failures surfaced to callers.
	// Provider/driver detail never leaves the service boundary.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTooManyAttempts    = errors.New("too many failed attempts, try again later")
	ErrTwoFactorRequired  = errors.New("two-factor code required")
	ErrInvalidToken       = errors.New("invalid two-factor code")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")

	// Data-plane errors
	ErrStorage          = errors.New("storage operation failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// ValidationError carries every violated rule for an input, not just the
// first one, so the caller can render inline feedback in one pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return e.Errors[0]
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
