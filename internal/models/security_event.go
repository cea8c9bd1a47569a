package models

import "time"

// Security event types. Append-only audit trail of authentication and
// credential-access activity.
const (
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLogout               = "logout"
	EventRegister             = "register"
	EventPasswordChange       = "password_change"
	EventPasswordResetRequest = "password_reset_request"
	EventPasswordView         = "password_view"
	EventPasswordCopy         = "password_copy"
	EventTwoFactorSetup       = "twofa_setup"
	EventTwoFactorEnabled     = "twofa_enabled"
	EventTwoFactorDisabled    = "twofa_disabled"
)

// SecurityEvent is a single audit record. Writes are fire-and-forget:
// a failed append must never surface to the user or block the action
// being logged.
type SecurityEvent struct {
	ID        string
	Type      string
	UserID    *string
	Details   string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
