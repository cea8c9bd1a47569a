package models

import (
	"time"
)

// TwoFactorState describes where a user is in the 2FA lifecycle.
type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "disabled"
	// TwoFactorPending means a secret has been provisioned but never
	// verified. A lost setup flow must not lock the account, so pending
	// secrets do not gate login.
	TwoFactorPending TwoFactorState = "pending"
	TwoFactorEnabled TwoFactorState = "enabled"
)

type User struct {
	ID            string
	Email         string
	PasswordHash  string // NULL for federated-only users
	EmailVerified bool

	TwoFactorEnabled     bool
	TwoFactorSecret      *string  // base32 TOTP secret, set while pending or enabled
	TwoFactorBackupCodes []string // SHA-256 hashes, consumed one-shot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorState derives the 2FA lifecycle state from the stored fields.
func (u *User) TwoFactorStatus() TwoFactorState {
	switch {
	case u.TwoFactorEnabled:
		return TwoFactorEnabled
	case u.TwoFactorSecret != nil && *u.TwoFactorSecret != "":
		return TwoFactorPending
	default:
		return TwoFactorDisabled
	}
}
