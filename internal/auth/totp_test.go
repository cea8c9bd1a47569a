package auth

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPManager_GenerateSecret(t *testing.T) {
	tm := NewTOTPManager("VaultKeeper")

	secret, qr, err := tm.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))

	// Secret must be valid base32 so authenticator apps can import it.
	_, err = base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	assert.NoError(t, err)
}

func TestTOTPManager_ValidateCurrentCode(t *testing.T) {
	tm := NewTOTPManager("VaultKeeper")

	secret, _, err := tm.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	assert.True(t, tm.Validate(code, secret))
}

func TestTOTPManager_ValidateWithinSkew(t *testing.T) {
	tm := NewTOTPManager("VaultKeeper")

	secret, _, err := tm.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	// One time step behind is still inside the tolerance window.
	code, err := totp.GenerateCode(secret, time.Now().Add(-30*time.Second))
	require.NoError(t, err)

	assert.True(t, tm.Validate(code, secret))
}

func TestTOTPManager_RejectsBadCodes(t *testing.T) {
	tm := NewTOTPManager("VaultKeeper")

	secret, _, err := tm.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	assert.False(t, tm.Validate("000000", secret))
	assert.False(t, tm.Validate("", secret))
	assert.False(t, tm.Validate("not-a-code", secret))

	// Two steps out is beyond the allowed skew.
	stale, err := totp.GenerateCode(secret, time.Now().Add(-2*time.Minute))
	require.NoError(t, err)
	assert.False(t, tm.Validate(stale, secret))
}

func TestTOTPManager_BackupCodes(t *testing.T) {
	tm := NewTOTPManager("VaultKeeper")

	codes, err := tm.GenerateBackupCodes(8)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Len(t, code, 8)
		assert.False(t, seen[code], "duplicate backup code %q", code)
		seen[code] = true

		hash := tm.HashBackupCode(code)
		assert.Len(t, hash, 64)
		assert.NotEqual(t, code, hash)
		assert.Equal(t, hash, tm.HashBackupCode(code))
	}
}
