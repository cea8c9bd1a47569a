// Package passgen generates random passwords for new credential entries.
package passgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// Charset matches the strict password policy: it can always produce
	// entries that pass validation at the default length.
	Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()_+"

	DefaultLength = 16
	MinLength     = 8
	MaxLength     = 128
)

// Generate returns a random password of the given length drawn uniformly
// from Charset using crypto/rand.
func Generate(length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("password length must be between %d and %d, got %d", MinLength, MaxLength, length)
	}

	max := big.NewInt(int64(len(Charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = Charset[n.Int64()]
	}

	return string(out), nil
}
