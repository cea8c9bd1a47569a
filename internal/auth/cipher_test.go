package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultkeeper/vaultd/internal/models"
)

const testPepper = "unit-test-pepper-32-bytes-long!!"

func newTestCipher(t *testing.T) *CredentialCipher {
	t.Helper()
	c, err := NewCredentialCipher(testPepper)
	require.NoError(t, err)
	return c
}

func TestNewCredentialCipher_ShortPepper(t *testing.T) {
	_, err := NewCredentialCipher("short")
	assert.Error(t, err)
}

func TestCredentialCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	plaintexts := []string{
		"p@ss1234",
		"",
		"unicode ⌘ secret Ωλ",
		string(make([]byte, 4096)),
	}

	for _, plaintext := range plaintexts {
		ciphertext, err := c.Encrypt(plaintext, "user-1")
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		got, err := c.Decrypt(ciphertext, "user-1")
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCredentialCipher_WrongOwnerFails(t *testing.T) {
	c := newTestCipher(t)

	ciphertext, err := c.Encrypt("p@ss1234", "user-1")
	require.NoError(t, err)

	_, err = c.Decrypt(ciphertext, "user-2")
	assert.True(t, errors.Is(err, models.ErrDecryptionFailed))
}

func TestCredentialCipher_MalformedInput(t *testing.T) {
	c := newTestCipher(t)

	inputs := []string{
		"not base64 !!!",
		"",
		"YWJj", // valid base64, shorter than a nonce
	}

	for _, input := range inputs {
		_, err := c.Decrypt(input, "user-1")
		assert.True(t, errors.Is(err, models.ErrDecryptionFailed), "input %q", input)
	}
}

func TestCredentialCipher_NonDeterministicCiphertext(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("p@ss1234", "user-1")
	require.NoError(t, err)
	b, err := c.Encrypt("p@ss1234", "user-1")
	require.NoError(t, err)

	// Random nonces: equal plaintexts must not produce equal ciphertexts.
	assert.NotEqual(t, a, b)
}

func TestCredentialCipher_DifferentPepperFails(t *testing.T) {
	c1 := newTestCipher(t)
	c2, err := NewCredentialCipher("another-pepper-32-bytes-long!!!!")
	require.NoError(t, err)

	ciphertext, err := c1.Encrypt("p@ss1234", "user-1")
	require.NoError(t, err)

	_, err = c2.Decrypt(ciphertext, "user-1")
	assert.True(t, errors.Is(err, models.ErrDecryptionFailed))
}
