package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"github.com/vaultkeeper/vaultd/internal/models"
)

const credentialKeyInfo = "vaultkeeper/credential-key/v1"

// CredentialCipher encrypts credential secrets before they reach storage.
//
// The per-user key is derived from the owner's user id and a server-held
// pepper. This is a confidentiality measure against the storage operator,
// not access control: anyone holding both the user id and the pepper can
// derive the key. It is deliberately not derived from the login password,
// so a password change never re-encrypts the vault.
type CredentialCipher struct {
	pepper []byte
}

// NewCredentialCipher creates a cipher with a server-held pepper.
// The pepper must be at least 16 bytes.
func NewCredentialCipher(pepper string) (*CredentialCipher, error) {
	if len(pepper) < 16 {
		return nil, fmt.Errorf("cipher pepper must be at least 16 bytes, got %d", len(pepper))
	}
	return &CredentialCipher{pepper: []byte(pepper)}, nil
}

// deriveKey produces the 32-byte AES-256 key for one owner via HKDF-SHA256.
func (c *CredentialCipher) deriveKey(ownerID string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(ownerID), c.pepper, []byte(credentialKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive credential key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under the owner's key with AES-256-GCM and
// returns base64(nonce || ciphertext).
func (c *CredentialCipher) Encrypt(plaintext, ownerID string) (string, error) {
	gcm, err := c.aead(ownerID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed input, a truncated buffer, or a
// ciphertext sealed under a different owner's key all return
// models.ErrDecryptionFailed; callers render a placeholder, never a panic.
func (c *CredentialCipher) Decrypt(ciphertext, ownerID string) (string, error) {
	gcm, err := c.aead(ownerID)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", models.ErrDecryptionFailed
	}

	if len(raw) < gcm.NonceSize() {
		return "", models.ErrDecryptionFailed
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", models.ErrDecryptionFailed
	}

	return string(plaintext), nil
}

func (c *CredentialCipher) aead(ownerID string) (cipher.AEAD, error) {
	key, err := c.deriveKey(ownerID)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}
