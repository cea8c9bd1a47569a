package models

import "time"

// CredentialRecord is one stored site/username/secret entry. The secret is
// encrypted before it ever reaches a repository; SecretCiphertext is never
// plaintext and OwnerID always equals the session user that created it.
type CredentialRecord struct {
	ID               string
	OwnerID          string
	Title            string
	Username         string
	SecretCiphertext string
	Site             *string
	Notes            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CredentialEntry is the plaintext input for Add. The secret is encrypted
// by the store before persistence.
type CredentialEntry struct {
	Title    string
	Username string
	Secret   string
	Site     *string
	Notes    *string
}

// CredentialPatch is a partial update. Nil fields are left untouched;
// Secret, when present, is re-encrypted by the store.
type CredentialPatch struct {
	Title    *string
	Username *string
	Secret   *string
	Site     *string
	Notes    *string
}
