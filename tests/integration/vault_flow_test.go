package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/models"
	"github.com/vaultkeeper/vaultd/internal/services"
	pkglogger "github.com/vaultkeeper/vaultd/pkg/logger"
)

func setupSuite(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Teardown(context.Background())
	})
	return db
}

func TestUserRepository_RoundTrip(t *testing.T) {
	db := setupSuite(t)
	ctx := context.Background()
	userRepo, _, _ := InitializeRepositories(db.DB)

	user, err := SeedUser(ctx, userRepo, "alice@example.com", "SecurePass1!")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	// Lookup is case-insensitive on email.
	got, err := userRepo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.TwoFactorDisabled, got.TwoFactorStatus())

	_, err = userRepo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Duplicate email maps to conflict.
	err = userRepo.Create(ctx, &models.User{Email: "alice@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUserRepository_TwoFactorLifecycle(t *testing.T) {
	db := setupSuite(t)
	ctx := context.Background()
	userRepo, _, _ := InitializeRepositories(db.DB)

	user, err := SeedUser(ctx, userRepo, "bob@example.com", "SecurePass1!")
	require.NoError(t, err)

	totpMgr := auth.NewTOTPManager("VaultKeeper")
	codes, err := totpMgr.GenerateBackupCodes(8)
	require.NoError(t, err)
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = totpMgr.HashBackupCode(c)
	}

	require.NoError(t, userRepo.SetTwoFactorSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", hashes))

	got, err := userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPending, got.TwoFactorStatus())
	assert.Len(t, got.TwoFactorBackupCodes, 8)

	require.NoError(t, userRepo.EnableTwoFactor(ctx, user.ID))
	got, err = userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorEnabled, got.TwoFactorStatus())

	// Backup codes consume exactly once.
	require.NoError(t, userRepo.ConsumeBackupCode(ctx, user.ID, hashes[0]))
	err = userRepo.ConsumeBackupCode(ctx, user.ID, hashes[0])
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err = userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, got.TwoFactorBackupCodes, 7)

	require.NoError(t, userRepo.DisableTwoFactor(ctx, user.ID))
	got, err = userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorDisabled, got.TwoFactorStatus())
	assert.Nil(t, got.TwoFactorSecret)
	assert.Empty(t, got.TwoFactorBackupCodes)
}

func TestCredentialFlow_EncryptPersistDecrypt(t *testing.T) {
	db := setupSuite(t)
	ctx := context.Background()
	userRepo, credentialRepo, eventRepo := InitializeRepositories(db.DB)

	owner, err := SeedUser(ctx, userRepo, "carol@example.com", "SecurePass1!")
	require.NoError(t, err)

	logger := slog.Default()
	audit := services.NewAuditService(eventRepo, pkglogger.NewAuditLogger(logger), logger)
	cipher, err := auth.NewCredentialCipher("integration-pepper-0123456789ab")
	require.NoError(t, err)

	store := services.NewCredentialService(credentialRepo, fixedSession{owner}, cipher, audit, logger)

	site := "https://example.com"
	record, err := store.Add(ctx, owner.ID, models.CredentialEntry{
		Title:    "Example",
		Username: "carol",
		Secret:   "hunter2!",
		Site:     &site,
	})
	require.NoError(t, err)

	// Ciphertext on disk, plaintext only through reveal.
	raw, err := credentialRepo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.NotContains(t, raw.SecretCiphertext, "hunter2")

	secret, err := store.RevealSecret(ctx, owner.ID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2!", secret)

	// Update, then list reflects the backend state.
	newTitle := "Example (work)"
	_, err = store.Update(ctx, owner.ID, record.ID, models.CredentialPatch{Title: &newTitle})
	require.NoError(t, err)

	records, err := store.List(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Example (work)", records[0].Title)

	require.NoError(t, store.Delete(ctx, owner.ID, record.ID))
	records, err = store.List(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	// The reveal left an audit trail.
	audit.Flush()
	events, err := eventRepo.ListByUser(ctx, owner.ID, 50)
	require.NoError(t, err)
	var sawView bool
	for _, e := range events {
		if e.Type == models.EventPasswordView {
			sawView = true
		}
	}
	assert.True(t, sawView)
}

func TestCredentialRepository_OwnershipScoping(t *testing.T) {
	db := setupSuite(t)
	ctx := context.Background()
	userRepo, credentialRepo, _ := InitializeRepositories(db.DB)

	alice, err := SeedUser(ctx, userRepo, "alice2@example.com", "SecurePass1!")
	require.NoError(t, err)
	mallory, err := SeedUser(ctx, userRepo, "mallory@example.com", "SecurePass1!")
	require.NoError(t, err)

	record := &models.CredentialRecord{
		OwnerID:          alice.ID,
		Title:            "Alice's entry",
		Username:         "alice",
		SecretCiphertext: "opaque",
	}
	require.NoError(t, credentialRepo.Create(ctx, record))

	// Deletes are scoped by owner in the SQL itself.
	err = credentialRepo.Delete(ctx, record.ID, mallory.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	records, err := credentialRepo.ListByOwner(ctx, mallory.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, credentialRepo.Delete(ctx, record.ID, alice.ID))
}

func TestSecurityEventRepository_AppendListPrune(t *testing.T) {
	db := setupSuite(t)
	ctx := context.Background()
	userRepo, _, eventRepo := InitializeRepositories(db.DB)

	user, err := SeedUser(ctx, userRepo, "dave@example.com", "SecurePass1!")
	require.NoError(t, err)

	old := &models.SecurityEvent{
		Type:      models.EventLoginSuccess,
		UserID:    &user.ID,
		CreatedAt: time.Now().UTC().Add(-100 * 24 * time.Hour),
	}
	recent := &models.SecurityEvent{
		Type:   models.EventPasswordChange,
		UserID: &user.ID,
	}
	require.NoError(t, eventRepo.Append(ctx, old))
	require.NoError(t, eventRepo.Append(ctx, recent))

	events, err := eventRepo.ListByUser(ctx, user.ID, 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, models.EventPasswordChange, events[0].Type)

	pruned, err := eventRepo.PruneOlderThan(ctx, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	events, err = eventRepo.ListByUser(ctx, user.ID, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPasswordChange, events[0].Type)
}

// fixedSession pins the credential store to one owner for repository
// level tests.
type fixedSession struct {
	user *models.User
}

func (s fixedSession) CurrentUser(userID string) (*models.User, error) {
	if userID != s.user.ID {
		return nil, models.ErrNotAuthenticated
	}
	return s.user, nil
}
