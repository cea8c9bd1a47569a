package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/models"
	"github.com/vaultkeeper/vaultd/internal/validation"
)

// CredentialRepository defines the persistence interface for encrypted
// credential records.
type CredentialRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.CredentialRecord, error)
	GetByID(ctx context.Context, id string) (*models.CredentialRecord, error)
	Create(ctx context.Context, record *models.CredentialRecord) error
	Update(ctx context.Context, record *models.CredentialRecord) error
	Delete(ctx context.Context, id, ownerID string) error
}

// sessionSource is the slice of the session gateway the credential store
// needs: whether the named user has a live session.
type sessionSource interface {
	CurrentUser(userID string) (*models.User, error)
}

// StoreState is a snapshot of one owner's observable store state.
// Records survive a failed refresh so a transient backend error does not
// blank out the list a caller is already holding.
type StoreState struct {
	Records []models.CredentialRecord
	Loading bool
	Err     error
}

// ownerStore is the cached state for a single owner. The generation
// counter discards refresh results that raced with a Reset.
type ownerStore struct {
	records    []models.CredentialRecord
	loading    bool
	lastErr    error
	generation uint64
}

// CredentialService is the credential store: the single mutation path for
// vault entries. State is partitioned per owner; every operation names
// the acting user, and one owner's cache, errors, or Reset never touch
// another's. Every write goes through encrypt-then-persist, and every
// successful write is followed by a refetch so the cached state always
// reflects the backend rather than an optimistic guess.
type CredentialService struct {
	repo    CredentialRepository
	session sessionSource
	cipher  *auth.CredentialCipher
	audit   *AuditService
	logger  *slog.Logger

	mu     sync.Mutex
	stores map[string]*ownerStore
}

func NewCredentialService(
	repo CredentialRepository,
	session sessionSource,
	cipher *auth.CredentialCipher,
	audit *AuditService,
	logger *slog.Logger,
) *CredentialService {
	return &CredentialService{
		repo:    repo,
		session: session,
		cipher:  cipher,
		audit:   audit,
		logger:  logger,
		stores:  make(map[string]*ownerStore),
	}
}

// store returns the owner's cached state, creating it on first use.
// Callers must hold s.mu.
func (s *CredentialService) store(ownerID string) *ownerStore {
	st, ok := s.stores[ownerID]
	if !ok {
		st = &ownerStore{}
		s.stores[ownerID] = st
	}
	return st
}

// Snapshot returns the owner's current observable state.
func (s *CredentialService) Snapshot(ownerID string) StoreState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.store(ownerID)
	records := make([]models.CredentialRecord, len(st.records))
	copy(records, st.records)
	return StoreState{Records: records, Loading: st.loading, Err: st.lastErr}
}

// List refreshes the owner's store from the backend and returns the
// result. On failure the previously loaded records are kept and the
// error state is set to ErrStorage.
func (s *CredentialService) List(ctx context.Context, ownerID string) ([]models.CredentialRecord, error) {
	user, err := s.session.CurrentUser(ownerID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	st := s.store(ownerID)
	st.loading = true
	gen := st.generation
	s.mu.Unlock()

	records, err := s.repo.ListByOwner(ctx, user.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	st = s.store(ownerID)
	if gen != st.generation {
		// The session ended while the fetch was in flight. Drop the
		// result instead of resurrecting a cleared store.
		return nil, models.ErrNotAuthenticated
	}

	st.loading = false
	if err != nil {
		s.logger.Error("failed to list credentials", slog.String("owner_id", user.ID), slog.Any("error", err))
		st.lastErr = models.ErrStorage
		return nil, models.ErrStorage
	}

	st.records = records
	st.lastErr = nil

	out := make([]models.CredentialRecord, len(records))
	copy(out, records)
	return out, nil
}

// Add validates and sanitizes the entry, encrypts its secret under the
// owner's key, persists it, and refetches the owner's list.
func (s *CredentialService) Add(ctx context.Context, ownerID string, entry models.CredentialEntry) (*models.CredentialRecord, error) {
	user, err := s.session.CurrentUser(ownerID)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateCredentialEntry(entry).Err(); err != nil {
		return nil, err
	}

	ciphertext, err := s.cipher.Encrypt(entry.Secret, user.ID)
	if err != nil {
		s.logger.Error("failed to encrypt credential secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	record := &models.CredentialRecord{
		OwnerID:          user.ID,
		Title:            validation.Sanitize(entry.Title),
		Username:         validation.Sanitize(entry.Username),
		SecretCiphertext: ciphertext,
		Site:             sanitizeOptional(entry.Site),
		Notes:            sanitizeOptional(entry.Notes),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error("failed to create credential", slog.Any("error", err))
		return nil, models.ErrStorage
	}

	s.refresh(ctx, user.ID)
	return record, nil
}

// Update applies a partial patch to an owned record. A patch carrying a
// new secret re-encrypts it; all other fields pass through sanitization.
func (s *CredentialService) Update(ctx context.Context, ownerID, id string, patch models.CredentialPatch) (*models.CredentialRecord, error) {
	user, err := s.session.CurrentUser(ownerID)
	if err != nil {
		return nil, err
	}

	record, err := s.ownedRecord(ctx, id, user.ID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := validation.Sanitize(*patch.Title)
		if title == "" {
			return nil, &models.ValidationError{Errors: []string{"title is required"}}
		}
		record.Title = title
	}
	if patch.Username != nil {
		record.Username = validation.Sanitize(*patch.Username)
	}
	if patch.Site != nil {
		site := validation.Sanitize(*patch.Site)
		if res := validation.ValidateSite(site); !res.IsValid {
			return nil, res.Err()
		}
		record.Site = optional(site)
	}
	if patch.Notes != nil {
		record.Notes = optional(validation.Sanitize(*patch.Notes))
	}
	if patch.Secret != nil {
		if *patch.Secret == "" {
			return nil, &models.ValidationError{Errors: []string{"password is required"}}
		}
		ciphertext, err := s.cipher.Encrypt(*patch.Secret, user.ID)
		if err != nil {
			return nil, models.ErrInternalServer
		}
		record.SecretCiphertext = ciphertext
	}

	if err := s.repo.Update(ctx, record); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update credential", slog.String("credential_id", id), slog.Any("error", err))
		return nil, models.ErrStorage
	}

	s.refresh(ctx, user.ID)
	return record, nil
}

// Delete removes an owned record and refetches the owner's list.
func (s *CredentialService) Delete(ctx context.Context, ownerID, id string) error {
	user, err := s.session.CurrentUser(ownerID)
	if err != nil {
		return err
	}

	if _, err := s.ownedRecord(ctx, id, user.ID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id, user.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete credential", slog.String("credential_id", id), slog.Any("error", err))
		return models.ErrStorage
	}

	s.refresh(ctx, user.ID)
	return nil
}

// RevealSecret decrypts an owned record's secret and records a
// password_view event.
func (s *CredentialService) RevealSecret(ctx context.Context, ownerID, id string) (string, error) {
	return s.decryptSecret(ctx, ownerID, id, models.EventPasswordView)
}

// CopySecret decrypts an owned record's secret for clipboard use and
// records a password_copy event.
func (s *CredentialService) CopySecret(ctx context.Context, ownerID, id string) (string, error) {
	return s.decryptSecret(ctx, ownerID, id, models.EventPasswordCopy)
}

func (s *CredentialService) decryptSecret(ctx context.Context, ownerID, id, eventType string) (string, error) {
	user, err := s.session.CurrentUser(ownerID)
	if err != nil {
		return "", err
	}

	record, err := s.ownedRecord(ctx, id, user.ID)
	if err != nil {
		return "", err
	}

	plaintext, err := s.cipher.Decrypt(record.SecretCiphertext, user.ID)
	if err != nil {
		s.logger.Error("failed to decrypt credential secret",
			slog.String("credential_id", id), slog.Any("error", err))
		return "", models.ErrDecryptionFailed
	}

	s.audit.Record(models.SecurityEvent{
		Type:    eventType,
		UserID:  &user.ID,
		Details: "credential " + id,
	})
	return plaintext, nil
}

// Reset drops one owner's cached state. The logout hook calls it so
// plaintext never outlives the session that decrypted it. Other owners'
// stores are untouched.
func (s *CredentialService) Reset(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.store(ownerID)
	st.generation++
	st.records = nil
	st.loading = false
	st.lastErr = nil
}

func (s *CredentialService) ownedRecord(ctx context.Context, id, ownerID string) (*models.CredentialRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrStorage
	}
	if record.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	return record, nil
}

// refresh refetches the owner's records after a successful write. A
// refresh failure only marks the error state; the write itself already
// succeeded.
func (s *CredentialService) refresh(ctx context.Context, ownerID string) {
	s.mu.Lock()
	gen := s.store(ownerID).generation
	s.mu.Unlock()

	records, err := s.repo.ListByOwner(ctx, ownerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.store(ownerID)
	if gen != st.generation {
		return
	}
	if err != nil {
		s.logger.Warn("post-write refresh failed", slog.Any("error", err))
		st.lastErr = models.ErrStorage
		return
	}
	st.records = records
	st.lastErr = nil
}

func sanitizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	return optional(validation.Sanitize(*v))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
