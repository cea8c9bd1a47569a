package services

import (
	"context"
	"sync"
	"time"

	"github.com/vaultkeeper/vaultd/internal/models"
	pkgauth "github.com/vaultkeeper/vaultd/pkg/auth"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc             func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc          func(ctx context.Context, email string) (*models.User, error)
	CreateFunc              func(ctx context.Context, user *models.User) error
	UpdatePasswordHashFunc  func(ctx context.Context, id, passwordHash string) error
	SetTwoFactorSecretFunc  func(ctx context.Context, id, secret string, backupCodeHashes []string) error
	EnableTwoFactorFunc     func(ctx context.Context, id string) error
	DisableTwoFactorFunc    func(ctx context.Context, id string) error
	ConsumeBackupCodeFunc   func(ctx context.Context, id, codeHash string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.ID = "user_mock"
	return nil
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) SetTwoFactorSecret(ctx context.Context, id, secret string, backupCodeHashes []string) error {
	if m.SetTwoFactorSecretFunc != nil {
		return m.SetTwoFactorSecretFunc(ctx, id, secret, backupCodeHashes)
	}
	return nil
}

func (m *MockUserRepository) EnableTwoFactor(ctx context.Context, id string) error {
	if m.EnableTwoFactorFunc != nil {
		return m.EnableTwoFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	if m.DisableTwoFactorFunc != nil {
		return m.DisableTwoFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) ConsumeBackupCode(ctx context.Context, id, codeHash string) error {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, id, codeHash)
	}
	return models.ErrNotFound
}

// MockCredentialRepository implements CredentialRepository for testing
type MockCredentialRepository struct {
	ListByOwnerFunc func(ctx context.Context, ownerID string) ([]models.CredentialRecord, error)
	GetByIDFunc     func(ctx context.Context, id string) (*models.CredentialRecord, error)
	CreateFunc      func(ctx context.Context, record *models.CredentialRecord) error
	UpdateFunc      func(ctx context.Context, record *models.CredentialRecord) error
	DeleteFunc      func(ctx context.Context, id, ownerID string) error
}

func (m *MockCredentialRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.CredentialRecord, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID)
	}
	return []models.CredentialRecord{}, nil
}

func (m *MockCredentialRepository) GetByID(ctx context.Context, id string) (*models.CredentialRecord, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialRepository) Create(ctx context.Context, record *models.CredentialRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, record)
	}
	record.ID = "cred_mock"
	return nil
}

func (m *MockCredentialRepository) Update(ctx context.Context, record *models.CredentialRecord) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, record)
	}
	return nil
}

func (m *MockCredentialRepository) Delete(ctx context.Context, id, ownerID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, ownerID)
	}
	return nil
}

// MockSecurityEventRepository implements SecurityEventRepository for
// testing and records appended events for assertions.
type MockSecurityEventRepository struct {
	AppendFunc     func(ctx context.Context, event *models.SecurityEvent) error
	ListByUserFunc func(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error)

	mu     sync.Mutex
	events []models.SecurityEvent
}

func (m *MockSecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *MockSecurityEventRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SecurityEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

// Recorded returns a copy of every event appended so far.
func (m *MockSecurityEventRepository) Recorded() []models.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SecurityEvent, len(m.events))
	copy(out, m.events)
	return out
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, token string) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string) error
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token)
	}
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token)
	}
	return nil
}

// NewTestUser builds a user with a real bcrypt hash for the given
// password so ComparePassword behaves as in production.
func NewTestUser(id, email, password string) *models.User {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}
