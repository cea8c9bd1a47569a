package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vaultkeeper/vaultd/internal/database"
	"github.com/vaultkeeper/vaultd/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string

	err := scanner.Scan(
		&user.ID, &user.Email, &passwordHash, &user.EmailVerified,
		&user.TwoFactorEnabled, &user.TwoFactorSecret,
		pq.Array(&user.TwoFactorBackupCodes),
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}

	return &user, nil
}

const userColumns = `id, email, password_hash, email_verified, two_factor_enabled, two_factor_secret, two_factor_backup_codes, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// Create inserts a new profile. 2FA starts disabled with no secret.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, password_hash, email_verified, two_factor_enabled, two_factor_secret, two_factor_backup_codes, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.EmailVerified,
		user.TwoFactorEnabled, user.TwoFactorSecret,
		pq.Array(user.TwoFactorBackupCodes),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetTwoFactorSecret stores a pending secret. The enabled flag stays false
// until the secret is verified, so an abandoned setup cannot lock the
// account.
func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, id, secret string, backupCodeHashes []string) error {
	query := `
		UPDATE users
		SET two_factor_secret = $2, two_factor_enabled = FALSE, two_factor_backup_codes = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, secret, pq.Array(backupCodeHashes))
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// EnableTwoFactor flips the enabled flag for a user with a pending secret.
func (r *UserRepository) EnableTwoFactor(ctx context.Context, id string) error {
	query := `
		UPDATE users SET two_factor_enabled = TRUE, updated_at = NOW()
		WHERE id = $1 AND two_factor_secret IS NOT NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DisableTwoFactor clears the flag, the secret, and any backup codes.
func (r *UserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET two_factor_enabled = FALSE, two_factor_secret = NULL, two_factor_backup_codes = '{}', updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ConsumeBackupCode removes one backup-code hash if present. Returns
// ErrNotFound when the hash does not match an unused code.
func (r *UserRepository) ConsumeBackupCode(ctx context.Context, id, codeHash string) error {
	query := `
		UPDATE users
		SET two_factor_backup_codes = array_remove(two_factor_backup_codes, $2), updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(two_factor_backup_codes)
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, codeHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	query := `UPDATE users SET email_verified = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, verified)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}
