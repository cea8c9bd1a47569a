package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vaultkeeper/vaultd/internal/database"
	"github.com/vaultkeeper/vaultd/internal/models"
)

type CredentialRepository struct {
	db *database.DB
}

func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `id, owner_id, title, username, secret_ciphertext, site, notes, created_at, updated_at`

func scanCredentialRow(scanner rowScanner) (*models.CredentialRecord, error) {
	var record models.CredentialRecord
	err := scanner.Scan(
		&record.ID, &record.OwnerID, &record.Title, &record.Username,
		&record.SecretCiphertext, &record.Site, &record.Notes,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &record, nil
}

func scanCredentialRows(rows pgx.Rows) ([]models.CredentialRecord, error) {
	defer rows.Close()

	records := make([]models.CredentialRecord, 0)
	for rows.Next() {
		record, err := scanCredentialRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// ListByOwner returns all of an owner's records, newest created first.
func (r *CredentialRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.CredentialRecord, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanCredentialRows(rows)
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.CredentialRecord, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	return scanCredentialRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *CredentialRepository) Create(ctx context.Context, record *models.CredentialRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO credentials (id, owner_id, title, username, secret_ciphertext, site, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		record.ID, record.OwnerID, record.Title, record.Username,
		record.SecretCiphertext, record.Site, record.Notes,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// Update rewrites the mutable fields and bumps updated_at. The owner_id
// predicate backstops the service-level ownership check.
func (r *CredentialRepository) Update(ctx context.Context, record *models.CredentialRecord) error {
	record.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE credentials
		SET title = $3, username = $4, secret_ciphertext = $5, site = $6, notes = $7, updated_at = $8
		WHERE id = $1 AND owner_id = $2
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		record.ID, record.OwnerID, record.Title, record.Username,
		record.SecretCiphertext, record.Site, record.Notes, record.UpdatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, id, ownerID string) error {
	query := `DELETE FROM credentials WHERE id = $1 AND owner_id = $2`
	tag, err := r.db.Pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
