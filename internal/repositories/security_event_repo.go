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

// SecurityEventRepository persists the append-only audit trail. There is
// deliberately no update or delete path.
type SecurityEventRepository struct {
	db *database.DB
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func (r *SecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO security_events (id, event_type, user_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		event.ID, event.Type, event.UserID, event.Details,
		event.IPAddress, event.UserAgent, event.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// ListByUser returns a user's most recent events, newest first.
func (r *SecurityEventRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, user_id, details, ip_address, user_agent, created_at
		FROM security_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanSecurityEventRows(rows)
}

// PruneOlderThan removes events past the retention window. Retention
// pruning is the one sanctioned delete on this table and runs only from
// the background worker.
func (r *SecurityEventRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_events WHERE created_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]models.SecurityEvent, 0)
	for rows.Next() {
		var event models.SecurityEvent
		err := rows.Scan(
			&event.ID, &event.Type, &event.UserID, &event.Details,
			&event.IPAddress, &event.UserAgent, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}
