package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vaultkeeper/vaultd/internal/models"
	pkglogger "github.com/vaultkeeper/vaultd/pkg/logger"
)

// SecurityEventRepository defines the persistence interface for the
// append-only audit trail.
type SecurityEventRepository interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error)
}

// AuditService records security events with a dual-write pattern: an
// immediate slog line for operators plus an asynchronous database append.
// Recording is fire-and-forget; a failed append is logged and dropped and
// never blocks or fails the action being audited.
type AuditService struct {
	repo        SecurityEventRepository
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger

	appendTimeout time.Duration
	wg            sync.WaitGroup
}

func NewAuditService(repo SecurityEventRepository, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:          repo,
		auditLogger:   auditLogger,
		logger:        logger,
		appendTimeout: 5 * time.Second,
	}
}

// Record appends one security event. It returns immediately; the database
// write happens in the background with its own timeout so a slow or dead
// backend cannot stall a login.
func (s *AuditService) Record(event models.SecurityEvent) {
	success := event.Type != models.EventLoginFailure

	userID := ""
	if event.UserID != nil {
		userID = *event.UserID
	}
	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: event.Type,
		UserID:    userID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Success:   success,
		FailureReason: func() string {
			if success {
				return ""
			}
			return event.Details
		}(),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.appendTimeout)
		defer cancel()

		if err := s.repo.Append(ctx, &event); err != nil {
			// Swallowed on purpose: audit writes never surface to users.
			s.logger.Debug("failed to persist security event",
				slog.String("event_type", event.Type),
				slog.Any("error", err))
		}
	}()
}

// ListRecent returns a user's latest events, newest first.
func (s *AuditService) ListRecent(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	events, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, models.ErrStorage
	}
	return events, nil
}

// Flush waits for in-flight appends. Used in tests and on shutdown.
func (s *AuditService) Flush() {
	s.wg.Wait()
}
