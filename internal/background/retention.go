package background

import (
	"context"
	"log/slog"
	"time"
)

// EventPruner is the slice of the security event repository the worker
// needs.
type EventPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionManager periodically prunes security events past the
// retention window.
type RetentionManager struct {
	events    EventPruner
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

func NewRetentionManager(events EventPruner, logger *slog.Logger, interval, retention time.Duration) *RetentionManager {
	return &RetentionManager{
		events:    events,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the pruning loop until Stop is called or the context ends.
// One pass runs immediately on startup.
func (rm *RetentionManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	rm.runPrune(ctx)

	for {
		select {
		case <-ticker.C:
			rm.runPrune(ctx)
		case <-rm.stopCh:
			rm.logger.Info("retention manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("retention manager context cancelled")
			return
		}
	}
}

func (rm *RetentionManager) runPrune(ctx context.Context) {
	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-rm.retention)
	rowsDeleted, err := rm.events.PruneOlderThan(pruneCtx, cutoff)
	if err != nil {
		rm.logger.Error("failed to prune security events", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		rm.logger.Info("security event retention prune completed",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the worker to exit.
func (rm *RetentionManager) Stop() {
	close(rm.stopCh)
}
