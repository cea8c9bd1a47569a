package background

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockPruner struct {
	calls  chan time.Time
	err    error
	pruned int64
}

func (m *mockPruner) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.calls <- cutoff
	return m.pruned, m.err
}

func TestRetentionManager_PrunesOnStartupAndInterval(t *testing.T) {
	pruner := &mockPruner{calls: make(chan time.Time, 10), pruned: 3}
	rm := NewRetentionManager(pruner, slog.Default(), 20*time.Millisecond, 90*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rm.Start(ctx)
	defer rm.Stop()

	// Startup pass.
	select {
	case cutoff := <-pruner.calls:
		assert.WithinDuration(t, time.Now().UTC().Add(-90*24*time.Hour), cutoff, time.Minute)
	case <-time.After(time.Second):
		t.Fatal("no prune on startup")
	}

	// At least one ticker pass.
	select {
	case <-pruner.calls:
	case <-time.After(time.Second):
		t.Fatal("no prune on interval")
	}
}

func TestRetentionManager_StopEndsLoop(t *testing.T) {
	pruner := &mockPruner{calls: make(chan time.Time, 100)}
	rm := NewRetentionManager(pruner, slog.Default(), time.Hour, time.Hour)

	done := make(chan struct{})
	go func() {
		rm.Start(context.Background())
		close(done)
	}()

	<-pruner.calls
	rm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention manager did not stop")
	}
}
