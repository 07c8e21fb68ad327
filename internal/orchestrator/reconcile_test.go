package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
)

// recordingSink captures broadcast updates for assertions.
type recordingSink struct {
	mu      sync.Mutex
	updates []ScanUpdate
}

func (s *recordingSink) BroadcastScanUpdate(update ScanUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
}

func (s *recordingSink) all() []ScanUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScanUpdate(nil), s.updates...)
}

const pollTimeout = time.Second

func TestReconcileOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("completion is folded forward", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "7", Percent: 100, State: engine.StateCompleted}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))

		stored := repo.get(record.ID)
		assert.Equal(t, db.ScanStatusCompleted, stored.Status)
		require.NotNil(t, stored.CompletedAt)
		assert.Equal(t, fixedNow, *stored.CompletedAt)
	})

	t.Run("engine stop is folded forward", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "7", Percent: 30, State: engine.StateStopped}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))
		assert.Equal(t, db.ScanStatusStopped, repo.get(record.ID).Status)
	})

	t.Run("pause observed engine-side", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "7", Percent: 50, State: engine.StatePaused}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))
		assert.Equal(t, db.ScanStatusPaused, repo.get(record.ID).Status)
	})

	t.Run("synthetic progress never persists", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "7", Percent: 99, State: engine.StateCompleted, Synthetic: true}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))

		stored := repo.get(record.ID)
		assert.Equal(t, db.ScanStatusRunning, stored.Status, "fallback data is not authoritative")
		assert.Nil(t, stored.CompletedAt)
	})

	t.Run("unknown state retains status", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusPaused, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "7", Percent: 0, State: engine.StateUnknown}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))
		assert.Equal(t, db.ScanStatusPaused, repo.get(record.ID).Status)
	})

	t.Run("correlation id backfill from matching listing", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "")
		repo.add(record)
		adapter.EXPECT().ListScans(gomock.Any()).Return([]*engine.Scan{
			{EngineScanID: "42", TargetURL: "https://example.com", State: engine.StateRunning, Percent: 10},
		}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))

		stored := repo.get(record.ID)
		require.NotNil(t, stored.EngineScanID)
		assert.Equal(t, "42", *stored.EngineScanID)
	})

	t.Run("backfill requires a target match", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "")
		repo.add(record)
		adapter.EXPECT().ListScans(gomock.Any()).Return([]*engine.Scan{
			{EngineScanID: "42", TargetURL: "https://other.test", State: engine.StateCompleted, Percent: 100},
		}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))

		stored := repo.get(record.ID)
		assert.Nil(t, stored.EngineScanID, "another target's scan id must not be bound")
		assert.Equal(t, db.ScanStatusRunning, stored.Status)
	})

	t.Run("synthetic listing never backfills", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "")
		repo.add(record)
		adapter.EXPECT().ListScans(gomock.Any()).Return(engine.SyntheticScans(), nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))

		stored := repo.get(record.ID)
		assert.Nil(t, stored.EngineScanID, "fabricated ids are not correlation ids")
		assert.Equal(t, db.ScanStatusRunning, stored.Status)
	})

	t.Run("existing correlation id is never overwritten", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		record := activeRecord("https://example.com", db.ScanStatusRunning, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "99", Percent: 10, State: engine.StateRunning}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))
		assert.Equal(t, "7", *repo.get(record.ID).EngineScanID)
	})

	t.Run("per-record failures are isolated", func(t *testing.T) {
		orch, repo, adapter := newTestOrchestrator(t)
		failing := activeRecord("https://a.test", db.ScanStatusRunning, "1")
		healthy := activeRecord("https://b.test", db.ScanStatusRunning, "2")
		healthy.CreatedAt = failing.CreatedAt.Add(time.Minute)
		repo.add(failing)
		repo.add(healthy)

		adapter.EXPECT().Progress(gomock.Any(), "1").
			Return(nil, context.DeadlineExceeded)
		adapter.EXPECT().Progress(gomock.Any(), "2").
			Return(&engine.Progress{EngineScanID: "2", Percent: 100, State: engine.StateCompleted}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))
		assert.Equal(t, db.ScanStatusRunning, repo.get(failing.ID).Status)
		assert.Equal(t, db.ScanStatusCompleted, repo.get(healthy.ID).Status)
	})

	t.Run("broadcasts to sink", func(t *testing.T) {
		sink := &recordingSink{}
		orch, repo, adapter := newTestOrchestrator(t, WithProgressSink(sink))
		record := activeRecord("https://example.com", db.ScanStatusRunning, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "7", Percent: 75, State: engine.StateRunning}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))

		updates := sink.all()
		require.Len(t, updates, 1)
		assert.Equal(t, record.ID, updates[0].ScanID)
		assert.Equal(t, 75, updates[0].Progress)
		assert.Equal(t, "https://example.com", updates[0].TargetURL)
		assert.False(t, updates[0].Synthetic)
	})

	t.Run("synthetic broadcasts are tagged", func(t *testing.T) {
		sink := &recordingSink{}
		orch, repo, adapter := newTestOrchestrator(t, WithProgressSink(sink))
		record := activeRecord("https://example.com", db.ScanStatusRunning, "7")
		repo.add(record)
		adapter.EXPECT().Progress(gomock.Any(), "7").
			Return(&engine.Progress{EngineScanID: "7", Percent: 5, State: engine.StateRunning, Synthetic: true}, nil)

		require.NoError(t, orch.ReconcileOnce(ctx, pollTimeout))

		updates := sink.all()
		require.Len(t, updates, 1)
		assert.True(t, updates[0].Synthetic)
	})

	t.Run("canceled context aborts the pass", func(t *testing.T) {
		orch, repo, _ := newTestOrchestrator(t)
		repo.add(activeRecord("https://example.com", db.ScanStatusRunning, "7"))
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		err := orch.ReconcileOnce(canceled, pollTimeout)
		assert.Error(t, err)
	})
}

func TestApplyProgressIdempotent(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	completedAt := fixedNow.Add(-time.Hour)
	record := &db.ScanRecord{
		ID:          uuid.New(),
		TargetURL:   "https://example.com",
		Status:      db.ScanStatusCompleted,
		CompletedAt: &completedAt,
	}

	changed := orch.applyProgress(record, &engine.Progress{State: engine.StateCompleted, Percent: 100})
	assert.False(t, changed, "re-applying completion to a terminal record is a no-op")
	assert.Equal(t, completedAt, *record.CompletedAt)
}

func TestReconcilerLifecycle(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)

	reconciler := NewReconciler(orch, ReconcileConfig{Interval: time.Hour, PollTimeout: time.Second})
	require.NoError(t, reconciler.Start())
	reconciler.Stop()
}

func TestDefaultReconcileConfig(t *testing.T) {
	cfg := DefaultReconcileConfig()
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.PollTimeout)
	assert.Less(t, cfg.PollTimeout, cfg.Interval)
}

func TestNewReconcilerDefaults(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)

	reconciler := NewReconciler(orch, ReconcileConfig{})
	assert.Equal(t, defaultReconcileInterval, reconciler.config.Interval)
	assert.Equal(t, defaultPollTimeout, reconciler.config.PollTimeout)
}
