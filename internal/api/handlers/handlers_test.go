package handlers

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"github.com/scandash/scandash/internal/api/middleware"
	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine/mocks"
	"github.com/scandash/scandash/internal/errors"
	"github.com/scandash/scandash/internal/orchestrator"
)

// memRepo is an in-memory orchestrator.Repository for handler tests.
type memRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*db.ScanRecord
}

var _ orchestrator.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[uuid.UUID]*db.ScanRecord)}
}

func (m *memRepo) add(record *db.ScanRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *record
	m.records[record.ID] = &clone
}

func (m *memRepo) InsertScan(_ context.Context, record *db.ScanRecord) error {
	m.add(record)
	return nil
}

func (m *memRepo) UpdateScan(_ context.Context, record *db.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; !ok {
		return errors.ErrScanNotFound(record.ID.String())
	}
	clone := *record
	m.records[record.ID] = &clone
	return nil
}

func (m *memRepo) GetScan(_ context.Context, id uuid.UUID) (*db.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[id]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, errors.ErrScanNotFound(id.String())
}

func (m *memRepo) FindScanByTargetAndStatuses(
	_ context.Context, targetURL string, statuses []db.ScanStatus,
) (*db.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.TargetURL != targetURL {
			continue
		}
		for _, status := range statuses {
			if record.Status == status {
				clone := *record
				return &clone, nil
			}
		}
	}
	return nil, nil
}

func (m *memRepo) FindScanByTargetNameStatus(
	_ context.Context, targetURL, name string, status db.ScanStatus,
) (*db.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.TargetURL == targetURL && record.Name == name && record.Status == status {
			clone := *record
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListScansByStatuses(_ context.Context, statuses []db.ScanStatus) ([]*db.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*db.ScanRecord
	for _, record := range m.records {
		for _, status := range statuses {
			if record.Status == status {
				clone := *record
				records = append(records, &clone)
			}
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

func (m *memRepo) ListScans(_ context.Context) ([]*db.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*db.ScanRecord
	for _, record := range m.records {
		clone := *record
		records = append(records, &clone)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}

func (m *memRepo) CountScansByStatus(_ context.Context) (map[db.ScanStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[db.ScanStatus]int64)
	for _, record := range m.records {
		counts[record.Status]++
	}
	return counts, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHandlerFixture builds an orchestrator over the in-memory repository
// and a mock engine adapter.
func newHandlerFixture(t *testing.T) (*orchestrator.Orchestrator, *memRepo, *mocks.MockAdapter) {
	t.Helper()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	repo := newMemRepo()
	orch := orchestrator.New(repo, adapter, nil, nil)
	return orch, repo, adapter
}

func storedScan(repo *memRepo, target string, status db.ScanStatus, engineScanID string) *db.ScanRecord {
	record := &db.ScanRecord{
		ID:        uuid.New(),
		Name:      "Security Scan",
		TargetURL: target,
		Status:    status,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if engineScanID != "" {
		record.EngineScanID = &engineScanID
	}
	repo.add(record)
	return record
}

// withCaller attaches an authenticated caller the way the auth middleware
// does.
func withCaller(ctx context.Context) context.Context {
	caller := &auth.Caller{SubjectID: "operator-1", Email: "ops@example.com"}
	return context.WithValue(ctx, middleware.CallerKey, caller)
}
