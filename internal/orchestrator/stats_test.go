package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
)

func TestGetStats(t *testing.T) {
	orch, repo, adapter := newTestOrchestrator(t)
	repo.add(activeRecord("https://a.test", db.ScanStatusRunning, "1"))
	repo.add(activeRecord("https://b.test", db.ScanStatusPaused, "2"))
	repo.add(activeRecord("https://c.test", db.ScanStatusCompleted, "3"))
	repo.add(activeRecord("https://d.test", db.ScanStatusFailed, ""))

	adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{}).
		Return([]*engine.Issue{
			{ID: "1", Severity: engine.SeverityHigh},
			{ID: "2", Severity: engine.SeverityHigh},
			{ID: "3", Severity: engine.SeverityLow},
		}, nil)

	stats, err := orch.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalScans)
	assert.Equal(t, int64(2), stats.ActiveScans)
	assert.Equal(t, int64(1), stats.ByStatus[db.ScanStatusCompleted])
	assert.Equal(t, 3, stats.TotalIssues)
	assert.Equal(t, 2, stats.BySeverity[engine.SeverityHigh])
	assert.Equal(t, 1, stats.BySeverity[engine.SeverityLow])
	assert.False(t, stats.Synthetic)
}

func TestGetStatsSyntheticFlag(t *testing.T) {
	orch, repo, adapter := newTestOrchestrator(t)
	repo.add(activeRecord("https://a.test", db.ScanStatusRunning, "1"))

	adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{}).
		Return(engine.SyntheticIssues(engine.IssueFilter{}), nil)

	stats, err := orch.GetStats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Synthetic, "synthetic findings must be flagged in the summary")
	assert.NotZero(t, stats.TotalIssues)
}

func TestGetStatsEmpty(t *testing.T) {
	orch, _, adapter := newTestOrchestrator(t)
	adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{}).
		Return(nil, nil)

	stats, err := orch.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalScans)
	assert.Zero(t, stats.TotalIssues)
}
