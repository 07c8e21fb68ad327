package orchestrator

import (
	"context"

	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
)

// Stats summarizes scan records by status and findings by severity.
type Stats struct {
	TotalScans  int64                    `json:"total_scans"`
	ActiveScans int64                    `json:"active_scans"`
	ByStatus    map[db.ScanStatus]int64  `json:"by_status"`
	TotalIssues int                      `json:"total_issues"`
	BySeverity  map[engine.Severity]int  `json:"by_severity"`
	Synthetic   bool                     `json:"synthetic,omitempty"`
}

// GetStats builds a dashboard summary. Scan counts come from the
// repository; issue counts come from the engine and degrade to synthetic
// data with the rest of the read path.
func (o *Orchestrator) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := o.repo.CountScansByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus:   counts,
		BySeverity: make(map[engine.Severity]int),
	}
	for status, count := range counts {
		stats.TotalScans += count
		if status == db.ScanStatusRunning || status == db.ScanStatusPaused {
			stats.ActiveScans += count
		}
	}

	issues, err := o.adapter.ListIssues(ctx, engine.IssueFilter{})
	if err != nil {
		return nil, err
	}
	stats.TotalIssues = len(issues)
	for _, issue := range issues {
		stats.BySeverity[issue.Severity]++
		if issue.Synthetic {
			stats.Synthetic = true
		}
	}

	return stats, nil
}
