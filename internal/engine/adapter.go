// Package engine provides the adapter between scandash and the external
// scanning engine. It translates the engine's wire vocabulary (status
// names, risk levels, polling endpoints) into this system's scan, issue,
// and progress types, and isolates every engine-specific quirk behind a
// single interface.
package engine

import (
	"context"
	"time"
)

// Severity is the normalized issue severity vocabulary.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	default:
		return false
	}
}

// Confidence is the normalized issue confidence vocabulary.
type Confidence string

const (
	ConfidenceCertain   Confidence = "certain"
	ConfidenceFirm      Confidence = "firm"
	ConfidenceTentative Confidence = "tentative"
)

// State is the engine-reported scan state after normalization.
type State string

const (
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateUnknown   State = "unknown"
)

// StartResult is the outcome of asking the engine to start a scan.
// Accepted is false when the adapter had to synthesize the correlation id
// because the engine never acknowledged the scan.
type StartResult struct {
	EngineScanID string `json:"engine_scan_id"`
	Accepted     bool   `json:"accepted"`
	SpiderID     string `json:"spider_id,omitempty"`
}

// Progress is a transient snapshot of an engine-side scan. It has no
// identity of its own: it is produced by one poll and discarded after
// being folded into a scan record or a response payload. Synthetic marks
// snapshots fabricated by the degradation policy; they must never be
// written back to the repository.
type Progress struct {
	EngineScanID string `json:"engine_scan_id,omitempty"`
	Percent      int    `json:"progress"`
	State        State  `json:"state"`
	Synthetic    bool   `json:"synthetic,omitempty"`
}

// Scan is an engine-side scan as reported by the engine's own listing.
// Synthetic marks entries fabricated by the degradation policy; their
// ids must never be treated as real correlation ids.
type Scan struct {
	EngineScanID string `json:"engine_scan_id"`
	TargetURL    string `json:"target_url"`
	State        State  `json:"state"`
	Percent      int    `json:"progress"`
	Synthetic    bool   `json:"synthetic,omitempty"`
}

// Issue is a read-only vulnerability finding projected from the engine.
type Issue struct {
	ID           string     `json:"id"`
	ScanID       string     `json:"scan_id"`
	Name         string     `json:"name"`
	Severity     Severity   `json:"severity"`
	Confidence   Confidence `json:"confidence"`
	URL          string     `json:"url"`
	Description  string     `json:"description"`
	Remediation  string     `json:"remediation"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	Synthetic    bool       `json:"synthetic,omitempty"`
}

// IssueFilter narrows an issue listing. Zero values match everything.
type IssueFilter struct {
	Severity Severity
	ScanID   string
}

// Matches reports whether the issue passes the filter.
func (f IssueFilter) Matches(issue *Issue) bool {
	if f.Severity != "" && issue.Severity != f.Severity {
		return false
	}
	if f.ScanID != "" && issue.ScanID != f.ScanID {
		return false
	}
	return true
}

// Adapter is the capability set this system needs from a scanning engine.
// Exactly one implementation talks to a real engine over HTTP; the
// degradation policy wraps it, and tests substitute mocks.
//
// Read calls (ListScans, ListIssues, Progress) fail with coded
// ENGINE_UNAVAILABLE or ENGINE_REJECTED errors; command calls (Start,
// Pause, Resume, Stop) use the same taxonomy but are never degraded.
type Adapter interface {
	// Start asks the engine to scan targetURL. A single attempt: retry
	// policy belongs to the caller, not the adapter.
	Start(ctx context.Context, targetURL, scanName string) (*StartResult, error)

	// ListScans returns every scan the engine currently knows about.
	ListScans(ctx context.Context) ([]*Scan, error)

	// ListIssues returns findings, normalized to this system's severity
	// and confidence vocabulary.
	ListIssues(ctx context.Context, filter IssueFilter) ([]*Issue, error)

	// Progress returns a snapshot for the given engine scan id. With an
	// empty id it summarizes: a running scan is preferred over any other
	// state, the most recently observed one among several; with no
	// running scans the most recently updated scan of any state; with no
	// scans at all a neutral snapshot rather than an error.
	Progress(ctx context.Context, engineScanID string) (*Progress, error)

	// Pause suspends a running engine scan.
	Pause(ctx context.Context, engineScanID string) error

	// Resume continues a paused engine scan.
	Resume(ctx context.Context, engineScanID string) error

	// Stop terminates an engine scan.
	Stop(ctx context.Context, engineScanID string) error
}
