package engine

import "time"

// Synthetic fallback data. When the engine is unreachable or refuses a
// read request, the degradation policy substitutes these fixed datasets so
// downstream consumers never have to special-case engine downtime. The
// payloads are deterministic: the same call always yields the same data,
// and every entry is tagged Synthetic so it can never be mistaken for an
// authoritative engine report.

// syntheticObservedAt is a fixed discovery timestamp so fallback payloads
// are byte-identical between calls.
var syntheticObservedAt = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

// SyntheticProgress returns the fallback progress snapshot.
func SyntheticProgress(engineScanID string) *Progress {
	return &Progress{
		EngineScanID: engineScanID,
		Percent:      5,
		State:        StateRunning,
		Synthetic:    true,
	}
}

// SyntheticScans returns the fallback engine scan listing.
func SyntheticScans() []*Scan {
	return []*Scan{
		{EngineScanID: "synthetic-0", TargetURL: "https://example.com", State: StateRunning, Percent: 40, Synthetic: true},
		{EngineScanID: "synthetic-1", TargetURL: "https://api.example.com", State: StateCompleted, Percent: 100, Synthetic: true},
	}
}

// SyntheticIssues returns the fallback issue listing, filtered.
func SyntheticIssues(filter IssueFilter) []*Issue {
	all := []*Issue{
		{
			ID:           "synthetic-issue-001",
			ScanID:       "synthetic-0",
			Name:         "SQL Injection",
			Severity:     SeverityHigh,
			Confidence:   ConfidenceCertain,
			URL:          "https://example.com/login",
			Description:  "SQL injection vulnerability found in login form",
			Remediation:  "Use parameterized queries and input validation",
			DiscoveredAt: syntheticObservedAt,
			Synthetic:    true,
		},
		{
			ID:           "synthetic-issue-002",
			ScanID:       "synthetic-0",
			Name:         "Cross-Site Scripting (XSS)",
			Severity:     SeverityMedium,
			Confidence:   ConfidenceCertain,
			URL:          "https://example.com/search",
			Description:  "Reflected XSS vulnerability in search parameter",
			Remediation:  "Implement proper input validation and output encoding",
			DiscoveredAt: syntheticObservedAt,
			Synthetic:    true,
		},
		{
			ID:           "synthetic-issue-003",
			ScanID:       "synthetic-0",
			Name:         "Missing Security Headers",
			Severity:     SeverityLow,
			Confidence:   ConfidenceFirm,
			URL:          "https://example.com/",
			Description:  "Missing security headers such as X-Frame-Options and CSP",
			Remediation:  "Configure proper security headers",
			DiscoveredAt: syntheticObservedAt,
			Synthetic:    true,
		},
		{
			ID:           "synthetic-issue-004",
			ScanID:       "synthetic-1",
			Name:         "Cookie Without Secure Flag",
			Severity:     SeverityInfo,
			Confidence:   ConfidenceTentative,
			URL:          "https://api.example.com/session",
			Description:  "Session cookie is set without the Secure attribute",
			Remediation:  "Set the Secure and HttpOnly attributes on session cookies",
			DiscoveredAt: syntheticObservedAt,
			Synthetic:    true,
		},
	}

	issues := make([]*Issue, 0, len(all))
	for _, issue := range all {
		if filter.Matches(issue) {
			issues = append(issues, issue)
		}
	}
	return issues
}
