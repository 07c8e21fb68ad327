package engine

import (
	"context"

	"github.com/scandash/scandash/internal/errors"
	"github.com/scandash/scandash/internal/logging"
)

// Degraded wraps an Adapter with the degradation policy: every read call
// that fails with ENGINE_UNAVAILABLE or ENGINE_REJECTED is answered with
// deterministic synthetic data instead of an error, so read paths never
// surface engine downtime to callers. Command calls (Start, Pause, Resume,
// Stop) pass through untouched - a command the caller expects to take
// effect must fail loudly when it did not.
//
// Synthetic substitutions are tagged on the payload; the orchestrator
// checks the tag and never writes synthetic data back to the repository.
type Degraded struct {
	inner  Adapter
	logger *logging.Logger
}

var _ Adapter = (*Degraded)(nil)

// NewDegraded wraps an adapter with the degradation policy.
func NewDegraded(inner Adapter, logger *logging.Logger) *Degraded {
	if logger == nil {
		logger = logging.Default()
	}
	return &Degraded{
		inner:  inner,
		logger: logger.WithComponent("engine-fallback"),
	}
}

// Start passes through: start is a command, not a read.
func (d *Degraded) Start(ctx context.Context, targetURL, scanName string) (*StartResult, error) {
	return d.inner.Start(ctx, targetURL, scanName)
}

// ListScans degrades to the synthetic scan listing on engine failure.
func (d *Degraded) ListScans(ctx context.Context) ([]*Scan, error) {
	scans, err := d.inner.ListScans(ctx)
	if err != nil {
		if !errors.IsEngineFailure(err) {
			return nil, err
		}
		d.logger.WarnEngine("substituting synthetic scan list", err)
		return SyntheticScans(), nil
	}
	return scans, nil
}

// ListIssues degrades to the synthetic issue listing on engine failure.
func (d *Degraded) ListIssues(ctx context.Context, filter IssueFilter) ([]*Issue, error) {
	issues, err := d.inner.ListIssues(ctx, filter)
	if err != nil {
		if !errors.IsEngineFailure(err) {
			return nil, err
		}
		d.logger.WarnEngine("substituting synthetic issue list", err)
		return SyntheticIssues(filter), nil
	}
	return issues, nil
}

// Progress degrades to the synthetic snapshot on engine failure.
func (d *Degraded) Progress(ctx context.Context, engineScanID string) (*Progress, error) {
	progress, err := d.inner.Progress(ctx, engineScanID)
	if err != nil {
		if !errors.IsEngineFailure(err) {
			return nil, err
		}
		d.logger.WarnEngine("substituting synthetic progress", err, "engine_scan_id", engineScanID)
		return SyntheticProgress(engineScanID), nil
	}
	return progress, nil
}

// Pause passes through.
func (d *Degraded) Pause(ctx context.Context, engineScanID string) error {
	return d.inner.Pause(ctx, engineScanID)
}

// Resume passes through.
func (d *Degraded) Resume(ctx context.Context, engineScanID string) error {
	return d.inner.Resume(ctx, engineScanID)
}

// Stop passes through.
func (d *Degraded) Stop(ctx context.Context, engineScanID string) error {
	return d.inner.Stop(ctx, engineScanID)
}
