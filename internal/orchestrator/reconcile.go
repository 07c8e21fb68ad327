package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
)

const (
	defaultReconcileInterval = 30 * time.Second
	defaultPollTimeout       = 10 * time.Second
)

// ReconcileConfig holds reconciliation loop configuration.
type ReconcileConfig struct {
	// Interval between reconciliation passes.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// PollTimeout bounds each per-record engine poll so one stalled poll
	// cannot hold up the rest of the pass.
	PollTimeout time.Duration `yaml:"poll_timeout" json:"poll_timeout"`
}

// DefaultReconcileConfig returns the default reconciliation configuration.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Interval:    defaultReconcileInterval,
		PollTimeout: defaultPollTimeout,
	}
}

// Reconciler periodically merges persisted scan state with the engine's
// live progress reports. It runs independently of any request.
type Reconciler struct {
	orch   *Orchestrator
	config ReconcileConfig
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewReconciler creates a reconciler driving the orchestrator's
// reconciliation pass on a fixed schedule.
func NewReconciler(orch *Orchestrator, config ReconcileConfig) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = defaultReconcileInterval
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = defaultPollTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		orch:   orch,
		config: config,
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the periodic reconciliation schedule.
func (r *Reconciler) Start() error {
	spec := fmt.Sprintf("@every %s", r.config.Interval)
	_, err := r.cron.AddFunc(spec, func() {
		if err := r.orch.ReconcileOnce(r.ctx, r.config.PollTimeout); err != nil {
			r.orch.logger.Error("reconciliation pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	r.cron.Start()
	r.orch.logger.Info("reconciliation started", "interval", r.config.Interval)
	return nil
}

// Stop halts the schedule and waits for an in-flight pass to drain.
func (r *Reconciler) Stop() {
	r.cancel()
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.orch.logger.Info("reconciliation stopped")
}

// ReconcileOnce runs a single reconciliation pass: every running or paused
// record is polled for engine progress and folded forward. Failures are
// isolated per record; one bad poll never blocks the rest of the pass.
func (o *Orchestrator) ReconcileOnce(ctx context.Context, pollTimeout time.Duration) error {
	records, err := o.repo.ListScansByStatuses(ctx, db.ActiveStatuses())
	if err != nil {
		return err
	}

	o.count("reconcile_passes_total", nil)
	if o.metrics != nil {
		o.metrics.Gauge("active_scans", float64(len(records)), nil)
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.reconcileRecord(ctx, record, pollTimeout); err != nil {
			o.count("reconcile_record_failures_total", nil)
			o.logger.ErrorScan("failed to reconcile scan", record.TargetURL, err, "scan_id", record.ID)
		}
	}
	return nil
}

// reconcileRecord polls engine progress for one record and applies it.
func (o *Orchestrator) reconcileRecord(ctx context.Context, record *db.ScanRecord, pollTimeout time.Duration) error {
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	progress, err := o.progressForRecord(pollCtx, record)
	if err != nil {
		return err
	}

	changed := o.applyProgress(record, progress)
	if changed {
		if err := o.repo.UpdateScan(ctx, record); err != nil {
			return err
		}
	}

	o.broadcast(record, progress)
	return nil
}

// progressForRecord resolves a live snapshot for one record. With a
// correlation id the engine is asked directly. Without one the engine's
// scan listing is searched for the record's target URL; the cross-scan
// summary snapshot is not used here because it can describe a different
// target's scan, and backfilling its id would bind this record to an
// unrelated engine scan. No listing match means no engine data: the
// record's status is retained.
func (o *Orchestrator) progressForRecord(ctx context.Context, record *db.ScanRecord) (*engine.Progress, error) {
	if record.EngineScanID != nil {
		return o.adapter.Progress(ctx, *record.EngineScanID)
	}

	scans, err := o.adapter.ListScans(ctx)
	if err != nil {
		return nil, err
	}
	for _, scan := range scans {
		if scan.TargetURL == record.TargetURL {
			return &engine.Progress{
				EngineScanID: scan.EngineScanID,
				Percent:      scan.Percent,
				State:        scan.State,
				Synthetic:    scan.Synthetic,
			}, nil
		}
	}
	return &engine.Progress{State: engine.StateUnknown}, nil
}

// applyProgress folds an engine progress snapshot into a record, returning
// whether the record changed. Synthetic snapshots never touch the record:
// fallback data may flow to responses but is not authoritative. Unknown
// engine state retains the record's status - absence of engine data is not
// evidence of failure. Re-applying a completion to an already-terminal
// record is a no-op, which keeps concurrent passes idempotent.
func (o *Orchestrator) applyProgress(record *db.ScanRecord, progress *engine.Progress) bool {
	if progress.Synthetic {
		return false
	}
	if record.Status.IsTerminal() {
		return false
	}

	// Backfill the correlation id when the engine first acknowledges the
	// scan; never overwrite a non-nil value.
	changed := false
	if record.EngineScanID == nil && progress.EngineScanID != "" {
		engineID := progress.EngineScanID
		record.EngineScanID = &engineID
		changed = true
	}

	switch progress.State {
	case engine.StateCompleted:
		record.Status = db.ScanStatusCompleted
		if record.CompletedAt == nil {
			completedAt := o.now()
			record.CompletedAt = &completedAt
		}
		o.count("scans_completed_total", nil)
		changed = true
	case engine.StateStopped:
		record.Status = db.ScanStatusStopped
		if record.CompletedAt == nil {
			completedAt := o.now()
			record.CompletedAt = &completedAt
		}
		changed = true
	case engine.StateRunning:
		if record.Status != db.ScanStatusRunning {
			record.Status = db.ScanStatusRunning
			changed = true
		}
	case engine.StatePaused:
		if record.Status != db.ScanStatusPaused {
			record.Status = db.ScanStatusPaused
			changed = true
		}
	case engine.StateUnknown:
		// Retain current status.
	}
	return changed
}

// broadcast pushes a live update to the progress sink, if one is attached.
func (o *Orchestrator) broadcast(record *db.ScanRecord, progress *engine.Progress) {
	if o.sink == nil {
		return
	}
	o.sink.BroadcastScanUpdate(ScanUpdate{
		ScanID:      record.ID,
		Status:      record.Status,
		Progress:    progress.Percent,
		TargetURL:   record.TargetURL,
		Synthetic:   progress.Synthetic,
		CompletedAt: record.CompletedAt,
	})
}
