// Package orchestrator owns the scan lifecycle: admission control, start
// sequencing against the external engine, command forwarding, and the
// periodic reconciliation between persisted scan records and the engine's
// eventually-consistent progress reports.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
	"github.com/scandash/scandash/internal/errors"
	"github.com/scandash/scandash/internal/logging"
	"github.com/scandash/scandash/internal/metrics"
)

const defaultScanName = "Security Scan"

// Repository is the subset of the persistence layer the orchestrator
// depends on. *db.DB satisfies it; tests substitute fakes.
type Repository interface {
	InsertScan(ctx context.Context, record *db.ScanRecord) error
	UpdateScan(ctx context.Context, record *db.ScanRecord) error
	GetScan(ctx context.Context, id uuid.UUID) (*db.ScanRecord, error)
	FindScanByTargetAndStatuses(ctx context.Context, targetURL string, statuses []db.ScanStatus) (*db.ScanRecord, error)
	FindScanByTargetNameStatus(ctx context.Context, targetURL, name string, status db.ScanStatus) (*db.ScanRecord, error)
	ListScansByStatuses(ctx context.Context, statuses []db.ScanStatus) ([]*db.ScanRecord, error)
	ListScans(ctx context.Context) ([]*db.ScanRecord, error)
	CountScansByStatus(ctx context.Context) (map[db.ScanStatus]int64, error)
}

var _ Repository = (*db.DB)(nil)

// ScanUpdate is a progress notification pushed to live subscribers after
// each reconciliation pass touches a record.
type ScanUpdate struct {
	ScanID      uuid.UUID     `json:"scan_id"`
	Status      db.ScanStatus `json:"status"`
	Progress    int           `json:"progress"`
	TargetURL   string        `json:"target_url"`
	Synthetic   bool          `json:"synthetic,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// ProgressSink receives scan updates from the reconciliation loop.
type ProgressSink interface {
	BroadcastScanUpdate(update ScanUpdate)
}

// Orchestrator coordinates the scan lifecycle between the repository and
// the engine adapter. The adapter handed in should already be wrapped with
// the degradation policy; command calls pass through it unchanged.
type Orchestrator struct {
	repo    Repository
	adapter engine.Adapter
	logger  *logging.Logger
	metrics metrics.MetricsRegistry
	sink    ProgressSink
	locks   *targetLocks

	// now is injectable for tests.
	now func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgressSink attaches a live update sink.
func WithProgressSink(sink ProgressSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(repo Repository, adapter engine.Adapter, logger *logging.Logger, reg metrics.MetricsRegistry, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		repo:    repo,
		adapter: adapter,
		logger:  logger.WithComponent("orchestrator"),
		metrics: reg,
		locks:   newTargetLocks(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartRequest is a request to start a scan.
type StartRequest struct {
	TargetURL string
	Name      string
}

// StartScan admits and starts a scan for the request's target.
//
// Admission holds the per-target lock across the duplicate checks and the
// insert so concurrent starts for the same target serialize: exactly one
// wins, the rest are rejected with DUPLICATE_ACTIVE_SCAN.
//
// The engine is called before the record is persisted. A crash between
// the two can orphan an engine-side scan with no local record; that
// ordering is deliberate and the risk is accepted (see README).
func (o *Orchestrator) StartScan(ctx context.Context, req StartRequest, caller *auth.Caller) (*db.ScanRecord, error) {
	if caller == nil {
		return nil, errors.ErrUnauthorized("start scan requires an authenticated caller")
	}

	name := req.Name
	if name == "" {
		name = defaultScanName
	}

	unlock := o.locks.lock(req.TargetURL)
	defer unlock()

	// Admission: an active scan on the target wins over the new request.
	existing, err := o.repo.FindScanByTargetAndStatuses(ctx, req.TargetURL, db.ActiveStatuses())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		o.count("scan_admission_rejected_total", metrics.Labels{"reason": "duplicate_active"})
		return nil, errors.ErrDuplicateActiveScan(req.TargetURL, existing.ID.String(), string(existing.Status))
	}

	// Admission: an identical completed scan signals an exact repeat.
	completed, err := o.repo.FindScanByTargetNameStatus(ctx, req.TargetURL, name, db.ScanStatusCompleted)
	if err != nil {
		return nil, err
	}
	if completed != nil {
		o.count("scan_admission_rejected_total", metrics.Labels{"reason": "duplicate_completed"})
		return nil, errors.ErrDuplicateCompletedScan(req.TargetURL, completed.ID.String())
	}

	// Start on the engine, then persist. One record is created whether or
	// not the engine handed back a correlation id.
	result, err := o.adapter.Start(ctx, req.TargetURL, name)
	if err != nil {
		return nil, err
	}

	record := &db.ScanRecord{
		ID:        uuid.New(),
		Name:      name,
		TargetURL: req.TargetURL,
		Status:    db.ScanStatusRunning,
		CreatedAt: o.now(),
	}
	if caller.SubjectID != "" {
		subject := caller.SubjectID
		record.CreatedBy = &subject
	}
	if result.Accepted && result.EngineScanID != "" {
		engineID := result.EngineScanID
		record.EngineScanID = &engineID
	}

	if err := o.repo.InsertScan(ctx, record); err != nil {
		return nil, err
	}

	o.count("scans_started_total", nil)
	o.logger.InfoScan("scan started", req.TargetURL,
		"scan_id", record.ID,
		"name", name,
		"engine_accepted", result.Accepted)
	return record, nil
}

// ActiveScan pairs a persisted record with its live engine progress.
type ActiveScan struct {
	Record   *db.ScanRecord   `json:"record"`
	Progress *engine.Progress `json:"progress"`
}

// ListActiveScans returns every running or paused record together with a
// live progress snapshot. Engine failures degrade to synthetic progress,
// never to an error.
func (o *Orchestrator) ListActiveScans(ctx context.Context) ([]*ActiveScan, error) {
	records, err := o.repo.ListScansByStatuses(ctx, db.ActiveStatuses())
	if err != nil {
		return nil, err
	}

	active := make([]*ActiveScan, 0, len(records))
	for _, record := range records {
		progress, err := o.adapter.Progress(ctx, correlationOrSummary(record))
		if err != nil {
			// The degraded adapter only errors on non-engine failures.
			o.logger.ErrorScan("progress lookup failed", record.TargetURL, err, "scan_id", record.ID)
			progress = &engine.Progress{State: engine.StateUnknown}
		}
		active = append(active, &ActiveScan{Record: record, Progress: progress})
	}
	return active, nil
}

// ListScans returns all scan records, newest first.
func (o *Orchestrator) ListScans(ctx context.Context) ([]*db.ScanRecord, error) {
	return o.repo.ListScans(ctx)
}

// ListScansByStatus returns the records in one lifecycle state.
func (o *Orchestrator) ListScansByStatus(ctx context.Context, status db.ScanStatus) ([]*db.ScanRecord, error) {
	return o.repo.ListScansByStatuses(ctx, []db.ScanStatus{status})
}

// GetProgress returns the live progress snapshot for a scan record.
func (o *Orchestrator) GetProgress(ctx context.Context, id uuid.UUID) (*engine.Progress, error) {
	record, err := o.repo.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.adapter.Progress(ctx, correlationOrSummary(record))
}

// ListIssues returns normalized findings from the engine or its synthetic
// fallback.
func (o *Orchestrator) ListIssues(ctx context.Context, filter engine.IssueFilter) ([]*engine.Issue, error) {
	return o.adapter.ListIssues(ctx, filter)
}

// PauseScan suspends a running scan. Engine failure leaves the record
// unchanged and is surfaced to the caller.
func (o *Orchestrator) PauseScan(ctx context.Context, id uuid.UUID, caller *auth.Caller) (*db.ScanRecord, error) {
	return o.command(ctx, id, caller, "pause",
		[]db.ScanStatus{db.ScanStatusRunning}, db.ScanStatusPaused, engine.Adapter.Pause)
}

// ResumeScan continues a paused scan.
func (o *Orchestrator) ResumeScan(ctx context.Context, id uuid.UUID, caller *auth.Caller) (*db.ScanRecord, error) {
	return o.command(ctx, id, caller, "resume",
		[]db.ScanStatus{db.ScanStatusPaused}, db.ScanStatusRunning, engine.Adapter.Resume)
}

// StopScan terminates a running or paused scan.
func (o *Orchestrator) StopScan(ctx context.Context, id uuid.UUID, caller *auth.Caller) (*db.ScanRecord, error) {
	return o.command(ctx, id, caller, "stop",
		db.ActiveStatuses(), db.ScanStatusStopped, engine.Adapter.Stop)
}

// command forwards a lifecycle command to the engine and transitions the
// record on success. Commands are never degraded: the caller must know
// when the command did not take effect.
func (o *Orchestrator) command(
	ctx context.Context,
	id uuid.UUID,
	caller *auth.Caller,
	verb string,
	from []db.ScanStatus,
	to db.ScanStatus,
	forward func(engine.Adapter, context.Context, string) error,
) (*db.ScanRecord, error) {
	if caller == nil {
		return nil, errors.ErrUnauthorized(verb + " requires an authenticated caller")
	}

	record, err := o.repo.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, status := range from {
		if record.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errors.ErrInvalidTransition(id.String(), string(record.Status), verb)
	}

	// Forward when the engine knows the scan. Without a correlation id
	// there is nothing engine-side to command; the local record still
	// transitions so the dashboard reflects the operator's intent.
	if record.EngineScanID != nil {
		if err := forward(o.adapter, ctx, *record.EngineScanID); err != nil {
			o.logger.ErrorScan("engine command failed", record.TargetURL, err,
				"scan_id", record.ID, "command", verb)
			return nil, err
		}
	} else {
		o.logger.WithScanID(id.String()).Warn("no engine correlation id, applying command locally", "command", verb)
	}

	record.Status = to
	if to.IsTerminal() && record.CompletedAt == nil {
		completedAt := o.now()
		record.CompletedAt = &completedAt
	}
	if err := o.repo.UpdateScan(ctx, record); err != nil {
		return nil, err
	}

	o.count("scan_commands_total", metrics.Labels{"command": verb})
	o.logger.InfoScan("scan "+string(to), record.TargetURL, "scan_id", record.ID)
	return record, nil
}

// correlationOrSummary returns the record's engine correlation id, or the
// empty id asking the adapter for its cross-scan summary when the engine
// never acknowledged this scan.
func correlationOrSummary(record *db.ScanRecord) string {
	if record.EngineScanID != nil {
		return *record.EngineScanID
	}
	return ""
}

func (o *Orchestrator) count(name string, labels metrics.Labels) {
	if o.metrics != nil {
		o.metrics.Counter(name, labels)
	}
}
