package db

import (
	"time"

	"github.com/google/uuid"
)

// ScanStatus represents the lifecycle state of a scan record.
type ScanStatus string

const (
	ScanStatusQueued    ScanStatus = "queued"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusPaused    ScanStatus = "paused"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusStopped   ScanStatus = "stopped"
	ScanStatusFailed    ScanStatus = "failed"
)

// ActiveStatuses are the states in which a scan occupies its target.
// At most one record per target URL may be in one of these states.
func ActiveStatuses() []ScanStatus {
	return []ScanStatus{ScanStatusRunning, ScanStatusPaused}
}

// IsTerminal reports whether the status is a terminal lifecycle state.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanStatusCompleted, ScanStatusStopped, ScanStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s ScanStatus) IsValid() bool {
	switch s {
	case ScanStatusQueued, ScanStatusRunning, ScanStatusPaused,
		ScanStatusCompleted, ScanStatusStopped, ScanStatusFailed:
		return true
	default:
		return false
	}
}

// ScanRecord represents a locally persisted scan. The id is generated by
// this system and is immutable; EngineScanID is the external engine's own
// identifier for the scan and stays nil until the engine accepts the start
// request. Records are never deleted, only transitioned.
type ScanRecord struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	TargetURL    string     `db:"target_url" json:"target_url"`
	Status       ScanStatus `db:"status" json:"status"`
	EngineScanID *string    `db:"engine_scan_id" json:"engine_scan_id,omitempty"`
	CreatedBy    *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsActive reports whether the record currently occupies its target.
func (r *ScanRecord) IsActive() bool {
	return r.Status == ScanStatusRunning || r.Status == ScanStatusPaused
}
