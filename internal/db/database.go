// Package db provides database connectivity and the scan repository for
// scandash. It handles database migrations, scan record persistence, and
// the lookup queries admission control and reconciliation depend on.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/scandash/scandash/internal/errors"
)

const (
	// Default database configuration values.
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5
	defaultConnMaxIdleTime = 5
)

// sanitizeDBError converts raw database errors into safe, sanitized errors
// that don't expose internal SQL details or credentials to API clients.
// The original error is preserved in the Cause field for internal debugging.
func sanitizeDBError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if err == sql.ErrNoRows {
		return errors.NewDatabaseError(errors.CodeNotFound, "Resource not found")
	}

	if pqErr, ok := err.(*pq.Error); ok {
		var dbErr *errors.DatabaseError
		switch pqErr.Code {
		case "23505": // unique_violation
			dbErr = errors.NewDatabaseError(errors.CodeConflict, "Resource already exists")
		case "23502": // not_null_violation
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "Required field is missing")
		case "23514": // check_violation
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "Data validation failed")
		case "57014": // query_canceled
			dbErr = errors.NewDatabaseError(errors.CodeCanceled, "Database operation was canceled")
		case "08000", "08003", "08006": // connection errors
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseConnection, "Database connection error")
		default:
			msg := fmt.Sprintf("Database operation failed: %s", operation)
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseQuery, msg)
		}
		dbErr.Operation = operation
		dbErr.Cause = err
		return dbErr
	}

	dbErr := errors.NewDatabaseError(errors.CodeDatabaseQuery, fmt.Sprintf("Database operation failed: %s", operation))
	dbErr.Operation = operation
	dbErr.Cause = err
	return dbErr
}

// DB wraps sqlx.DB with the scan repository operations.
type DB struct {
	*sqlx.DB
}

// Config holds database configuration.
type Config struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultConfig returns the default database configuration.
// Database name, username, and password must be explicitly configured.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime * time.Minute,
		ConnMaxIdleTime: defaultConnMaxIdleTime * time.Minute,
	}
}

// Connect establishes a connection to PostgreSQL.
// Returns sanitized errors that don't leak credentials or DSN details.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database,
		config.Username, config.Password, config.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseConnection, "Failed to connect to database", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			// Don't log raw error - it might contain connection details
			log.Printf("Failed to close database connection after ping failure")
		}
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseConnection, "Failed to verify database connection", err)
	}

	return &DB{DB: db}, nil
}

// ConnectAndMigrate connects to the database and applies pending migrations.
func ConnectAndMigrate(ctx context.Context, config *Config) (*DB, error) {
	db, err := Connect(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := NewMigrator(db.DB).Run(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database connection after migration failure")
		}
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseMigration, "Failed to apply migrations", err)
	}

	return db, nil
}

// Ping verifies database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return sanitizeDBError("ping", err)
	}
	return nil
}

// statusStrings converts statuses to a pq array parameter.
func statusStrings(statuses []ScanStatus) pq.StringArray {
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// InsertScan persists a new scan record. IDs are generated with uuid.New
// by the orchestrator, so a Conflict error here indicates a logic bug
// rather than an expected condition.
func (db *DB) InsertScan(ctx context.Context, record *ScanRecord) error {
	query := `
		INSERT INTO scans (id, name, target_url, status, engine_scan_id, created_by, created_at, completed_at)
		VALUES (:id, :name, :target_url, :status, :engine_scan_id, :created_by, :created_at, :completed_at)`

	if _, err := db.NamedExecContext(ctx, query, record); err != nil {
		return sanitizeDBError("insert_scan", err)
	}
	return nil
}

// UpdateScan replaces the mutable attributes of an existing record.
// Last-writer-wins: the orchestrator serializes writes per record through
// the reconciliation loop, so optimistic concurrency is not needed here.
func (db *DB) UpdateScan(ctx context.Context, record *ScanRecord) error {
	query := `
		UPDATE scans
		SET name = :name,
		    status = :status,
		    engine_scan_id = :engine_scan_id,
		    completed_at = :completed_at
		WHERE id = :id`

	result, err := db.NamedExecContext(ctx, query, record)
	if err != nil {
		return sanitizeDBError("update_scan", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sanitizeDBError("update_scan", err)
	}
	if rows == 0 {
		return errors.ErrScanNotFound(record.ID.String())
	}
	return nil
}

// GetScan retrieves a scan record by its local id.
func (db *DB) GetScan(ctx context.Context, id uuid.UUID) (*ScanRecord, error) {
	var record ScanRecord
	query := `
		SELECT id, name, target_url, status, engine_scan_id, created_by, created_at, completed_at
		FROM scans WHERE id = $1`

	if err := db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrScanNotFound(id.String())
		}
		return nil, sanitizeDBError("get_scan", err)
	}
	return &record, nil
}

// FindScanByTargetAndStatuses returns the scan record for the given target
// in one of the given statuses, or nil when no such record exists. Used by
// admission control to detect an active scan on the target.
func (db *DB) FindScanByTargetAndStatuses(
	ctx context.Context, targetURL string, statuses []ScanStatus,
) (*ScanRecord, error) {
	var record ScanRecord
	query := `
		SELECT id, name, target_url, status, engine_scan_id, created_by, created_at, completed_at
		FROM scans
		WHERE target_url = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`

	err := db.GetContext(ctx, &record, query, targetURL, statusStrings(statuses))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, sanitizeDBError("find_scan_by_target", err)
	}
	return &record, nil
}

// FindScanByTargetNameStatus returns the scan record matching target, name,
// and status, or nil. Used by admission control to detect an exact repeat of
// a completed scan.
func (db *DB) FindScanByTargetNameStatus(
	ctx context.Context, targetURL, name string, status ScanStatus,
) (*ScanRecord, error) {
	var record ScanRecord
	query := `
		SELECT id, name, target_url, status, engine_scan_id, created_by, created_at, completed_at
		FROM scans
		WHERE target_url = $1 AND name = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1`

	err := db.GetContext(ctx, &record, query, targetURL, name, string(status))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, sanitizeDBError("find_scan_by_target_name", err)
	}
	return &record, nil
}

// ListScansByStatuses returns all scan records in the given statuses,
// oldest first. Used by the reconciliation loop to enumerate active scans.
func (db *DB) ListScansByStatuses(ctx context.Context, statuses []ScanStatus) ([]*ScanRecord, error) {
	var records []*ScanRecord
	query := `
		SELECT id, name, target_url, status, engine_scan_id, created_by, created_at, completed_at
		FROM scans
		WHERE status = ANY($1)
		ORDER BY created_at ASC`

	if err := db.SelectContext(ctx, &records, query, statusStrings(statuses)); err != nil {
		return nil, sanitizeDBError("list_scans_by_statuses", err)
	}
	return records, nil
}

// ListScans returns all scan records, newest first.
func (db *DB) ListScans(ctx context.Context) ([]*ScanRecord, error) {
	var records []*ScanRecord
	query := `
		SELECT id, name, target_url, status, engine_scan_id, created_by, created_at, completed_at
		FROM scans
		ORDER BY created_at DESC`

	if err := db.SelectContext(ctx, &records, query); err != nil {
		return nil, sanitizeDBError("list_scans", err)
	}
	return records, nil
}

// CountScansByStatus returns the number of scan records per status.
func (db *DB) CountScansByStatus(ctx context.Context) (map[ScanStatus]int64, error) {
	rows := []struct {
		Status ScanStatus `db:"status"`
		Count  int64      `db:"count"`
	}{}
	query := `SELECT status, COUNT(*) AS count FROM scans GROUP BY status`

	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, sanitizeDBError("count_scans_by_status", err)
	}

	counts := make(map[ScanStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
