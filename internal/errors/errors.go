// Package errors provides structured error handling for scandash operations.
// It defines error codes and error types for engine communication, scan
// admission control, and database access, with utilities for inspecting
// errors by code.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeConflict      ErrorCode = "CONFLICT"

	// Engine errors. Unavailable means the engine could not be reached
	// (transport failure or timeout); Rejected means the engine answered
	// with a non-2xx application response.
	CodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	CodeEngineRejected    ErrorCode = "ENGINE_REJECTED"

	// Admission control rejections. These are not failures: the request
	// was understood and refused because of an existing scan record.
	CodeDuplicateActiveScan    ErrorCode = "DUPLICATE_ACTIVE_SCAN"
	CodeDuplicateCompletedScan ErrorCode = "DUPLICATE_COMPLETED_SCAN"

	// Database errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	CodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"
)

// EngineError represents an error talking to the external scanning engine.
type EngineError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Status    int
	Cause     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewEngineError creates a new engine error with the specified code and message.
func NewEngineError(code ErrorCode, message, operation string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Operation: operation,
	}
}

// WrapEngineError wraps an existing error as an engine error.
func WrapEngineError(code ErrorCode, message, operation string, err error) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// AdmissionError represents a scan start request that was refused by
// admission control. It carries the conflicting record so callers can
// surface which scan already covers the target.
type AdmissionError struct {
	Code           ErrorCode
	Message        string
	Target         string
	ExistingID     string
	ExistingStatus string
}

// Error implements the error interface.
func (e *AdmissionError) Error() string {
	return fmt.Sprintf("[%s] %s (target: %s, existing: %s)", e.Code, e.Message, e.Target, e.ExistingID)
}

// ErrDuplicateActiveScan creates an admission error for a target that
// already has a running or paused scan.
func ErrDuplicateActiveScan(target, existingID, existingStatus string) *AdmissionError {
	return &AdmissionError{
		Code:           CodeDuplicateActiveScan,
		Message:        "a scan is already active for this target",
		Target:         target,
		ExistingID:     existingID,
		ExistingStatus: existingStatus,
	}
}

// ErrDuplicateCompletedScan creates an admission error for a name+target
// pair that has already completed.
func ErrDuplicateCompletedScan(target, existingID string) *AdmissionError {
	return &AdmissionError{
		Code:           CodeDuplicateCompletedScan,
		Message:        "a scan with this name and target has already completed",
		Target:         target,
		ExistingID:     existingID,
		ExistingStatus: "completed",
	}
}

// DatabaseError represents database-related errors.
type DatabaseError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a new database error.
func NewDatabaseError(code ErrorCode, message string) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
	}
}

// WrapDatabaseError wraps an existing error as a database error.
func WrapDatabaseError(code ErrorCode, message string, err error) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// AuthError represents an authentication failure.
type AuthError struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrUnauthorized creates an authentication error.
func ErrUnauthorized(message string) *AuthError {
	return &AuthError{Code: CodeUnauthorized, Message: message}
}

// NotFoundError represents an operation against an unknown resource id.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("[%s] %s not found: %s", CodeNotFound, e.Resource, e.ID)
}

// ErrScanNotFound creates a not-found error for a scan id.
func ErrScanNotFound(id string) *NotFoundError {
	return &NotFoundError{Resource: "scan", ID: id}
}

// TransitionError represents a lifecycle command applied to a record in a
// state that does not permit it.
type TransitionError struct {
	ID      string
	Status  string
	Command string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("[%s] cannot %s scan %s in status %s", CodeConflict, e.Command, e.ID, e.Status)
}

// ErrInvalidTransition creates a transition error.
func ErrInvalidTransition(id, status, command string) *TransitionError {
	return &TransitionError{ID: id, Status: status, Command: command}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
	}
}

// Utility functions for common error operations

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *EngineError:
		return e.Code
	case *AdmissionError:
		return e.Code
	case *DatabaseError:
		return e.Code
	case *AuthError:
		return e.Code
	case *NotFoundError:
		return CodeNotFound
	case *TransitionError:
		return CodeConflict
	case *ConfigError:
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsEngineFailure reports whether an error is an engine transport failure
// or rejection, the two conditions the degradation policy recovers from.
func IsEngineFailure(err error) bool {
	code := GetCode(err)
	return code == CodeEngineUnavailable || code == CodeEngineRejected
}

// IsAdmissionRejection reports whether an error is an admission-control
// rejection rather than an operational failure.
func IsAdmissionRejection(err error) bool {
	code := GetCode(err)
	return code == CodeDuplicateActiveScan || code == CodeDuplicateCompletedScan
}
