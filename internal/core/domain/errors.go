// Package domain defines the core domain models for shellkeep.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes have the form SK-<AREA>-<NNNN>; the last four digits follow the
// HTTP status the error maps to at the agent boundary.
type DomainError struct {
	Code    string // Error code (e.g., "SK-QUEUE-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// State persistence errors.
var (
	// ErrSnapshotNotFound indicates no snapshot is stored in a backend.
	ErrSnapshotNotFound = NewDomainError("SK-STATE-4040", "snapshot not found")

	// ErrSnapshotExpired indicates the stored snapshot is older than the restore window.
	ErrSnapshotExpired = NewDomainError("SK-STATE-4041", "snapshot expired")

	// ErrSnapshotInvalid indicates a snapshot failed to decode or validate.
	ErrSnapshotInvalid = NewDomainError("SK-STATE-4001", "invalid snapshot")

	// ErrQuotaExceeded indicates the encoded snapshot exceeds the backend size ceiling.
	ErrQuotaExceeded = NewDomainError("SK-STATE-4130", "snapshot exceeds storage quota")

	// ErrBackendUnavailable indicates a persistence backend cannot be reached.
	ErrBackendUnavailable = NewDomainError("SK-STATE-5030", "persistence backend unavailable")
)

// Sync queue errors.
var (
	// ErrSyncItemNotFound indicates the queued item does not exist.
	ErrSyncItemNotFound = NewDomainError("SK-QUEUE-4040", "sync item not found")

	// ErrSyncItemInvalid indicates the request cannot be queued.
	ErrSyncItemInvalid = NewDomainError("SK-QUEUE-4001", "invalid sync item")

	// ErrReplayFailed indicates the upstream rejected or did not answer a replay.
	ErrReplayFailed = NewDomainError("SK-QUEUE-5020", "replay failed")
)

// Cache errors.
var (
	// ErrCacheMiss indicates no stored response matches the request.
	ErrCacheMiss = NewDomainError("SK-CACHE-4040", "cache miss")

	// ErrUnknownCacheClass indicates the resource class is not configured.
	ErrUnknownCacheClass = NewDomainError("SK-CACHE-4001", "unknown cache class")
)

// Streaming errors.
var (
	// ErrStreamClosed indicates the connection is closed.
	ErrStreamClosed = NewDomainError("SK-STREAM-4100", "stream closed")

	// ErrReconnectExhausted indicates reconnection stopped after the attempt ceiling.
	ErrReconnectExhausted = NewDomainError("SK-STREAM-5030", "reconnect attempts exhausted")
)

// Message protocol errors.
var (
	// ErrUnknownMessage indicates the message type has no handler.
	ErrUnknownMessage = NewDomainError("SK-MSG-4000", "unknown message type")

	// ErrNoMessagePort indicates no page-local channel to the agent exists.
	ErrNoMessagePort = NewDomainError("SK-MSG-5030", "no message port")
)

// System errors.
var (
	// ErrInternal indicates an internal error.
	ErrInternal = NewDomainError("SK-SYS-5000", "internal error")

	// ErrStorage indicates a storage layer error.
	ErrStorage = NewDomainError("SK-SYS-5001", "storage error")

	// ErrUpstreamUnavailable indicates the upstream API could not be reached.
	ErrUpstreamUnavailable = NewDomainError("SK-SYS-5020", "upstream unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("SK-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("SK-SYS-4290", "too many requests")
)
