package session

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ronpik/area-calc-sub000/internal/blob"
)

// ErrorCode is the fixed, UI-actionable failure taxonomy. UI collaborators key
// their messaging and retry affordances on these values.
type ErrorCode string

const (
	CodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeNetworkError     ErrorCode = "NETWORK_ERROR"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	CodeUnknown          ErrorCode = "UNKNOWN"

	// Reserved for forward compatibility; never constructed today. Index
	// absence reads as an empty index and corruption falls back silently.
	CodeIndexNotFound  ErrorCode = "INDEX_NOT_FOUND"
	CodeIndexCorrupted ErrorCode = "INDEX_CORRUPTED"
	CodeInvalidData    ErrorCode = "INVALID_DATA"
)

// StorageError is the only failure type that crosses the store boundary.
// Retry is a hint: true means the UI may offer a retry action, false means
// retrying is futile without a changed precondition.
type StorageError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Retry   bool      `json:"retry"`
}

func (e *StorageError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NotAuthenticatedError() *StorageError {
	return &StorageError{Code: CodeNotAuthenticated, Message: "Not authenticated", Retry: false}
}

func SessionNotFoundError() *StorageError {
	return &StorageError{Code: CodeSessionNotFound, Message: "Session not found", Retry: false}
}

// MapStorageError classifies any failure from the blob store, the network or
// plain runtime errors into the taxonomy. It is total: every input, including
// nil, yields a valid StorageError, and it never panics.
func MapStorageError(err error) *StorageError {
	if err == nil {
		return &StorageError{Code: CodeUnknown, Message: "Unknown storage error", Retry: true}
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr
	}

	switch {
	case errors.Is(err, blob.ErrNotFound):
		return &StorageError{Code: CodeSessionNotFound, Message: err.Error(), Retry: false}
	case errors.Is(err, blob.ErrUnauthorized):
		return &StorageError{Code: CodePermissionDenied, Message: err.Error(), Retry: false}
	case errors.Is(err, blob.ErrQuotaExceeded):
		return &StorageError{Code: CodeQuotaExceeded, Message: err.Error(), Retry: false}
	case isNetworkError(err):
		return &StorageError{Code: CodeNetworkError, Message: err.Error(), Retry: true}
	default:
		return &StorageError{Code: CodeUnknown, Message: err.Error(), Retry: true}
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Runtime errors out of HTTP-style clients mention "fetch"; treat those as
	// transient connectivity failures rather than unknowns.
	return strings.Contains(strings.ToLower(err.Error()), "fetch")
}
