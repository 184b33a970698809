package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrorType represents the type of cache error
type ErrorType int

const (
	// ErrorTypeConnection indicates the store is unreachable or unavailable
	ErrorTypeConnection ErrorType = iota + 1
	// ErrorTypeKeyInvalid indicates an invalid cache key
	ErrorTypeKeyInvalid
	// ErrorTypeSerialization indicates JSON marshaling/unmarshaling error
	ErrorTypeSerialization
	// ErrorTypeTimeout indicates a timeout during cache operation
	ErrorTypeTimeout
	// ErrorTypeOperation indicates a command failed on an otherwise live connection
	ErrorTypeOperation
	// ErrorTypeValidation indicates input or configuration validation failure
	ErrorTypeValidation
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeConnection:
		return "CONNECTION"
	case ErrorTypeKeyInvalid:
		return "KEY_INVALID"
	case ErrorTypeSerialization:
		return "SERIALIZATION"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeOperation:
		return "OPERATION"
	case ErrorTypeValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// CacheError represents a cache-specific error with context
type CacheError struct {
	Type    ErrorType
	Key     string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CacheError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Key != "" {
		return fmt.Sprintf("cache error [%s] for key '%s': %s", e.Type.String(), e.Key, msg)
	}
	return fmt.Sprintf("cache error [%s]: %s", e.Type.String(), msg)
}

// Unwrap returns the underlying cause error
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error type
func (e *CacheError) Is(target error) bool {
	if t, ok := target.(*CacheError); ok {
		return e.Type == t.Type
	}
	return false
}

// ErrUnavailable is returned by every operation once connection retries are exhausted.
var ErrUnavailable = NewConnectionError("store unavailable: connection retries exhausted", nil)

// NewCacheError creates a new CacheError
func NewCacheError(errType ErrorType, key, message string, cause error) *CacheError {
	return &CacheError{
		Type:    errType,
		Key:     key,
		Message: message,
		Cause:   cause,
	}
}

// NewConnectionError creates a connection-specific cache error
func NewConnectionError(message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeConnection, "", message, cause)
}

// NewKeyInvalidError creates a key validation error
func NewKeyInvalidError(key, message string) *CacheError {
	return NewCacheError(ErrorTypeKeyInvalid, key, message, nil)
}

// NewSerializationError creates a serialization error
func NewSerializationError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeSerialization, key, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeTimeout, key, message, cause)
}

// NewOperationError creates an error for a failed command on a live connection
func NewOperationError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeOperation, key, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeValidation, "", message, cause)
}

func isType(err error, t ErrorType) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Type == t
	}
	return false
}

// IsConnectionError checks if the error is a connection error
func IsConnectionError(err error) bool { return isType(err, ErrorTypeConnection) }

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool { return isType(err, ErrorTypeTimeout) }

// IsSerializationError checks if the error is a serialization error
func IsSerializationError(err error) bool { return isType(err, ErrorTypeSerialization) }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// ClassifyError wraps a raw client error into the cache error taxonomy.
// Errors that already are a *CacheError are returned unchanged.
func ClassifyError(err error, key, operation string) error {
	if err == nil {
		return nil
	}

	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return err
	}

	switch {
	case isTimeout(err):
		return NewTimeoutError(key, fmt.Sprintf("%s timed out", operation), err)
	case isConnectionFailure(err):
		ce := NewConnectionError(fmt.Sprintf("%s failed", operation), err)
		ce.Key = key
		return ce
	default:
		return NewOperationError(key, fmt.Sprintf("%s failed", operation), err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}

func isConnectionFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	errorStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"broken pipe",
		"client is closed",
		"clusterdown",
	} {
		if strings.Contains(errorStr, s) {
			return true
		}
	}
	return false
}
