// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrPoolClosed indicates the worker pool is closed
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolNotStarted indicates the worker pool has not been started
	ErrPoolNotStarted = errors.New("worker pool is not started")

	// ErrRequestTimeout indicates a request exceeded the configured timeout
	ErrRequestTimeout = errors.New("request timeout exceeded")

	// ErrWorkerCrashed indicates the handler panicked or returned an error
	ErrWorkerCrashed = errors.New("worker crashed")

	// ErrForcedShutdown indicates workers had to be killed past the grace period
	ErrForcedShutdown = errors.New("forced shutdown after grace period")
)

// ConfigError reports invalid configuration. It is fatal and surfaced
// before the listening socket is bound.
type ConfigError struct {
	Field string
	Value interface{}
	Cause error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid config %s=%v: %v", e.Field, e.Value, e.Cause)
	}
	return fmt.Sprintf("invalid config %s=%v", e.Field, e.Value)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error
func NewConfigError(field string, value interface{}, cause error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Cause: cause}
}

// BindError reports a failure to bind the listening socket. It is fatal.
type BindError struct {
	Address string
	Cause   error
}

// Error implements the error interface
func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Address, e.Cause)
}

// Unwrap returns the underlying error
func (e *BindError) Unwrap() error {
	return e.Cause
}

// NewBindError creates a new bind error
func NewBindError(address string, cause error) *BindError {
	return &BindError{Address: address, Cause: cause}
}

// WorkerStartError reports a worker that failed to initialize. Startup
// retries once per worker; a second failure makes this fatal.
type WorkerStartError struct {
	WorkerID int
	Attempts int
	Cause    error
}

// Error implements the error interface
func (e *WorkerStartError) Error() string {
	return fmt.Sprintf("worker %d failed to start after %d attempts: %v", e.WorkerID, e.Attempts, e.Cause)
}

// Unwrap returns the underlying error
func (e *WorkerStartError) Unwrap() error {
	return e.Cause
}

// NewWorkerStartError creates a new worker start error
func NewWorkerStartError(workerID, attempts int, cause error) *WorkerStartError {
	return &WorkerStartError{WorkerID: workerID, Attempts: attempts, Cause: cause}
}

// WorkerError represents a per-worker failure (timeout or crash). It is
// internal: the affected connection is closed abruptly and the worker is
// replaced, other workers are unaffected.
type WorkerError struct {
	// Op is the operation during which the failure occurred
	Op string

	// WorkerID identifies the worker
	WorkerID int

	// Cause is the underlying error
	Cause error

	// Context contains failure context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %s: %v", e.WorkerID, e.Op, e.Cause)
}

// Unwrap returns the underlying error
func (e *WorkerError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *WorkerError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewWorkerError creates a new worker error
func NewWorkerError(op string, workerID int, cause error) *WorkerError {
	return &WorkerError{
		Op:       op,
		WorkerID: workerID,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// WithContext adds failure context
func (e *WorkerError) WithContext(key string, value interface{}) *WorkerError {
	e.Context[key] = value
	return e
}
