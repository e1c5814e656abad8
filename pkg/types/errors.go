// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrDirectoryUnavailable indicates a directory could not be opened for enumeration
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrInvalidThreadCount indicates a non-positive or non-numeric thread count
	ErrInvalidThreadCount = errors.New("thread count must be a positive integer")

	// ErrInvalidSortFlag indicates a sort flag other than -name or -size
	ErrInvalidSortFlag = errors.New("sort flag must be -name or -size")

	// ErrInvalidPartition indicates impossible partition arguments
	ErrInvalidPartition = errors.New("invalid partition arguments")

	// ErrDispatcherClosed indicates the dispatcher has already broadcast shutdown
	ErrDispatcherClosed = errors.New("dispatcher is closed")

	// ErrPoolNotRunning indicates the worker pool was not started or is already closed
	ErrPoolNotRunning = errors.New("worker pool is not running")

	// ErrInvalidCommand indicates a line the command session could not interpret
	ErrInvalidCommand = errors.New("invalid command")
)

// TaskError represents a failure while processing one image
type TaskError struct {
	// Operation is the step that failed (decode, blur, encode, ...)
	Operation string

	// Path is the file the operation was working on
	Path string

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewTaskError creates a new task error
func NewTaskError(operation, path string, cause error) *TaskError {
	return &TaskError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	e.Context[key] = value
	return e
}
