// Package errors provides the strategies used to decide what happens after a
// per-item failure (one transform or one encode) while processing an image.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrorHandler decides whether a per-item failure stops the current task
type ErrorHandler interface {
	// HandleError handles the error, returns processed error or nil if handled
	HandleError(ctx context.Context, errCtx *ErrorContext) error

	// Name returns the name of the error handler
	Name() string

	// CanHandle determines if it can handle specific type of error
	CanHandle(err error) bool
}

// ErrorContext defines context information when error occurs
type ErrorContext struct {
	// Error that occurred
	Error error

	// OperationName is the step that failed, e.g. "blur" or "encode"
	OperationName string

	// Path is the file being processed
	Path string

	// Timestamp when the error occurred
	Timestamp time.Time

	// Metadata contains additional metadata information
	Metadata map[string]interface{}
}

// NewErrorContext creates a new error context
func NewErrorContext(err error, operationName, path string) *ErrorContext {
	return &ErrorContext{
		Error:         err,
		OperationName: operationName,
		Path:          path,
		Timestamp:     time.Now(),
		Metadata:      make(map[string]interface{}),
	}
}

// ErrorHandlerStrategy defines error handling strategy types
type ErrorHandlerStrategy int

const (
	// ContinueOnErrorStrategy logs the failure and moves on to the next step
	ContinueOnErrorStrategy ErrorHandlerStrategy = iota
	// FailFastStrategy abandons the rest of the task on the first failure
	FailFastStrategy
)

// String returns the string representation of the strategy
func (s ErrorHandlerStrategy) String() string {
	switch s {
	case FailFastStrategy:
		return "fail-fast"
	case ContinueOnErrorStrategy:
		return "continue"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name as used in configuration
func ParseStrategy(name string) (ErrorHandlerStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "continue", "continue-on-error":
		return ContinueOnErrorStrategy, nil
	case "fail-fast", "failfast":
		return FailFastStrategy, nil
	default:
		return ContinueOnErrorStrategy, fmt.Errorf("unknown error strategy %q", name)
	}
}

// NewHandler builds the handler for a strategy
func NewHandler(strategy ErrorHandlerStrategy, logger *log.Entry) ErrorHandler {
	if strategy == FailFastStrategy {
		return NewFailFastHandler(logger)
	}
	return NewContinueOnErrorHandler(&ContinueOnErrorConfig{Logger: logger, LogErrors: true})
}

// FailFastHandler implements fail-fast error handling
type FailFastHandler struct {
	name   string
	logger *log.Entry
}

// NewFailFastHandler creates a new fail-fast handler
func NewFailFastHandler(logger *log.Entry) *FailFastHandler {
	return &FailFastHandler{
		name:   "FailFast",
		logger: logger,
	}
}

// HandleError implements the ErrorHandler interface
func (h *FailFastHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	if h.logger != nil {
		h.logger.WithError(errCtx.Error).WithFields(log.Fields{
			"operation": errCtx.OperationName,
			"path":      errCtx.Path,
		}).Error("aborting task")
	}
	return errCtx.Error
}

// Name returns the handler name
func (h *FailFastHandler) Name() string {
	return h.name
}

// CanHandle checks if it can handle errors (fail-fast handler can handle all errors)
func (h *FailFastHandler) CanHandle(err error) bool {
	return true
}

// ContinueOnErrorHandler logs errors and lets the task continue
type ContinueOnErrorHandler struct {
	name      string
	fatal     []error
	logErrors bool
	logger    *log.Entry
}

// ContinueOnErrorConfig contains configuration for continue-on-error handler
type ContinueOnErrorConfig struct {
	// FatalErrors are errors that must not be swallowed (matched with errors.Is)
	FatalErrors []error
	// LogErrors determines whether to log ignored errors
	LogErrors bool
	// Logger receives ignored errors; the standard logger is used when nil
	Logger *log.Entry
}

// NewContinueOnErrorHandler creates a continue-on-error handler
func NewContinueOnErrorHandler(config *ContinueOnErrorConfig) *ContinueOnErrorHandler {
	handler := &ContinueOnErrorHandler{
		name:      "ContinueOnError",
		logErrors: true,
	}

	if config != nil {
		handler.logErrors = config.LogErrors
		handler.logger = config.Logger
		for _, err := range config.FatalErrors {
			if err != nil {
				handler.fatal = append(handler.fatal, err)
			}
		}
	}
	if handler.logger == nil {
		handler.logger = log.NewEntry(log.StandardLogger())
	}

	return handler
}

// HandleError implements the ErrorHandler interface
func (h *ContinueOnErrorHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	if !h.CanHandle(errCtx.Error) {
		return errCtx.Error
	}

	if h.logErrors {
		h.logger.WithError(errCtx.Error).WithFields(log.Fields{
			"operation": errCtx.OperationName,
			"path":      errCtx.Path,
		}).Warn("step failed, continuing")
	}

	// handled
	return nil
}

// Name returns the handler name
func (h *ContinueOnErrorHandler) Name() string {
	return h.name
}

// CanHandle reports false for errors configured as fatal
func (h *ContinueOnErrorHandler) CanHandle(err error) bool {
	for _, fatal := range h.fatal {
		if stderrors.Is(err, fatal) {
			return false
		}
	}
	return true
}
