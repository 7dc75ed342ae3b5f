package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Errors that abort a run or a command
	ErrorCategoryInvariant     ErrorCategory = "INVARIANT"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryValidation    ErrorCategory = "VALIDATION"

	// I/O errors owned by the collaborators around the core
	ErrorCategoryData        ErrorCategory = "DATA"
	ErrorCategoryExchange    ErrorCategory = "EXCHANGE"
	ErrorCategoryNetwork     ErrorCategory = "NETWORK"
	ErrorCategoryTimeout     ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit   ErrorCategory = "RATE_LIMIT"
	ErrorCategoryPersistence ErrorCategory = "PERSISTENCE"
)

// PipelineError represents a categorized error with context
type PipelineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
	if len(e.Context) > 0 {
		fmt.Fprintf(&b, " %v", e.Context)
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, ": %v", e.Underlying)
	}
	return b.String()
}

// Unwrap returns the underlying error for error unwrapping
func (e *PipelineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *PipelineError) IsRetryable() bool {
	return e.Retryable
}

// New creates a new categorized error
func New(category ErrorCategory, component, operation, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with pipeline error context
func Wrap(err error, category ErrorCategory, component, operation string) *PipelineError {
	if err == nil {
		return nil
	}
	return &PipelineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *PipelineError) WithRetryable(retryable bool) *PipelineError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryRateLimit:
		return true
	default:
		return false
	}
}

// Classify attempts to categorize a generic error coming from an I/O collaborator
func Classify(err error, component, operation string) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "dns") || strings.Contains(msg, "dial") || strings.Contains(msg, "eof"):
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	}
	return Wrap(err, ErrorCategoryExchange, component, operation)
}

// IsCategory reports whether err carries a PipelineError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Category == category
	}
	return false
}

// IsRetryable reports whether err carries a retryable PipelineError
func IsRetryable(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Common error constructors
func NewValidationError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryValidation, component, operation, message)
}

func NewConfigurationError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryConfiguration, component, operation, message)
}

// NewInvariantError is raised (as a panic value) when the pipeline is mis-sequenced,
// e.g. closing a position that does not exist.
func NewInvariantError(component, operation, message string) *PipelineError {
	return New(ErrorCategoryInvariant, component, operation, message)
}

func NewDataError(component, operation string, err error) *PipelineError {
	return Wrap(err, ErrorCategoryData, component, operation)
}

func NewExchangeError(component, operation string, err error) *PipelineError {
	return Classify(err, component, operation)
}

func NewPersistenceError(component, operation string, err error) *PipelineError {
	return Wrap(err, ErrorCategoryPersistence, component, operation)
}
