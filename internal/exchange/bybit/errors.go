package bybit

import (
	"errors"
	"fmt"
	"net/http"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
)

// BybitError represents a Bybit API error with additional context
type BybitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BybitError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Bybit API error %d: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("Bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit error codes
const (
	ErrCodeInvalidAPIKey     = 10003
	ErrCodeInvalidSignature  = 10004
	ErrCodeInvalidTimestamp  = 10005
	ErrCodeRateLimitExceeded = 10006
	ErrCodeOrderNotFound     = 110001
	ErrCodeSymbolNotFound    = 110009
	ErrCodeStopNotModified   = 34040
)

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	var bybitErr *BybitError
	if !errors.As(err, &bybitErr) {
		return false
	}
	switch bybitErr.Code {
	case ErrCodeRateLimitExceeded, ErrCodeInvalidTimestamp,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsAuthenticationError checks if the error is related to authentication
func IsAuthenticationError(err error) bool {
	var bybitErr *BybitError
	if errors.As(err, &bybitErr) {
		switch bybitErr.Code {
		case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature:
			return true
		}
	}
	return false
}

// IsRateLimitError checks if the error is due to rate limiting
func IsRateLimitError(err error) bool {
	var bybitErr *BybitError
	return errors.As(err, &bybitErr) && bybitErr.Code == ErrCodeRateLimitExceeded
}

// NewBybitError creates a new BybitError
func NewBybitError(code int, message string, details ...string) *BybitError {
	err := &BybitError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WrapAPIError wraps a generic error with additional context
func WrapAPIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var bybitErr *BybitError
	if errors.As(err, &bybitErr) {
		return &BybitError{Code: bybitErr.Code, Message: bybitErr.Message, Details: "operation: " + operation}
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}

// ParseAPIError extracts error information from the API response
func ParseAPIError(retCode int, retMsg string) error {
	if retCode == 0 {
		return nil
	}
	return NewBybitError(retCode, retMsg)
}

// toPipelineError classifies an API failure for callers outside this package.
func toPipelineError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var bybitErr *BybitError
	if !errors.As(err, &bybitErr) {
		return pipeerrors.Classify(err, "bybit", operation)
	}
	category := pipeerrors.ErrorCategoryExchange
	switch {
	case IsRateLimitError(err):
		category = pipeerrors.ErrorCategoryRateLimit
	case IsAuthenticationError(err):
		category = pipeerrors.ErrorCategoryConfiguration
	}
	return pipeerrors.Wrap(err, category, "bybit", operation).WithRetryable(IsRetryableError(err))
}
