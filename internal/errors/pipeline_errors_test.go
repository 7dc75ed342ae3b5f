package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorFormatting(t *testing.T) {
	err := NewValidationError("bar", "NewBar", "low above open").WithContext("ts", int64(10))
	assert.Contains(t, err.Error(), "[VALIDATION:bar] NewBar: low above open")
	assert.Contains(t, err.Error(), "ts:10")
	assert.False(t, err.IsRetryable())
}

func TestWrapKeepsUnderlying(t *testing.T) {
	base := fmt.Errorf("disk full")
	err := NewPersistenceError("storage", "SaveResult", base)

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, base))
	assert.True(t, IsCategory(err, ErrorCategoryPersistence))
	assert.Nil(t, Wrap(nil, ErrorCategoryData, "x", "y"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{"timeout", fmt.Errorf("context deadline exceeded"), ErrorCategoryTimeout, true},
		{"rate limit", fmt.Errorf("Too Many Requests"), ErrorCategoryRateLimit, true},
		{"network", fmt.Errorf("dial tcp: connection refused"), ErrorCategoryNetwork, true},
		{"other", fmt.Errorf("retCode=10001 params error"), ErrorCategoryExchange, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err, "bybit", "GetKlines")
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestClassifyPassesThroughPipelineErrors(t *testing.T) {
	orig := NewInvariantError("trading", "ClosePosition", "no open position")
	wrapped := fmt.Errorf("run failed: %w", orig)
	assert.Same(t, orig, Classify(wrapped, "x", "y"))
}
