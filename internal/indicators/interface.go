// Package indicators provides streaming technical indicators fed one bar at a
// time, and the per-run cache that owns them.
package indicators

import (
	"fmt"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Indicator is a streaming indicator. Update consumes the next bar in time
// order; Calculate recomputes from scratch over a window.
type Indicator interface {
	Update(bar types.Bar) float64
	Calculate(data []types.Bar) (float64, error)
	GetLastValue() float64
	IsReady() bool
	GetName() string
	GetRequiredPeriods() int
	ResetState()
}

// NewInsufficientDataError reports a window shorter than an indicator needs.
func NewInsufficientDataError(name string, have, need int) error {
	return pipeerrors.New(pipeerrors.ErrorCategoryData, "indicators", name,
		fmt.Sprintf("insufficient data: have %d bars, need %d", have, need))
}
