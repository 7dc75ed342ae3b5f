package indicators

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// ATR represents the Average True Range technical indicator.
// The true range is averaged with Wilder smoothing after a simple-mean seed.
type ATR struct {
	period    int
	lastClose float64
	count     int
	lastValue float64
}

// NewATR creates a new ATR indicator
func NewATR(period int) *ATR {
	if period < 1 {
		period = 1
	}
	return &ATR{period: period}
}

// Update feeds the next bar
func (a *ATR) Update(bar types.Bar) float64 {
	tr := bar.High - bar.Low
	if a.count > 0 {
		tr = TrueRange(bar, a.lastClose)
	}
	a.count++
	a.lastClose = bar.Close

	if a.count <= a.period {
		a.lastValue += (tr - a.lastValue) / float64(a.count)
	} else {
		n := float64(a.period)
		a.lastValue = (a.lastValue*(n-1) + tr) / n
	}
	return a.lastValue
}

// TrueRange = max(High-Low, |High-PrevClose|, |Low-PrevClose|)
func TrueRange(bar types.Bar, prevClose float64) float64 {
	hl := bar.High - bar.Low
	hc := math.Abs(bar.High - prevClose)
	lc := math.Abs(bar.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// Calculate calculates the ATR over data from a clean state
func (a *ATR) Calculate(data []types.Bar) (float64, error) {
	if len(data) < a.GetRequiredPeriods() {
		return 0, NewInsufficientDataError(a.GetName(), len(data), a.GetRequiredPeriods())
	}
	a.ResetState()
	for _, b := range data {
		a.Update(b)
	}
	return a.lastValue, nil
}

// GetName returns the indicator name
func (a *ATR) GetName() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

// GetRequiredPeriods returns the minimum number of periods needed
func (a *ATR) GetRequiredPeriods() int {
	return a.period + 1
}

// IsReady reports whether the seed window is complete
func (a *ATR) IsReady() bool {
	return a.count > a.period
}

// GetLastValue returns the last calculated ATR value
func (a *ATR) GetLastValue() float64 {
	return a.lastValue
}

// ResetState resets the ATR internal state for new data periods
func (a *ATR) ResetState() {
	a.lastClose, a.count, a.lastValue = 0, 0, 0
}
