package indicators

import (
	"fmt"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// EMA represents the Exponential Moving Average of closes
type EMA struct {
	period    int
	alpha     float64
	lastValue float64
	seedSum   float64
	count     int
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

// Update feeds the next close. The first period closes seed the EMA with
// their simple average.
func (e *EMA) Update(bar types.Bar) float64 {
	return e.UpdateSingle(bar.Close)
}

// UpdateSingle feeds one raw value
func (e *EMA) UpdateSingle(value float64) float64 {
	e.count++
	if e.count <= e.period {
		e.seedSum += value
		e.lastValue = e.seedSum / float64(e.count)
		return e.lastValue
	}
	e.lastValue = value*e.alpha + e.lastValue*(1-e.alpha)
	return e.lastValue
}

// Calculate computes the EMA over data from a clean state
func (e *EMA) Calculate(data []types.Bar) (float64, error) {
	if len(data) < e.period {
		return 0, NewInsufficientDataError(e.GetName(), len(data), e.period)
	}
	e.ResetState()
	for _, b := range data {
		e.Update(b)
	}
	return e.lastValue, nil
}

// IsReady reports whether the seed window is complete
func (e *EMA) IsReady() bool {
	return e.count >= e.period
}

// GetName returns the indicator name
func (e *EMA) GetName() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

// GetRequiredPeriods returns the minimum number of periods needed
func (e *EMA) GetRequiredPeriods() int {
	return e.period
}

// GetLastValue returns the last calculated EMA value
func (e *EMA) GetLastValue() float64 {
	return e.lastValue
}

// ResetState resets the EMA internal state for new data periods
func (e *EMA) ResetState() {
	e.lastValue = 0
	e.seedSum = 0
	e.count = 0
}
