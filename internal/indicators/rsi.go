package indicators

import (
	"fmt"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// RSI is the Relative Strength Index with Wilder smoothing
type RSI struct {
	period    int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	count     int
	lastValue float64
}

// NewRSI creates a new RSI instance with the given period
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{period: period, lastValue: 50}
}

// Update feeds the next close. Until period changes are seen the averages
// are simple means; afterwards they are smoothed.
func (r *RSI) Update(bar types.Bar) float64 {
	r.count++
	if r.count == 1 {
		r.prevClose = bar.Close
		return r.lastValue
	}

	change := bar.Close - r.prevClose
	r.prevClose = bar.Close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	n := float64(r.period)
	if changes := r.count - 1; changes <= r.period {
		r.avgGain += (gain - r.avgGain) / float64(changes)
		r.avgLoss += (loss - r.avgLoss) / float64(changes)
	} else {
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}

	switch {
	case r.avgGain == 0 && r.avgLoss == 0:
		r.lastValue = 50
	case r.avgLoss == 0:
		r.lastValue = 100
	default:
		r.lastValue = 100 - 100/(1+r.avgGain/r.avgLoss)
	}
	return r.lastValue
}

// Calculate computes the RSI over data from a clean state
func (r *RSI) Calculate(data []types.Bar) (float64, error) {
	if len(data) < r.period+1 {
		return 0, NewInsufficientDataError(r.GetName(), len(data), r.period+1)
	}
	r.ResetState()
	for _, b := range data {
		r.Update(b)
	}
	return r.lastValue, nil
}

// GetLastValue returns the last RSI, 50 before any change was seen
func (r *RSI) GetLastValue() float64 {
	return r.lastValue
}

// IsReady reports whether period changes were seen
func (r *RSI) IsReady() bool {
	return r.count > r.period
}

// GetName returns the indicator name
func (r *RSI) GetName() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

// GetRequiredPeriods returns the minimum number of periods needed
func (r *RSI) GetRequiredPeriods() int {
	return r.period + 1
}

// ResetState resets the RSI internal state
func (r *RSI) ResetState() {
	*r = RSI{period: r.period, lastValue: 50}
}
