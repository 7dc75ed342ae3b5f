package indicators

import (
	"fmt"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// SMA is a simple moving average over a ring buffer. The source selects the
// bar field that is averaged.
type SMA struct {
	period int
	source func(types.Bar) float64
	window []float64
	next   int
	filled int
	sum    float64
}

// Close and Volume select the averaged field of an SMA
func Close(b types.Bar) float64  { return b.Close }
func Volume(b types.Bar) float64 { return b.Volume }

// NewSMA creates an SMA of closes
func NewSMA(period int) *SMA {
	return NewSMAOf(period, Close)
}

// NewSMAOf creates an SMA of an arbitrary bar field
func NewSMAOf(period int, source func(types.Bar) float64) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{period: period, source: source, window: make([]float64, period)}
}

// Update feeds the next bar
func (s *SMA) Update(bar types.Bar) float64 {
	v := s.source(bar)
	if s.filled == s.period {
		s.sum -= s.window[s.next]
	} else {
		s.filled++
	}
	s.window[s.next] = v
	s.sum += v
	s.next = (s.next + 1) % s.period
	return s.GetLastValue()
}

// Calculate computes the SMA of the last period bars of data
func (s *SMA) Calculate(data []types.Bar) (float64, error) {
	if len(data) < s.period {
		return 0, NewInsufficientDataError(s.GetName(), len(data), s.period)
	}
	s.ResetState()
	for _, b := range data[len(data)-s.period:] {
		s.Update(b)
	}
	return s.GetLastValue(), nil
}

// GetLastValue returns the average of the bars seen so far in the window
func (s *SMA) GetLastValue() float64 {
	if s.filled == 0 {
		return 0
	}
	return s.sum / float64(s.filled)
}

// IsReady reports whether the window is full
func (s *SMA) IsReady() bool {
	return s.filled == s.period
}

// GetName returns the indicator name
func (s *SMA) GetName() string {
	return fmt.Sprintf("SMA(%d)", s.period)
}

// GetRequiredPeriods returns the minimum number of periods needed
func (s *SMA) GetRequiredPeriods() int {
	return s.period
}

// ResetState clears the window
func (s *SMA) ResetState() {
	for i := range s.window {
		s.window[i] = 0
	}
	s.next, s.filled, s.sum = 0, 0, 0
}
