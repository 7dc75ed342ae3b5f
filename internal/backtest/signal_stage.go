package backtest

import (
	"github.com/ducminhle1904/signal-backtest/internal/strategy"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Buffer sizing of the signal stage
const (
	DefaultWarmup     = 500
	minBufferCapacity = 1024
)

// ReasonSignalClose is the close reason of an explicit close signal.
const ReasonSignalClose = "signal close"

// SignalStage keeps the candle buffer and the indicator state of a generator
// and asks it for a signal once the warm-up is over.
type SignalStage[S any, V any] struct {
	gen      strategy.SignalGenerator[S, V]
	state    S
	buffer   []types.Bar
	minLen   int
	capacity int
}

// NewSignalStage creates the stage for gen.
func NewSignalStage[S any, V any](gen strategy.SignalGenerator[S, V]) *SignalStage[S, V] {
	minLen := gen.MinDataLength()
	if minLen < 1 {
		minLen = 1
	}
	capacity := 2 * minLen
	if capacity < minBufferCapacity {
		capacity = minBufferCapacity
	}
	s := &SignalStage[S, V]{gen: gen, minLen: minLen, capacity: capacity}
	s.Reset()
	return s
}

func (s *SignalStage[S, V]) Name() string { return "signal" }

// Reset drops the buffer and starts a fresh indicator state.
func (s *SignalStage[S, V]) Reset() {
	s.state = s.gen.InitIndicatorState()
	s.buffer = make([]types.Bar, 0, s.capacity)
}

func (s *SignalStage[S, V]) Process(ctx *Context) StageResult {
	s.push(ctx.Bar)
	values := s.gen.Advance(s.state, ctx.Bar)

	if len(s.buffer) < s.minLen || ctx.Index < ctx.Warmup {
		return Skip()
	}

	window := s.buffer[len(s.buffer)-s.minLen:]
	sig := s.gen.GenerateSignal(window, values, ctx.Risk)
	if sig.Timestamp == 0 {
		sig.Timestamp = ctx.Bar.Timestamp
	}
	ctx.Signal = &sig
	ctx.Filtered = sig.IsFiltered()
	ctx.FilterReasons = sig.FilterReasons

	if sig.Direction == trading.DirectionClose && ctx.HasPosition() {
		return Exit(ctx.Bar.Close, ReasonSignalClose)
	}
	return Continue()
}

// push appends bar, evicting the oldest bars back down to the window length
// once the buffer is full.
func (s *SignalStage[S, V]) push(bar types.Bar) {
	if len(s.buffer) >= s.capacity {
		keep := s.minLen - 1
		copy(s.buffer, s.buffer[len(s.buffer)-keep:])
		s.buffer = s.buffer[:keep]
	}
	s.buffer = append(s.buffer, bar)
}
