// Package strategy defines the signal-generator contract of the backtest
// pipeline and the bundled strategies.
package strategy

import (
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// SignalGenerator produces one signal per bar. S is the mutable indicator
// state, usually a pointer, and V the indicator values derived from it for
// the current bar.
type SignalGenerator[S any, V any] interface {
	// Name identifies the strategy in logs and records
	Name() string

	// MinDataLength is the exact window length passed to GenerateSignal
	MinDataLength() int

	// InitIndicatorState returns a fresh state for one run
	InitIndicatorState() S

	// Advance feeds the next bar to the state and returns the current values
	Advance(state S, bar types.Bar) V

	// GenerateSignal evaluates the window, whose last bar is the current one
	GenerateSignal(window []types.Bar, values V, cfg trading.RiskConfig) trading.SignalResult
}

// Filter reasons emitted by the bundled strategies
const (
	ReasonRSIOverbought = "RSI_OVERBOUGHT"
	ReasonRSIOversold   = "RSI_OVERSOLD"
	ReasonVolumeTooLow  = "VOLUME_TOO_LOW"
)
