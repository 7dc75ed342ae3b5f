package risk

import (
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Action is the outcome of one risk evaluation
type Action int

const (
	ActionSkip Action = iota
	ActionHold
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "HOLD"
	case ActionClose:
		return "CLOSE"
	default:
		return "SKIP"
	}
}

// PartialFill is one partial close made while evaluating a bar
type PartialFill struct {
	Price      float64
	Quantity   float64
	ProfitLoss float64
	Reason     string
}

// Decision reports what Evaluate did to the position
type Decision struct {
	Action Action
	Reason string
	// Price and ProfitLoss describe the full close when Action is ActionClose.
	Price      float64
	ProfitLoss float64
	Partials   []PartialFill

	// Stop is the effective protective stop after the bar.
	Stop      float64
	HasStop   bool
	StopMoved bool
}

// Closed reports whether the position was fully closed.
func (d Decision) Closed() bool {
	return d.Action == ActionClose
}

// Env carries per-bar inputs that live outside the trading state
type Env struct {
	BarIndex int
	// ATR is the current ATR of the instrument; zero disables ATR trailing.
	ATR float64
}

// ExitContext resolves the bar extremes relative to the position side
type ExitContext struct {
	Side      types.TradeSide
	Entry     float64
	Close     float64
	Adverse   float64
	Favorable float64
}

// NewExitContext builds the exit view of bar for a position on side.
func NewExitContext(side types.TradeSide, entry float64, bar types.Bar) ExitContext {
	c := ExitContext{Side: side, Entry: entry, Close: bar.Close, Adverse: bar.Low, Favorable: bar.High}
	if side == types.Short {
		c.Adverse, c.Favorable = bar.High, bar.Low
	}
	return c
}

// HitsStop reports whether the adverse extreme touched stop.
func (c ExitContext) HitsStop(stop float64) bool {
	if c.Side == types.Long {
		return c.Adverse <= stop
	}
	return c.Adverse >= stop
}

// Reaches reports whether the favourable extreme touched target.
func (c ExitContext) Reaches(target float64) bool {
	if c.Side == types.Long {
		return c.Favorable >= target
	}
	return c.Favorable <= target
}

// Exceeds is Reaches with a strict comparison.
func (c ExitContext) Exceeds(target float64) bool {
	if c.Side == types.Long {
		return c.Favorable > target
	}
	return c.Favorable < target
}

// Return is the signed return of price against entry, 0 for a zero entry.
func (c ExitContext) Return(price float64) float64 {
	if c.Entry <= 0 {
		return 0
	}
	return (price - c.Entry) / c.Entry * c.Side.Sign()
}
