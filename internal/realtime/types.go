// Package realtime runs the live counterpart of the backtest risk policy.
// Candle, position and risk-config events are fed through an unbounded queue
// to a single consumer that owns all position state.
package realtime

import (
	"fmt"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Event is one input of the engine: *CandleEvent, *PositionEvent or *RiskConfigEvent.
type Event interface {
	Kind() string
}

// Key identifies one strategy running on one instrument.
type Key struct {
	StrategyID int64
	InstID     string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.StrategyID, k.InstID)
}

// CandleEvent is a market candle update. Only confirmed candles advance the
// per-instrument bar index.
type CandleEvent struct {
	InstID string
	Bar    types.Bar
}

func (*CandleEvent) Kind() string { return "candle" }

// PositionSnapshot is the live position of a strategy as reported by the
// execution side.
type PositionSnapshot struct {
	StrategyID int64
	InstID     string
	Side       types.TradeSide
	EntryPrice float64
	Size       float64
	// InitialStop is the stop used to size 1R; nil falls back to max_loss_percent.
	InitialStop *float64
	// OrderID is the exchange order carrying the protective stop.
	OrderID string
	// IsOpen false means the position was closed and its state must be dropped.
	IsOpen bool
}

// Key returns the strategy/instrument key of the snapshot.
func (p PositionSnapshot) Key() Key {
	return Key{StrategyID: p.StrategyID, InstID: p.InstID}
}

// PositionEvent carries a position snapshot.
type PositionEvent struct {
	Snapshot PositionSnapshot
}

func (*PositionEvent) Kind() string { return "position" }

// RiskConfigEvent hot-swaps the risk configuration of a strategy.
type RiskConfigEvent struct {
	StrategyID int64
	InstID     string
	Risk       trading.RiskConfig
}

func (*RiskConfigEvent) Kind() string { return "risk_config" }

// Key returns the strategy/instrument key of the update.
func (e *RiskConfigEvent) Key() Key {
	return Key{StrategyID: e.StrategyID, InstID: e.InstID}
}
