package risk

import (
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Evaluator applies a risk policy to the open position of a trading state
type Evaluator interface {
	Evaluate(cfg trading.RiskConfig, state *trading.TradingState, signal *trading.SignalResult, bar types.Bar, env Env) Decision
}

// EvaluatorFunc adapts a function to the Evaluator interface
type EvaluatorFunc func(cfg trading.RiskConfig, state *trading.TradingState, signal *trading.SignalResult, bar types.Bar, env Env) Decision

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(cfg trading.RiskConfig, state *trading.TradingState, signal *trading.SignalResult, bar types.Bar, env Env) Decision {
	return f(cfg, state, signal, bar, env)
}

// Default is the policy shared by the backtest and the realtime engine.
var Default Evaluator = EvaluatorFunc(Evaluate)
