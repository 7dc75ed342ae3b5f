package strategy

import (
	"fmt"

	"github.com/ducminhle1904/signal-backtest/internal/indicators"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// BreakoutConfig parameterises the channel breakout strategy
type BreakoutConfig struct {
	Lookback          int
	ATRPeriod         int
	PullbackATR       float64 // 0 enters at the close
	ATRStopMultiplier float64
	ExitATRMultiple   float64 // bar range beyond this many ATRs closes the position
}

// DefaultBreakoutConfig returns the default parameters
func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		Lookback:          20,
		ATRPeriod:         indicators.DefaultATRPeriod,
		PullbackATR:       0.5,
		ATRStopMultiplier: 2,
		ExitATRMultiple:   4,
	}
}

// BreakoutConfigFromParams overrides the defaults with params
func BreakoutConfigFromParams(params map[string]interface{}) (BreakoutConfig, error) {
	c := DefaultBreakoutConfig()
	c.Lookback = paramInt(params, "lookback", c.Lookback)
	c.ATRPeriod = paramInt(params, "atr_period", c.ATRPeriod)
	c.PullbackATR = paramFloat(params, "pullback_atr", c.PullbackATR)
	c.ATRStopMultiplier = paramFloat(params, "atr_stop_multiplier", c.ATRStopMultiplier)
	c.ExitATRMultiple = paramFloat(params, "exit_atr_multiple", c.ExitATRMultiple)
	if c.Lookback < 2 || c.ATRPeriod < 1 {
		return c, fmt.Errorf("breakout: lookback must be >= 2 and atr_period positive")
	}
	if c.PullbackATR < 0 || c.ATRStopMultiplier <= 0 {
		return c, fmt.Errorf("breakout: pullback_atr must be >= 0 and atr_stop_multiplier positive")
	}
	return c, nil
}

// Breakout signals when the close leaves the channel of the previous
// Lookback bars
type Breakout struct {
	cfg BreakoutConfig
}

// NewBreakout creates the strategy
func NewBreakout(cfg BreakoutConfig) *Breakout {
	return &Breakout{cfg: cfg}
}

// BreakoutState is the indicator state of one run
type BreakoutState struct {
	atr *indicators.ATR
}

// BreakoutValues are the indicator values at the current bar
type BreakoutValues struct {
	ATR     float64
	PrevATR float64
	Ready   bool
}

func (s *Breakout) Name() string { return NameBreakout }

func (s *Breakout) MinDataLength() int {
	if s.cfg.ATRPeriod+2 > s.cfg.Lookback+1 {
		return s.cfg.ATRPeriod + 2
	}
	return s.cfg.Lookback + 1
}

func (s *Breakout) InitIndicatorState() *BreakoutState {
	return &BreakoutState{atr: indicators.NewATR(s.cfg.ATRPeriod)}
}

func (s *Breakout) Advance(st *BreakoutState, bar types.Bar) BreakoutValues {
	v := BreakoutValues{PrevATR: st.atr.GetLastValue()}
	prevReady := st.atr.IsReady()
	v.ATR = st.atr.Update(bar)
	v.Ready = prevReady
	return v
}

func (s *Breakout) GenerateSignal(window []types.Bar, v BreakoutValues, _ trading.RiskConfig) trading.SignalResult {
	last := window[len(window)-1]
	sig := trading.SignalResult{OpenPrice: last.Close, Timestamp: last.Timestamp, ATR: v.ATR}
	if !v.Ready || len(window) < s.cfg.Lookback+1 {
		return sig
	}

	if s.cfg.ExitATRMultiple > 0 && v.PrevATR > 0 && last.Range() > s.cfg.ExitATRMultiple*v.PrevATR {
		sig.Direction = trading.DirectionClose
		sig.SignalValue = fmt.Sprintf("range=%.4f atr=%.4f", last.Range(), v.PrevATR)
		return sig
	}

	prior := window[len(window)-1-s.cfg.Lookback : len(window)-1]
	hi, lo := prior[0].High, prior[0].Low
	for _, b := range prior[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}

	var side types.TradeSide
	switch {
	case last.Close > hi:
		side = types.Long
		sig.ShouldBuy = true
	case last.Close < lo:
		side = types.Short
		sig.ShouldSell = true
	default:
		return sig
	}
	sign := side.Sign()

	entry := last.Close
	if s.cfg.PullbackATR > 0 && v.ATR > 0 {
		entry = last.Close - sign*s.cfg.PullbackATR*v.ATR
		sig.BestOpenPrice = trading.Price(entry)
	}
	if side == types.Long {
		sig.SignalKlineStopLoss = trading.Price(lo)
	} else {
		sig.SignalKlineStopLoss = trading.Price(hi)
	}
	sig.StopLossSource = "channel"
	sig.ATRStopLossPrice = trading.Price(entry - sign*s.cfg.ATRStopMultiplier*v.ATR)
	sig.SignalResult = side.String()
	sig.SignalValue = fmt.Sprintf("high=%.4f low=%.4f atr=%.4f", hi, lo, v.ATR)
	return sig
}
