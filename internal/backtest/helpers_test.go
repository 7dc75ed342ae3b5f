package backtest

import (
	"math"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

const hourMillis = int64(3_600_000)

// scripted emits the signals it was given at the matching bar timestamps and
// records every window it was shown.
type scripted struct {
	minLen  int
	signals map[int64]trading.SignalResult
	windows [][]int64
	calls   int
}

type scriptedState struct {
	bars int
}

func newScripted(minLen int) *scripted {
	return &scripted{minLen: minLen, signals: make(map[int64]trading.SignalResult)}
}

func (s *scripted) at(ts int64, sig trading.SignalResult) *scripted {
	s.signals[ts] = sig
	return s
}

func (s *scripted) Name() string       { return "scripted" }
func (s *scripted) MinDataLength() int { return s.minLen }

func (s *scripted) InitIndicatorState() *scriptedState {
	s.windows = nil
	s.calls = 0
	return &scriptedState{}
}

func (s *scripted) Advance(st *scriptedState, _ types.Bar) int {
	st.bars++
	return st.bars
}

func (s *scripted) GenerateSignal(window []types.Bar, _ int, _ trading.RiskConfig) trading.SignalResult {
	s.calls++
	ts := make([]int64, len(window))
	for i, b := range window {
		ts[i] = b.Timestamp
	}
	s.windows = append(s.windows, ts)

	last := window[len(window)-1]
	if sig, ok := s.signals[last.Timestamp]; ok {
		return sig
	}
	return trading.SignalResult{OpenPrice: last.Close}
}

func barTS(i int) int64 {
	return int64(i+1) * hourMillis
}

// flatBars returns n bars around price with a range of one unit.
func flatBars(n int, price float64) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.MustBar(barTS(i), price, price+0.5, price-0.5, price, 100)
	}
	return bars
}

// generateTestData creates a deterministic oscillating series
func generateTestData(count int, start float64) []types.Bar {
	bars := make([]types.Bar, count)
	price := start
	for i := range bars {
		open := price
		price = start + 10*math.Sin(float64(i)/15) + 4*math.Sin(float64(i)/4) + float64(i)*0.01
		high := math.Max(open, price) + 0.6
		low := math.Min(open, price) - 0.6
		vol := 100 + 50*math.Abs(math.Sin(float64(i)/7))
		bars[i] = types.MustBar(barTS(i), open, high, low, price, vol)
	}
	return bars
}

func longAt(price, stop float64) trading.SignalResult {
	return trading.SignalResult{ShouldBuy: true, OpenPrice: price, SignalKlineStopLoss: trading.Price(stop), SignalValue: "long"}
}

func shortAt(price, stop float64) trading.SignalResult {
	return trading.SignalResult{ShouldSell: true, OpenPrice: price, SignalKlineStopLoss: trading.Price(stop), SignalValue: "short"}
}

// quietRisk disables the time stops and the ladder so tests control exits.
func quietRisk() trading.RiskConfig {
	cfg := trading.DefaultRiskConfig()
	cfg.TimeStop.Enabled = false
	cfg.Tiered.Enabled = false
	cfg.RSystem.Enabled = false
	cfg.DynamicMaxLoss = false
	cfg.MaxLossPercent = 0.5
	return cfg
}
