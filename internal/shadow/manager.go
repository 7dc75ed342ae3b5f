// Package shadow simulates the trades that filtered signals would have made,
// so the cost of each filter can be measured. Shadow trades never touch funds.
package shadow

import (
	"encoding/json"
	"math"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Trade results of a filtered signal
const (
	ResultRunning = "RUNNING"
	ResultWin     = "WIN"
	ResultLoss    = "LOSS"
	ResultEnd     = "END"
)

// FilteredSignal is the record of one filtered signal and its shadow outcome.
// Profit, loss and PnL are ratios of the entry price.
type FilteredSignal struct {
	Timestamp         int64    `json:"ts"`
	InstID            string   `json:"inst_id"`
	Direction         string   `json:"direction"`
	SignalPrice       float64  `json:"signal_price"`
	FilterReasons     []string `json:"filter_reasons"`
	IndicatorSnapshot string   `json:"indicator_snapshot"`
	TheoreticalProfit float64  `json:"theoretical_profit"`
	TheoreticalLoss   float64  `json:"theoretical_loss"`
	FinalPnL          float64  `json:"final_pnl"`
	TradeResult       string   `json:"trade_result"`
	SignalValue       string   `json:"signal_value,omitempty"`
	ClosedAt          int64    `json:"closed_at,omitempty"`
}

// Trade is an open shadow position.
type Trade struct {
	SignalIndex int
	Entry       float64
	Side        types.TradeSide
	StopLoss    *float64
	TakeProfit  *float64
	EntryTime   int64
	MaxProfit   float64
	MaxLoss     float64
}

// Manager owns the shadow trades of one run.
type Manager struct {
	pullRatio float64
	trades    []*Trade
	signals   []FilteredSignal
}

// NewManager creates a manager; pullRatio sizes synthetic stops.
func NewManager(pullRatio float64) *Manager {
	if pullRatio <= 0 || math.IsNaN(pullRatio) {
		pullRatio = trading.DefaultShadowPullRatio
	}
	return &Manager{pullRatio: pullRatio}
}

// Open starts a shadow trade at the bar close. Signals without a direction
// are ignored. It returns the opened trade, or nil.
func (m *Manager) Open(signal *trading.SignalResult, bar types.Bar, instID string) *Trade {
	side, ok := signal.Side()
	if !ok {
		return nil
	}
	entry := bar.Close
	m.signals = append(m.signals, FilteredSignal{
		Timestamp:         bar.Timestamp,
		InstID:            instID,
		Direction:         side.String(),
		SignalPrice:       entry,
		FilterReasons:     append([]string(nil), signal.FilterReasons...),
		IndicatorSnapshot: snapshot(signal),
		TradeResult:       ResultRunning,
		SignalValue:       signal.SignalValue,
	})

	t := &Trade{
		SignalIndex: len(m.signals) - 1,
		Entry:       entry,
		Side:        side,
		StopLoss:    m.stopLoss(side, entry, signal),
		TakeProfit:  takeProfit(side, signal),
		EntryTime:   bar.Timestamp,
	}
	m.trades = append(m.trades, t)
	return t
}

// stopLoss prefers the ATR stop, then the signal-bar stop. When the only hint
// sits on the wrong side of the entry a synthetic stop is pulled from it.
func (m *Manager) stopLoss(side types.TradeSide, entry float64, signal *trading.SignalResult) *float64 {
	var hint *float64
	for _, p := range []*float64{signal.ATRStopLossPrice, signal.SignalKlineStopLoss} {
		if p == nil || math.IsNaN(*p) {
			continue
		}
		if (side == types.Long && *p < entry) || (side == types.Short && *p > entry) {
			return trading.Price(*p)
		}
		if hint == nil {
			hint = p
		}
	}
	if hint == nil {
		return nil
	}
	dist := math.Abs(entry - *hint)
	if dist == 0 {
		return nil
	}
	return trading.Price(entry - side.Sign()*m.pullRatio*dist)
}

func takeProfit(side types.TradeSide, signal *trading.SignalResult) *float64 {
	if signal.ATRTakeProfitRatioPrice != nil {
		return trading.Price(*signal.ATRTakeProfitRatioPrice)
	}
	tp := signal.LongSignalTakeProfit
	if side == types.Short {
		tp = signal.ShortSignalTakeProfit
	}
	if tp == nil {
		return nil
	}
	return trading.Price(*tp)
}

func snapshot(signal *trading.SignalResult) string {
	raw, err := json.Marshal(struct {
		SignalValue        string   `json:"signal_value,omitempty"`
		SignalResult       string   `json:"signal_result,omitempty"`
		ATR                float64  `json:"atr,omitempty"`
		DynamicAdjustments []string `json:"dynamic_adjustments,omitempty"`
	}{signal.SignalValue, signal.SignalResult, signal.ATR, signal.DynamicAdjustments})
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Update advances every open shadow trade with bar. A stop is checked before
// the target.
func (m *Manager) Update(bar types.Bar) {
	open := m.trades[:0]
	for _, t := range m.trades {
		t.track(bar)
		if pnl, result, done := t.exit(bar); done {
			m.settle(t, pnl, result, bar.Timestamp)
			continue
		}
		open = append(open, t)
	}
	m.trades = open
}

// Finalize ends the remaining shadow trades at the last close.
func (m *Manager) Finalize(last types.Bar) {
	for _, t := range m.trades {
		t.track(last)
		m.settle(t, t.ratio(last.Close), ResultEnd, last.Timestamp)
	}
	m.trades = nil
}

// Signals returns the filtered-signal records.
func (m *Manager) Signals() []FilteredSignal {
	return m.signals
}

// OpenTrades returns the number of running shadow trades.
func (m *Manager) OpenTrades() int {
	return len(m.trades)
}

func (m *Manager) settle(t *Trade, pnl float64, result string, ts int64) {
	s := &m.signals[t.SignalIndex]
	s.FinalPnL = pnl
	s.TheoreticalProfit = t.MaxProfit
	s.TheoreticalLoss = t.MaxLoss
	s.TradeResult = result
	s.ClosedAt = ts
}

func (t *Trade) ratio(price float64) float64 {
	if t.Entry == 0 {
		return 0
	}
	return (price - t.Entry) / t.Entry * t.Side.Sign()
}

func (t *Trade) track(bar types.Bar) {
	fav, adv := bar.High, bar.Low
	if t.Side == types.Short {
		fav, adv = bar.Low, bar.High
	}
	t.MaxProfit = math.Max(t.MaxProfit, t.ratio(fav))
	t.MaxLoss = math.Min(t.MaxLoss, t.ratio(adv))
}

func (t *Trade) exit(bar types.Bar) (float64, string, bool) {
	long := t.Side == types.Long
	if sl := t.StopLoss; sl != nil {
		if (long && bar.Low <= *sl) || (!long && bar.High >= *sl) {
			return t.ratio(*sl), ResultLoss, true
		}
	}
	if tp := t.TakeProfit; tp != nil {
		if (long && bar.High >= *tp) || (!long && bar.Low <= *tp) {
			return t.ratio(*tp), ResultWin, true
		}
	}
	return 0, "", false
}
