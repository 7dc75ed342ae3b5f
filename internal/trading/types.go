// Package trading holds the state threaded bar to bar through a backtest:
// signals, risk configuration, the open position, the trading state and the
// append-only trade ledger.
package trading

import (
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// SignalDirection is an explicit direction a generator may attach to a signal.
type SignalDirection int

const (
	DirectionNone SignalDirection = iota
	DirectionLong
	DirectionShort
	DirectionClose
)

func (d SignalDirection) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	case DirectionClose:
		return "CLOSE"
	default:
		return "NONE"
	}
}

// SignalResult is produced fresh each bar by a signal generator.
type SignalResult struct {
	ShouldBuy  bool    `json:"should_buy"`
	ShouldSell bool    `json:"should_sell"`
	OpenPrice  float64 `json:"open_price"`

	SignalKlineStopLoss *float64 `json:"signal_kline_stop_loss_price,omitempty"`
	StopLossSource      string   `json:"stop_loss_source,omitempty"`
	// BestOpenPrice turns the signal into a limit entry filled on a later bar.
	BestOpenPrice *float64 `json:"best_open_price,omitempty"`

	ATRTakeProfitRatioPrice *float64 `json:"atr_take_profit_ratio_price,omitempty"`
	ATRStopLossPrice        *float64 `json:"atr_stop_loss_price,omitempty"`
	LongSignalTakeProfit    *float64 `json:"long_signal_take_profit_price,omitempty"`
	ShortSignalTakeProfit   *float64 `json:"short_signal_take_profit_price,omitempty"`
	MoveStopWhenTouchPrice  *float64 `json:"move_stop_open_price_when_touch_price,omitempty"`

	ATRTakeProfitLevel1 *float64 `json:"atr_take_profit_level_1,omitempty"`
	ATRTakeProfitLevel2 *float64 `json:"atr_take_profit_level_2,omitempty"`
	ATRTakeProfitLevel3 *float64 `json:"atr_take_profit_level_3,omitempty"`

	FilterReasons         []string `json:"filter_reasons,omitempty"`
	DynamicAdjustments    []string `json:"dynamic_adjustments,omitempty"`
	DynamicConfigSnapshot string   `json:"dynamic_config_snapshot,omitempty"`

	Direction SignalDirection `json:"direction"`
	Timestamp int64           `json:"ts"`
	// ATR is the generator's ATR(14) at the signal bar.
	ATR float64 `json:"atr,omitempty"`

	SignalValue  string `json:"signal_value,omitempty"`
	SignalResult string `json:"signal_result,omitempty"`
}

// IsActionable reports whether the signal asks to enter a position.
func (s *SignalResult) IsActionable() bool {
	return s != nil && (s.ShouldBuy || s.ShouldSell)
}

// Entry-block reasons forbid opening in one direction without filtering the
// signal: an opposite position may still be closed by it.
const (
	BlockLongEntryReason  = "FIB_STRICT_MAJOR_BEAR_BLOCK_LONG"
	BlockShortEntryReason = "FIB_STRICT_MAJOR_BULL_BLOCK_SHORT"
)

// IsFiltered reports whether a filter rejected the signal. Entry-block
// reasons alone do not filter a signal.
func (s *SignalResult) IsFiltered() bool {
	if s == nil {
		return false
	}
	for _, r := range s.FilterReasons {
		if r != BlockLongEntryReason && r != BlockShortEntryReason {
			return true
		}
	}
	return false
}

// BlocksEntry reports whether the signal forbids opening on side.
func (s *SignalResult) BlocksEntry(side types.TradeSide) bool {
	if side == types.Long {
		return s.HasFilterReason(BlockLongEntryReason)
	}
	return s.HasFilterReason(BlockShortEntryReason)
}

// Side resolves the signal direction. An explicit Direction wins over the flags.
func (s *SignalResult) Side() (types.TradeSide, bool) {
	if s == nil {
		return types.Long, false
	}
	switch s.Direction {
	case DirectionLong:
		return types.Long, true
	case DirectionShort:
		return types.Short, true
	case DirectionClose:
		return types.Long, false
	}
	switch {
	case s.ShouldBuy:
		return types.Long, true
	case s.ShouldSell:
		return types.Short, true
	}
	return types.Long, false
}

// HasFilterReason reports whether reason is among the filter reasons.
func (s *SignalResult) HasFilterReason(reason string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.FilterReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *SignalResult) Clone() *SignalResult {
	if s == nil {
		return nil
	}
	c := *s
	c.SignalKlineStopLoss = clonePrice(s.SignalKlineStopLoss)
	c.BestOpenPrice = clonePrice(s.BestOpenPrice)
	c.ATRTakeProfitRatioPrice = clonePrice(s.ATRTakeProfitRatioPrice)
	c.ATRStopLossPrice = clonePrice(s.ATRStopLossPrice)
	c.LongSignalTakeProfit = clonePrice(s.LongSignalTakeProfit)
	c.ShortSignalTakeProfit = clonePrice(s.ShortSignalTakeProfit)
	c.MoveStopWhenTouchPrice = clonePrice(s.MoveStopWhenTouchPrice)
	c.ATRTakeProfitLevel1 = clonePrice(s.ATRTakeProfitLevel1)
	c.ATRTakeProfitLevel2 = clonePrice(s.ATRTakeProfitLevel2)
	c.ATRTakeProfitLevel3 = clonePrice(s.ATRTakeProfitLevel3)
	c.FilterReasons = append([]string(nil), s.FilterReasons...)
	c.DynamicAdjustments = append([]string(nil), s.DynamicAdjustments...)
	return &c
}

// Price returns a pointer to v, for populating optional price fields.
func Price(v float64) *float64 {
	return &v
}

func clonePrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StopLossLevel is the stage of the R-multiple trailing stop.
type StopLossLevel uint8

const (
	LevelInitial StopLossLevel = iota
	LevelBreakEven
	LevelHalfR
	LevelATRTrailing
	LevelATRTrailingTight
)

func (l StopLossLevel) String() string {
	switch l {
	case LevelBreakEven:
		return "BREAK_EVEN"
	case LevelHalfR:
		return "HALF_R"
	case LevelATRTrailing:
		return "ATR_TRAILING_1X"
	case LevelATRTrailingTight:
		return "ATR_TRAILING_0.8X"
	default:
		return "INITIAL"
	}
}

// RState tracks the R-multiple stop of an open position.
type RState struct {
	EntryPrice  float64
	InitialStop float64
	CurrentStop float64
	OneR        float64
	Level       StopLossLevel
	MaxProfitR  float64
	Side        types.TradeSide
	EntryBarIdx int
}

// LadderState tracks the partial take-profit ladder.
type LadderState struct {
	Target1, Target2, Target3    float64
	Reached1, Reached2, Reached3 bool
	ClosedRatio                  float64
}

// StopLossUpdate is one change of the protective stop.
type StopLossUpdate struct {
	Timestamp int64   `json:"ts"`
	OldPrice  float64 `json:"old_price"`
	NewPrice  float64 `json:"new_price"`
	Reason    string  `json:"reason"`
}

// TradePosition is the open position of a run.
type TradePosition struct {
	Side            types.TradeSide
	Quantity        float64
	InitialQuantity float64
	EntryPrice      float64
	ClosePrice      *float64
	ProfitLoss      float64

	OpenTime       string
	OpenTimestamp  int64
	SignalOpenTime string
	SignalStatus   int
	EntryBarIndex  int

	SignalHighLowDiff   float64
	EntryKlineAmplitude *float64
	EntryKlineClosePos  *float64

	SignalKlineStop        *float64
	ATRStopLoss            *float64
	MoveStopPrice          *float64
	MoveStopWhenTouchPrice *float64

	FixedTakeProfit         *float64
	ATRTakeProfitRatioPrice *float64
	LongSignalTakeProfit    *float64
	ShortSignalTakeProfit   *float64
	ATRTakeProfitLevel1     *float64
	ATRTakeProfitLevel2     *float64
	ATRTakeProfitLevel3     *float64
	ReachedTakeProfitLevel  uint8

	StopLossSource  string
	StopLossUpdates []StopLossUpdate

	R           *RState
	Ladder      *LadderState
	TimeReduced bool
	Stale       bool
}

// Clone returns a deep copy.
func (p *TradePosition) Clone() *TradePosition {
	if p == nil {
		return nil
	}
	c := *p
	c.ClosePrice = clonePrice(p.ClosePrice)
	c.EntryKlineAmplitude = clonePrice(p.EntryKlineAmplitude)
	c.EntryKlineClosePos = clonePrice(p.EntryKlineClosePos)
	c.SignalKlineStop = clonePrice(p.SignalKlineStop)
	c.ATRStopLoss = clonePrice(p.ATRStopLoss)
	c.MoveStopPrice = clonePrice(p.MoveStopPrice)
	c.MoveStopWhenTouchPrice = clonePrice(p.MoveStopWhenTouchPrice)
	c.FixedTakeProfit = clonePrice(p.FixedTakeProfit)
	c.ATRTakeProfitRatioPrice = clonePrice(p.ATRTakeProfitRatioPrice)
	c.LongSignalTakeProfit = clonePrice(p.LongSignalTakeProfit)
	c.ShortSignalTakeProfit = clonePrice(p.ShortSignalTakeProfit)
	c.ATRTakeProfitLevel1 = clonePrice(p.ATRTakeProfitLevel1)
	c.ATRTakeProfitLevel2 = clonePrice(p.ATRTakeProfitLevel2)
	c.ATRTakeProfitLevel3 = clonePrice(p.ATRTakeProfitLevel3)
	c.StopLossUpdates = append([]StopLossUpdate(nil), p.StopLossUpdates...)
	if p.R != nil {
		r := *p.R
		c.R = &r
	}
	if p.Ladder != nil {
		l := *p.Ladder
		c.Ladder = &l
	}
	return &c
}

// Profit returns the gross profit of qty units closed at exit.
func (p *TradePosition) Profit(exit, qty float64) float64 {
	return (exit - p.EntryPrice) * qty * p.Side.Sign()
}

// TradeRecord is a flattened, write-once ledger entry.
type TradeRecord struct {
	OptionType            string   `json:"option_type"`
	OpenTime              string   `json:"open_position_time"`
	SignalOpenTime        string   `json:"signal_open_position_time,omitempty"`
	CloseTime             string   `json:"close_position_time,omitempty"`
	OpenPrice             float64  `json:"open_price"`
	ClosePrice            *float64 `json:"close_price,omitempty"`
	SignalStatus          int      `json:"signal_status"`
	ProfitLoss            float64  `json:"profit_loss"`
	Quantity              float64  `json:"quantity"`
	FullClose             bool     `json:"full_close"`
	CloseType             string   `json:"close_type"`
	WinNum                int64    `json:"win_num"`
	LossNum               int64    `json:"loss_num"`
	SignalValue           string   `json:"signal_value,omitempty"`
	SignalResult          string   `json:"signal_result,omitempty"`
	StopLossSource        string   `json:"stop_loss_source,omitempty"`
	StopLossUpdateHistory string   `json:"stop_loss_update_history,omitempty"`
}

// IsClose reports whether the record is an exit (full or partial).
func (r TradeRecord) IsClose() bool {
	return r.OptionType == OptionClose
}

// Signal status values carried on positions and records
const (
	SignalStatusNormal = 0
	SignalStatusStale  = 1
)

const (
	OptionLong  = "long"
	OptionShort = "short"
	OptionClose = "close"
)
