package trading

import (
	"encoding/json"
	"fmt"
	"math"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// TradingState is carried from bar to bar; one instance per run.
type TradingState struct {
	Funds             float64
	Wins              int64
	Losses            int64
	OpenPositionTimes int
	// LastSignal is a pending limit entry waiting for its best price.
	LastSignal      *SignalResult
	TotalProfitLoss float64
	Records         []TradeRecord
	Position        *TradePosition
	// DisableRecording skips ledger entries for large randomized runs.
	DisableRecording bool
}

// NewTradingState returns a flat state with the default starting funds.
func NewTradingState() *TradingState {
	return &TradingState{
		Funds:   DefaultFunds,
		Records: make([]TradeRecord, 0, 64),
	}
}

// HasPosition reports whether a position is open.
func (s *TradingState) HasPosition() bool {
	return s.Position != nil
}

// HasPending reports whether a limit entry is waiting.
func (s *TradingState) HasPending() bool {
	return s.LastSignal != nil
}

// WinRate returns wins / (wins + losses), 0 when nothing closed.
func (s *TradingState) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total)
}

// Clone returns a deep copy.
func (s *TradingState) Clone() *TradingState {
	c := *s
	c.LastSignal = s.LastSignal.Clone()
	c.Position = s.Position.Clone()
	c.Records = append([]TradeRecord(nil), s.Records...)
	return &c
}

// OpenRequest carries everything needed to open a position.
type OpenRequest struct {
	Side           types.TradeSide
	Signal         *SignalResult
	Bar            types.Bar
	BarIndex       int
	SignalOpenTime string
	// InitialStop is the protective stop chosen by the caller, if any.
	InitialStop *float64
}

// OpenPosition opens a new position at the signal open price.
// Opening while a position is open is a sequencing bug and panics.
func (s *TradingState) OpenPosition(cfg RiskConfig, req OpenRequest) *TradePosition {
	if s.Position != nil {
		panic(pipeerrors.NewInvariantError("trading", "OpenPosition", "position already open").
			WithContext("ts", req.Bar.Timestamp))
	}
	sig := req.Signal
	if sig == nil || sig.OpenPrice <= 0 || math.IsNaN(sig.OpenPrice) {
		panic(pipeerrors.NewInvariantError("trading", "OpenPosition", "signal has no open price").
			WithContext("ts", req.Bar.Timestamp))
	}

	qty := s.Funds * cfg.Leverage() / sig.OpenPrice
	pos := &TradePosition{
		Side:            req.Side,
		Quantity:        qty,
		InitialQuantity: qty,
		EntryPrice:      sig.OpenPrice,
		OpenTime:        types.FormatMillis(req.Bar.Timestamp),
		OpenTimestamp:   req.Bar.Timestamp,
		SignalOpenTime:  req.SignalOpenTime,
		EntryBarIndex:   req.BarIndex,
		StopLossSource:  sig.StopLossSource,
	}

	if cfg.UseSignalKlineStopLoss {
		pos.SignalKlineStop = clonePrice(sig.SignalKlineStopLoss)
	}
	pos.ATRStopLoss = clonePrice(sig.ATRStopLossPrice)
	pos.ATRTakeProfitRatioPrice = clonePrice(sig.ATRTakeProfitRatioPrice)
	pos.ATRTakeProfitLevel1 = clonePrice(sig.ATRTakeProfitLevel1)
	pos.ATRTakeProfitLevel2 = clonePrice(sig.ATRTakeProfitLevel2)
	pos.ATRTakeProfitLevel3 = clonePrice(sig.ATRTakeProfitLevel3)
	if cfg.MoveStopToEntryWhenTouch {
		pos.MoveStopWhenTouchPrice = clonePrice(sig.MoveStopWhenTouchPrice)
	}
	pos.LongSignalTakeProfit, pos.ShortSignalTakeProfit = signalTakeProfits(cfg, req.Side, sig)

	if sig.SignalKlineStopLoss != nil {
		pos.SignalHighLowDiff = math.Abs(*sig.SignalKlineStopLoss - sig.OpenPrice)
		if cfg.FixedSignalKlineTakeProfitRatio > 0 && pos.SignalHighLowDiff > 0 {
			pos.FixedTakeProfit = Price(sig.OpenPrice + req.Side.Sign()*pos.SignalHighLowDiff*cfg.FixedSignalKlineTakeProfitRatio)
		}
	}

	bar := req.Bar
	if bar.Low > 0 {
		pos.EntryKlineAmplitude = Price((bar.High - bar.Low) / bar.Low)
	}
	closePos := 0.5
	if r := bar.Range(); r > 0 {
		closePos = (bar.Close - bar.Low) / r
	}
	pos.EntryKlineClosePos = Price(closePos)

	if req.InitialStop != nil {
		pos.R = NewRState(pos.EntryPrice, *req.InitialStop, req.Side, req.BarIndex)
		if cfg.Tiered.Enabled && pos.R.OneR > 0 {
			pos.Ladder = NewLadderState(pos.R, cfg.Tiered)
		}
	}

	s.Position = pos
	s.OpenPositionTimes++
	s.LastSignal = nil

	if !s.DisableRecording {
		option := OptionLong
		if req.Side == types.Short {
			option = OptionShort
		}
		s.Records = append(s.Records, TradeRecord{
			OptionType:     option,
			OpenTime:       pos.OpenTime,
			SignalOpenTime: pos.SignalOpenTime,
			CloseTime:      pos.OpenTime,
			OpenPrice:      pos.EntryPrice,
			SignalStatus:   pos.SignalStatus,
			Quantity:       pos.Quantity,
			SignalValue:    sig.SignalValue,
			SignalResult:   sig.SignalResult,
			StopLossSource: pos.StopLossSource,
		})
	}
	return pos
}

// signalTakeProfits drops take-profits on the wrong side of entry when validation is on.
func signalTakeProfits(cfg RiskConfig, side types.TradeSide, sig *SignalResult) (*float64, *float64) {
	long, short := clonePrice(sig.LongSignalTakeProfit), clonePrice(sig.ShortSignalTakeProfit)
	if !cfg.ValidateSignalTP {
		return long, short
	}
	if side == types.Long && long != nil && *long <= sig.OpenPrice {
		long = nil
	}
	if side == types.Short && short != nil && *short >= sig.OpenPrice {
		short = nil
	}
	return long, short
}

// ClosePosition realises the whole position at price. The fee is charged on
// the entry notional only when the gross profit is nonzero. It panics when no
// position is open.
func (s *TradingState) ClosePosition(cfg RiskConfig, bar types.Bar, signal *SignalResult, price float64, reason string) float64 {
	pos := s.Position
	if pos == nil {
		panic(pipeerrors.NewInvariantError("trading", "ClosePosition", "no open position").
			WithContext("ts", bar.Timestamp).WithContext("reason", reason))
	}

	qty := pos.Quantity
	net := s.realise(cfg, pos, price, qty)
	pos.ClosePrice = Price(price)
	pos.ProfitLoss += net

	s.recordExit(bar, signal, pos, price, qty, net, reason, true)
	s.Position = nil
	return net
}

// QuantityEpsilon is the remainder below which a partial fill closes the position.
const QuantityEpsilon = 1e-9

// PartialClose realises ratio of the initial quantity (capped at what is left)
// and keeps the remainder open. A fill that would leave no quantity becomes a
// full close, so the position is gone when it returns.
func (s *TradingState) PartialClose(cfg RiskConfig, bar types.Bar, signal *SignalResult, price, ratio float64, reason string) float64 {
	pos := s.Position
	if pos == nil {
		panic(pipeerrors.NewInvariantError("trading", "PartialClose", "no open position").
			WithContext("ts", bar.Timestamp))
	}
	if !(ratio > 0 && ratio < 1) {
		panic(pipeerrors.NewInvariantError("trading", "PartialClose", fmt.Sprintf("ratio %v outside (0, 1)", ratio)))
	}

	qty := math.Min(pos.InitialQuantity*ratio, pos.Quantity)
	if pos.Quantity-qty <= QuantityEpsilon {
		return s.ClosePosition(cfg, bar, signal, price, reason)
	}
	net := s.realise(cfg, pos, price, qty)
	pos.Quantity -= qty
	pos.ProfitLoss += net

	s.recordExit(bar, signal, pos, price, qty, net, reason, false)
	return net
}

// ReduceCurrent realises ratio of the quantity currently held.
func (s *TradingState) ReduceCurrent(cfg RiskConfig, bar types.Bar, signal *SignalResult, price, ratio float64, reason string) float64 {
	if s.Position == nil || s.Position.InitialQuantity == 0 {
		return s.PartialClose(cfg, bar, signal, price, ratio, reason)
	}
	return s.PartialClose(cfg, bar, signal, price, ratio*s.Position.Quantity/s.Position.InitialQuantity, reason)
}

func (s *TradingState) realise(cfg RiskConfig, pos *TradePosition, price, qty float64) float64 {
	gross := pos.Profit(price, qty)
	net := 0.0
	if gross != 0 {
		net = gross - qty*pos.EntryPrice*cfg.FeeRate
	}

	s.TotalProfitLoss += net
	s.Funds += net
	if gross > 0 {
		s.Wins++
	} else if gross < 0 {
		s.Losses++
	}
	return net
}

func (s *TradingState) recordExit(bar types.Bar, signal *SignalResult, pos *TradePosition, price, qty, net float64, reason string, full bool) {
	if s.DisableRecording {
		return
	}
	rec := TradeRecord{
		OptionType:     OptionClose,
		OpenTime:       pos.OpenTime,
		SignalOpenTime: pos.SignalOpenTime,
		CloseTime:      types.FormatMillis(bar.Timestamp),
		OpenPrice:      pos.EntryPrice,
		ClosePrice:     Price(price),
		SignalStatus:   pos.SignalStatus,
		ProfitLoss:     net,
		Quantity:       qty,
		FullClose:      full,
		CloseType:      reason,
		WinNum:         s.Wins,
		LossNum:        s.Losses,
		StopLossSource: pos.StopLossSource,
	}
	if signal != nil {
		rec.SignalValue = signal.SignalValue
		rec.SignalResult = signal.SignalResult
	}
	if len(pos.StopLossUpdates) > 0 {
		if raw, err := json.Marshal(pos.StopLossUpdates); err == nil {
			rec.StopLossUpdateHistory = string(raw)
		}
	}
	s.Records = append(s.Records, rec)
}

// NewRState seeds the R-multiple stop of a new position.
func NewRState(entry, initialStop float64, side types.TradeSide, barIndex int) *RState {
	return &RState{
		EntryPrice:  entry,
		InitialStop: initialStop,
		CurrentStop: initialStop,
		OneR:        math.Abs(entry - initialStop),
		Side:        side,
		EntryBarIdx: barIndex,
	}
}

// PriceAtR returns the price r risk units in the position's favour.
func (r *RState) PriceAtR(mult float64) float64 {
	return r.EntryPrice + r.Side.Sign()*r.OneR*mult
}

// ProfitR returns the excursion of price in risk units; 0 when R is degenerate.
func (r *RState) ProfitR(price float64) float64 {
	if r.OneR <= 0 {
		return 0
	}
	return (price - r.EntryPrice) * r.Side.Sign() / r.OneR
}

// NewLadderState computes the target prices of the take-profit ladder.
func NewLadderState(r *RState, cfg TieredConfig) *LadderState {
	return &LadderState{
		Target1: r.PriceAtR(cfg.Target1R),
		Target2: r.PriceAtR(cfg.Target2R),
		Target3: r.PriceAtR(cfg.Target3R),
	}
}
