package backtest

import (
	"github.com/ducminhle1904/signal-backtest/internal/risk"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Close reasons of signal handling
const (
	ReasonReverseClose       = "reverse signal close"
	ReasonReverseCloseFilter = "reverse signal close (trend filter)"
	ReasonEndOfBacktest      = "end of backtest"
	reasonSignalRefresh      = "same direction signal refresh"
)

// DealOutcome reports what DealSignal did on the bar
type DealOutcome struct {
	Opened      bool
	Closed      bool
	CloseReason string
	// Pending is set when the signal was parked as a limit entry.
	Pending bool
	// Filled is set when a pending limit entry was filled.
	Filled bool
}

// DealSignal applies sig to the trading state of ctx: the risk policy first
// when a position is open, then reversal, refresh, pending and open handling.
func DealSignal(ctx *Context, sig *trading.SignalResult) DealOutcome {
	var out DealOutcome
	st := ctx.State

	if st.HasPosition() {
		d := ctx.evaluate(sig)
		if d.Closed() {
			out.Closed, out.CloseReason = true, d.Reason
		}
	}

	side, ok := sig.Side()
	if !sig.IsActionable() || !ok {
		if !st.HasPosition() && st.HasPending() && fillPending(ctx, st.LastSignal) {
			out.Opened, out.Filled = true, true
		}
		return out
	}
	blocked := sig.BlocksEntry(side)

	if pos := st.Position; pos != nil {
		if pos.Side == side {
			refreshPosition(ctx, pos, sig)
			return out
		}
		reason := ReasonReverseClose
		if blocked {
			reason = ReasonReverseCloseFilter
		}
		net := st.ClosePosition(ctx.Risk, ctx.Bar, sig, entryPrice(ctx, sig), reason)
		ctx.recordClose(reason, net)
		out.Closed, out.CloseReason = true, reason
		if blocked {
			return out
		}
	}

	if blocked {
		ctx.log.Info("%s entry blocked at %s", side, types.FormatMillis(ctx.Bar.Timestamp))
		return out
	}
	if sig.BestOpenPrice != nil {
		st.LastSignal = sig.Clone()
		out.Pending = true
		return out
	}
	st.LastSignal = nil

	openPosition(ctx, sig, side)
	out.Opened = true
	return out
}

// fillPending opens the parked limit entry once the bar trades through its
// best price.
func fillPending(ctx *Context, pending *trading.SignalResult) bool {
	if pending.BestOpenPrice == nil || pending.Timestamp > ctx.Bar.Timestamp {
		return false
	}
	side, ok := pending.Side()
	if !ok {
		ctx.State.LastSignal = nil
		return false
	}
	best := *pending.BestOpenPrice
	if side == types.Long && ctx.Bar.Low > best {
		return false
	}
	if side == types.Short && ctx.Bar.High <= best {
		return false
	}

	fill := pending.Clone()
	fill.OpenPrice = best
	openPosition(ctx, fill, side)
	return true
}

func openPosition(ctx *Context, sig *trading.SignalResult, side types.TradeSide) {
	if sig.OpenPrice <= 0 {
		sig = sig.Clone()
		sig.OpenPrice = ctx.Bar.Close
	}
	var candidates []float64
	if ctx.Risk.UseSignalKlineStopLoss && sig.SignalKlineStopLoss != nil {
		candidates = append(candidates, *sig.SignalKlineStopLoss)
	}
	if sig.ATRStopLossPrice != nil {
		candidates = append(candidates, *sig.ATRStopLossPrice)
	}
	req := trading.OpenRequest{
		Side:           side,
		Signal:         sig,
		Bar:            ctx.Bar,
		BarIndex:       ctx.Index,
		SignalOpenTime: types.FormatMillis(sig.Timestamp),
	}
	if stop, ok := risk.SelectStop(side, sig.OpenPrice, candidates); ok {
		req.InitialStop = trading.Price(stop)
	}

	pos := ctx.State.OpenPosition(ctx.Risk, req)
	ctx.OpenedThisBar = true
	ctx.syncPosition()
	ctx.metrics.RecordTrade(ctx.InstID, "open", 0)
	if req.InitialStop != nil {
		ctx.log.Trade("open %s @ %.4f qty %.6f stop %.4f", side, pos.EntryPrice, pos.Quantity, *req.InitialStop)
	} else {
		ctx.log.Trade("open %s @ %.4f qty %.6f without stop", side, pos.EntryPrice, pos.Quantity)
	}
}

// refreshPosition takes the stop and target prices of a same-direction signal.
func refreshPosition(ctx *Context, pos *trading.TradePosition, sig *trading.SignalResult) {
	ts := ctx.Bar.Timestamp
	refreshStop := func(field **float64, candidate *float64) {
		if candidate == nil {
			return
		}
		stop, ok := risk.SelectStop(pos.Side, pos.EntryPrice, []float64{*candidate})
		if !ok || (*field != nil && **field == stop) {
			return
		}
		old := 0.0
		if *field != nil {
			old = **field
		}
		pos.StopLossUpdates = append(pos.StopLossUpdates, trading.StopLossUpdate{
			Timestamp: ts,
			OldPrice:  old,
			NewPrice:  stop,
			Reason:    reasonSignalRefresh,
		})
		*field = trading.Price(stop)
	}
	if ctx.Risk.UseSignalKlineStopLoss {
		refreshStop(&pos.SignalKlineStop, sig.SignalKlineStopLoss)
	}
	refreshStop(&pos.ATRStopLoss, sig.ATRStopLossPrice)

	refreshTarget := func(field **float64, v *float64) {
		if v != nil {
			*field = trading.Price(*v)
		}
	}
	refreshTarget(&pos.ATRTakeProfitRatioPrice, sig.ATRTakeProfitRatioPrice)
	if pos.Side == types.Long {
		refreshTarget(&pos.LongSignalTakeProfit, sig.LongSignalTakeProfit)
	} else {
		refreshTarget(&pos.ShortSignalTakeProfit, sig.ShortSignalTakeProfit)
	}
	if pos.ReachedTakeProfitLevel == 0 {
		refreshTarget(&pos.ATRTakeProfitLevel1, sig.ATRTakeProfitLevel1)
		refreshTarget(&pos.ATRTakeProfitLevel2, sig.ATRTakeProfitLevel2)
		refreshTarget(&pos.ATRTakeProfitLevel3, sig.ATRTakeProfitLevel3)
	}
}

func entryPrice(ctx *Context, sig *trading.SignalResult) float64 {
	if sig.OpenPrice > 0 {
		return sig.OpenPrice
	}
	return ctx.Bar.Close
}
