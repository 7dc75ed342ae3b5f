package risk

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Close reasons of the stop chain
const (
	ReasonSignalStop   = "signal kline stop loss"
	ReasonMaxLoss      = "max loss stop loss"
	ReasonOneRStop     = "one kline diff stop loss (1R)"
	ReasonTrailingStop = "move stop loss"
)

// SelectStop picks the tightest valid stop: for a long the highest candidate
// strictly below entry, for a short the lowest strictly above. ok is false
// when no candidate qualifies and the caller keeps its previous stop.
func SelectStop(side types.TradeSide, entry float64, candidates []float64) (float64, bool) {
	best, ok := 0.0, false
	for _, c := range candidates {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		switch side {
		case types.Long:
			if c < entry && (!ok || c > best) {
				best, ok = c, true
			}
		case types.Short:
			if c > entry && (!ok || c < best) {
				best, ok = c, true
			}
		}
	}
	return best, ok
}

// EffectiveStop returns the tightest protective stop currently carried by pos.
func EffectiveStop(pos *trading.TradePosition) (float64, bool) {
	if pos == nil {
		return 0, false
	}
	stop, ok := 0.0, false
	consider := func(v float64) {
		if math.IsNaN(v) || v <= 0 {
			return
		}
		if !ok || tighter(pos.Side, v, stop) {
			stop, ok = v, true
		}
	}
	if pos.SignalKlineStop != nil {
		consider(*pos.SignalKlineStop)
	}
	if pos.R != nil && pos.R.OneR > 0 {
		consider(pos.R.CurrentStop)
	}
	if pos.MoveStopPrice != nil {
		consider(*pos.MoveStopPrice)
	}
	return stop, ok
}

// tighter reports whether candidate protects more than current.
func tighter(side types.TradeSide, candidate, current float64) bool {
	if side == types.Long {
		return candidate > current
	}
	return candidate < current
}

// moveStop tightens the trailing stop of pos and logs the change. It never
// loosens an existing move stop.
func moveStop(pos *trading.TradePosition, ts int64, price float64, reason string) bool {
	if math.IsNaN(price) || price <= 0 {
		return false
	}
	old, _ := EffectiveStop(pos)
	if pos.MoveStopPrice != nil {
		if !tighter(pos.Side, price, *pos.MoveStopPrice) {
			return false
		}
		old = *pos.MoveStopPrice
	}
	pos.MoveStopPrice = trading.Price(price)
	pos.StopLossUpdates = append(pos.StopLossUpdates, trading.StopLossUpdate{
		Timestamp: ts,
		OldPrice:  old,
		NewPrice:  price,
		Reason:    reason,
	})
	return true
}

// raiseRStop tightens the R-system stop and advances its level.
func raiseRStop(pos *trading.TradePosition, ts int64, price float64, level trading.StopLossLevel, reason string) bool {
	r := pos.R
	if r == nil || math.IsNaN(price) || price <= 0 || !tighter(r.Side, price, r.CurrentStop) {
		return false
	}
	pos.StopLossUpdates = append(pos.StopLossUpdates, trading.StopLossUpdate{
		Timestamp: ts,
		OldPrice:  r.CurrentStop,
		NewPrice:  price,
		Reason:    reason,
	})
	r.CurrentStop = price
	if level > r.Level {
		r.Level = level
	}
	return true
}

// maxLossLimit returns the loss limit of pos on this bar, tightened for
// volatile entries when DynamicMaxLoss is set.
func maxLossLimit(cfg trading.RiskConfig, pos *trading.TradePosition, ctx ExitContext) float64 {
	limit := cfg.MaxLossPercent
	if !cfg.DynamicMaxLoss {
		return limit
	}
	if pos.EntryKlineAmplitude != nil && pos.EntryKlineClosePos != nil && *pos.EntryKlineAmplitude > 0.03 {
		against := *pos.EntryKlineClosePos < 0.5
		if pos.Side == types.Short {
			against = *pos.EntryKlineClosePos > 0.5
		}
		if against {
			return math.Min(limit, 0.03)
		}
	}
	if rangePct := math.Abs(ctx.Favorable-ctx.Adverse) / math.Max(ctx.Entry, 1e-9); rangePct > 0.05 {
		return math.Min(limit, 0.045)
	}
	return limit
}

// checkStops runs the stop chain and returns the first stop hit.
func checkStops(cfg trading.RiskConfig, pos *trading.TradePosition, ctx ExitContext) (float64, string, bool) {
	if cfg.UseSignalKlineStopLoss && pos.SignalKlineStop != nil && ctx.HitsStop(*pos.SignalKlineStop) {
		return *pos.SignalKlineStop, ReasonSignalStop, true
	}

	if limit := maxLossLimit(cfg, pos, ctx); limit > 0 && ctx.Entry > 0 && ctx.Return(ctx.Adverse) < -limit {
		return ctx.Entry * (1 - pos.Side.Sign()*limit), ReasonMaxLoss, true
	}

	if cfg.OneKlineDiffStopLoss && pos.SignalHighLowDiff > 0 {
		stop := ctx.Entry - pos.Side.Sign()*pos.SignalHighLowDiff
		if ctx.HitsStop(stop) {
			return stop, ReasonOneRStop, true
		}
	}

	if r := pos.R; r != nil && r.OneR > 0 && ctx.HitsStop(r.CurrentStop) {
		return r.CurrentStop, fmt.Sprintf("r system stop loss (%s)", r.Level), true
	}

	if pos.MoveStopPrice != nil && ctx.HitsStop(*pos.MoveStopPrice) {
		return *pos.MoveStopPrice, ReasonTrailingStop, true
	}
	return 0, "", false
}
