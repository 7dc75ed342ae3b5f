// Package risk holds the exit policy shared by the backtest pipeline and the
// realtime risk engine: stop chain, time stops, take-profit chain and the
// R-multiple trailing stop.
package risk

import (
	"math"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Close reasons of time stops and the take-profit chain
const (
	ReasonStale            = "stale signal"
	ReasonBreakEvenTimeout = "breakeven timeout"
	ReasonTimeReduce       = "time stop reduce"
	ReasonMaxHoldTime      = "max hold time"
	ReasonLadderTarget1    = "ladder target 1"
	ReasonLadderTarget2    = "ladder target 2"
	ReasonLadderTarget3    = "ladder target 3"
	ReasonATRLevel3        = "atr take profit level 3"
	ReasonATRRatioTP       = "atr ratio take profit"
	ReasonFixedTP          = "fixed signal kline take profit"
	ReasonLongSignalTP     = "long signal take profit"
	ReasonShortSignalTP    = "short signal take profit"
)

// evaluation is the working set of one Evaluate call.
type evaluation struct {
	cfg      trading.RiskConfig
	state    *trading.TradingState
	pos      *trading.TradePosition
	signal   *trading.SignalResult
	bar      types.Bar
	env      Env
	ctx      ExitContext
	partials []PartialFill
}

// Evaluate applies the exit policy to the open position of state for one
// bar. Stops are checked before targets; the R-system stop is ratcheted only
// after the bar is held so it applies from the next bar on.
func Evaluate(cfg trading.RiskConfig, state *trading.TradingState, signal *trading.SignalResult, bar types.Bar, env Env) Decision {
	if state == nil || !state.HasPosition() {
		return Decision{Action: ActionSkip}
	}
	pos := state.Position
	e := &evaluation{
		cfg:    cfg,
		state:  state,
		pos:    pos,
		signal: signal,
		bar:    bar,
		env:    env,
		ctx:    NewExitContext(pos.Side, pos.EntryPrice, bar),
	}
	before, hadStop := EffectiveStop(pos)

	d := e.run()
	d.Partials = e.partials
	if d.Action == ActionClose {
		return d
	}

	if cfg.RSystem.Enabled {
		e.ratchet()
	}
	d.Stop, d.HasStop = EffectiveStop(pos)
	d.StopMoved = d.HasStop && (!hadStop || d.Stop != before)
	return d
}

func (e *evaluation) run() Decision {
	e.activateBreakEven()

	if price, reason, ok := checkStops(e.cfg, e.pos, e.ctx); ok {
		return e.closeAll(price, reason)
	}
	if d, done := e.checkTimeStops(); done {
		return d
	}
	if d, done := e.checkTakeProfits(); done {
		return d
	}
	return Decision{Action: ActionHold}
}

func (e *evaluation) closeAll(price float64, reason string) Decision {
	net := e.state.ClosePosition(e.cfg, e.bar, e.signal, price, reason)
	return Decision{Action: ActionClose, Reason: reason, Price: price, ProfitLoss: net}
}

// partial books a partial fill. It reports a close decision when the fill
// used up the remaining quantity.
func (e *evaluation) partial(price, ratio float64, reason string, current bool) (Decision, bool) {
	held := e.pos.Quantity
	var net float64
	if current {
		net = e.state.ReduceCurrent(e.cfg, e.bar, e.signal, price, ratio, reason)
	} else {
		net = e.state.PartialClose(e.cfg, e.bar, e.signal, price, ratio, reason)
	}
	if !e.state.HasPosition() {
		return Decision{Action: ActionClose, Reason: reason, Price: price, ProfitLoss: net}, true
	}
	e.partials = append(e.partials, PartialFill{
		Price:      price,
		Quantity:   held - e.pos.Quantity,
		ProfitLoss: net,
		Reason:     reason,
	})
	return Decision{}, false
}

// activateBreakEven moves the stop to entry once the touch price trades.
func (e *evaluation) activateBreakEven() {
	p := e.pos
	if !e.cfg.MoveStopToEntryWhenTouch || p.MoveStopWhenTouchPrice == nil || p.MoveStopPrice != nil {
		return
	}
	if e.ctx.Reaches(*p.MoveStopWhenTouchPrice) {
		moveStop(p, e.bar.Timestamp, p.EntryPrice, "breakeven on touch")
	}
}

func (e *evaluation) checkTimeStops() (Decision, bool) {
	p := e.pos
	if h := e.cfg.MaxHoldHours; h != nil && *h > 0 {
		if float64(e.bar.Timestamp-p.OpenTimestamp) >= *h*3_600_000 {
			return e.closeAll(e.bar.Close, ReasonMaxHoldTime), true
		}
	}

	ts := e.cfg.TimeStop
	if !ts.Enabled {
		return Decision{}, false
	}
	held := e.env.BarIndex - p.EntryBarIndex
	ret := e.ctx.Return(e.bar.Close)
	target1 := p.ReachedTakeProfitLevel >= 1 || (p.Ladder != nil && p.Ladder.Reached1)

	switch {
	case ts.StaleBars > 0 && held >= ts.StaleBars && !target1:
		p.Stale = true
		p.SignalStatus = trading.SignalStatusStale
		return e.closeAll(e.bar.Close, ReasonStale), true
	case ts.BreakEvenBars > 0 && held >= ts.BreakEvenBars && math.Abs(ret) < ts.BreakEvenTolerance:
		return e.closeAll(e.bar.Close, ReasonBreakEvenTimeout), true
	case ts.LossReduceBars > 0 && held >= ts.LossReduceBars && ret < 0 && !p.TimeReduced:
		p.TimeReduced = true
		return e.partial(e.bar.Close, ts.ReduceRatio, ReasonTimeReduce, true)
	}
	return Decision{}, false
}

// checkTakeProfits runs the take-profit chain. Ladder partials are applied in
// place; a partial that empties the position ends the chain as a close.
func (e *evaluation) checkTakeProfits() (Decision, bool) {
	p, ctx, ts := e.pos, e.ctx, e.bar.Timestamp

	if l := p.Ladder; e.cfg.Tiered.Enabled && l != nil {
		if !l.Reached1 && ctx.Reaches(l.Target1) {
			l.Reached1 = true
			l.ClosedRatio += e.cfg.Tiered.Target1Ratio
			if d, closed := e.partial(l.Target1, e.cfg.Tiered.Target1Ratio, ReasonLadderTarget1, false); closed {
				return d, true
			}
			raiseRStop(p, ts, p.EntryPrice, trading.LevelBreakEven, "ladder target 1 breakeven")
		}
		if l.Reached1 && !l.Reached2 && ctx.Reaches(l.Target2) {
			l.Reached2 = true
			l.ClosedRatio += e.cfg.Tiered.Target2Ratio
			if d, closed := e.partial(l.Target2, e.cfg.Tiered.Target2Ratio, ReasonLadderTarget2, false); closed {
				return d, true
			}
			raiseRStop(p, ts, l.Target1, trading.LevelHalfR, "ladder target 2 lock target 1")
		}
		if l.Reached2 && !l.Reached3 && ctx.Reaches(l.Target3) {
			l.Reached3 = true
			return e.closeAll(l.Target3, ReasonLadderTarget3), true
		}
	}

	if p.ATRTakeProfitLevel1 != nil && p.ATRTakeProfitLevel2 != nil && p.ATRTakeProfitLevel3 != nil {
		l1, l2, l3 := *p.ATRTakeProfitLevel1, *p.ATRTakeProfitLevel2, *p.ATRTakeProfitLevel3
		if ctx.Reaches(l3) {
			p.ReachedTakeProfitLevel = 3
			return e.closeAll(l3, ReasonATRLevel3), true
		}
		if p.ReachedTakeProfitLevel < 2 && ctx.Reaches(l2) {
			p.ReachedTakeProfitLevel = 2
			moveStop(p, ts, l1, "atr take profit level 2")
		}
		if p.ReachedTakeProfitLevel < 1 && ctx.Reaches(l1) {
			p.ReachedTakeProfitLevel = 1
			moveStop(p, ts, p.EntryPrice, "atr take profit level 1")
		}
	}

	if e.cfg.ATRTakeProfitRatio > 0 && p.ATRTakeProfitRatioPrice != nil && ctx.Reaches(*p.ATRTakeProfitRatioPrice) {
		return e.closeAll(*p.ATRTakeProfitRatioPrice, ReasonATRRatioTP), true
	}
	if p.FixedTakeProfit != nil && ctx.Exceeds(*p.FixedTakeProfit) {
		return e.closeAll(*p.FixedTakeProfit, ReasonFixedTP), true
	}
	if p.Side == types.Long && p.LongSignalTakeProfit != nil && ctx.Exceeds(*p.LongSignalTakeProfit) {
		return e.closeAll(*p.LongSignalTakeProfit, ReasonLongSignalTP), true
	}
	if p.Side == types.Short && p.ShortSignalTakeProfit != nil && ctx.Exceeds(*p.ShortSignalTakeProfit) {
		return e.closeAll(*p.ShortSignalTakeProfit, ReasonShortSignalTP), true
	}
	return Decision{}, false
}

// ratchet advances the R-system stop from the bar's favourable extreme.
func (e *evaluation) ratchet() {
	p := e.pos
	r := p.R
	if r == nil || r.OneR <= 0 {
		return
	}
	cfg := e.cfg.RSystem
	fav := e.ctx.Favorable
	profitR := r.ProfitR(fav)
	if profitR > r.MaxProfitR {
		r.MaxProfitR = profitR
	}

	sign := r.Side.Sign()
	halfR := r.PriceAtR(0.5)
	var (
		stop  float64
		level trading.StopLossLevel
	)
	switch {
	case profitR >= cfg.Level4Trigger:
		stop, level = fav-sign*e.env.ATR*cfg.ATRMultiplierL4, trading.LevelATRTrailingTight
		if e.env.ATR <= 0 {
			stop, level = halfR, trading.LevelHalfR
		}
	case profitR >= cfg.Level3Trigger:
		stop, level = fav-sign*e.env.ATR*cfg.ATRMultiplierL3, trading.LevelATRTrailing
		if e.env.ATR <= 0 {
			stop, level = halfR, trading.LevelHalfR
		}
	case profitR >= cfg.Level2Trigger:
		stop, level = halfR, trading.LevelHalfR
	case profitR >= cfg.Level1Trigger:
		stop, level = r.EntryPrice+sign*r.EntryPrice*cfg.BreakEvenFeeRate*2, trading.LevelBreakEven
	default:
		return
	}
	raiseRStop(p, e.bar.Timestamp, stop, level, "r system "+level.String())
}
