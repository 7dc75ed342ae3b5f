package backtest

import (
	"strings"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
)

// FilterStage advances the shadow trades and turns filtered signals into
// shadow trades instead of positions.
type FilterStage struct{}

// NewFilterStage creates the stage.
func NewFilterStage() *FilterStage {
	return &FilterStage{}
}

func (f *FilterStage) Name() string { return "filter" }

func (f *FilterStage) Process(ctx *Context) StageResult {
	ctx.advanceShadow()

	if !ctx.Filtered || ctx.Signal == nil {
		return Continue()
	}
	if t := ctx.Shadow.Open(ctx.Signal, ctx.Bar, ctx.InstID); t != nil {
		ctx.log.Trade("shadow %s @ %.4f filtered by %s", t.Side, t.Entry, strings.Join(ctx.FilterReasons, ","))
	}

	// The position stage sees a copy that can no longer execute.
	sig := ctx.Signal.Clone()
	sig.ShouldBuy = false
	sig.ShouldSell = false
	sig.Direction = trading.DirectionNone
	sig.BestOpenPrice = nil
	ctx.Signal = sig
	return Continue()
}
