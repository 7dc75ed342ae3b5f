package backtest

import "github.com/ducminhle1904/signal-backtest/internal/trading"

// PositionStage runs the position state machine through DealSignal.
type PositionStage struct{}

// NewPositionStage creates the stage.
func NewPositionStage() *PositionStage {
	return &PositionStage{}
}

func (p *PositionStage) Name() string { return "position" }

func (p *PositionStage) Process(ctx *Context) StageResult {
	st := ctx.State
	if !ctx.HasSignal() && !st.HasPosition() && !st.HasPending() {
		return Continue()
	}

	sig := ctx.Signal
	if sig == nil {
		sig = &trading.SignalResult{Timestamp: ctx.Bar.Timestamp}
	}
	out := DealSignal(ctx, sig)

	ctx.syncPosition()
	if out.Opened {
		ctx.OpenedThisBar = true
	}
	if out.Closed {
		ctx.ClosedThisBar = true
		ctx.CloseReason = out.CloseReason
	}
	return Continue()
}
