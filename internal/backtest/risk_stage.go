package backtest

import (
	"github.com/ducminhle1904/signal-backtest/internal/risk"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
)

// RiskStage applies the exit policy to the open position and writes the
// audit trail.
type RiskStage struct{}

// NewRiskStage creates the stage.
func NewRiskStage() *RiskStage {
	return &RiskStage{}
}

func (r *RiskStage) Name() string { return "risk" }

func (r *RiskStage) Process(ctx *Context) StageResult {
	ts := ctx.Bar.Timestamp
	if !ctx.HasPosition() {
		if ctx.ClosedThisBar {
			ctx.record(ts, DecisionClose, ctx.CloseReason)
		} else {
			ctx.record(ts, DecisionSkip, "")
		}
		return Continue()
	}

	d := ctx.lastDecision
	if !ctx.RiskEvaluated || ctx.OpenedThisBar {
		d = ctx.evaluate(ctx.Signal)
	}
	if d.Closed() {
		ctx.record(ts, DecisionClose, d.Reason)
		return Continue()
	}
	ctx.record(ts, DecisionHold, d.Reason)
	return Continue()
}

// evaluate runs the risk policy on the open position for the current bar
// and reports partial and full closes.
func (c *Context) evaluate(sig *trading.SignalResult) risk.Decision {
	d := c.evaluator.Evaluate(c.Risk, c.State, sig, c.Bar, c.env())
	c.RiskEvaluated = true
	c.lastDecision = d

	for _, p := range d.Partials {
		c.metrics.RecordTrade(c.InstID, "partial", p.ProfitLoss)
		c.log.Trade("partial close %.6f @ %.4f pnl %.4f (%s)", p.Quantity, p.Price, p.ProfitLoss, p.Reason)
	}
	if d.Closed() {
		c.recordClose(d.Reason, d.ProfitLoss)
		c.log.Trade("close @ %.4f pnl %.4f (%s)", d.Price, d.ProfitLoss, d.Reason)
	} else {
		c.syncPosition()
		if d.StopMoved {
			c.log.Info("stop moved to %.4f", d.Stop)
		}
	}
	return d
}

// recordClose marks a full close made during the bar.
func (c *Context) recordClose(reason string, net float64) {
	c.markClosed(reason)
	c.metrics.RecordTrade(c.InstID, "close", net)
}

// record appends to the audit trail.
func (c *Context) record(ts int64, decision, reason string) {
	c.Audit.Record(ts, decision, reason)
	c.metrics.RecordRiskDecision(c.InstID, decision)
}
