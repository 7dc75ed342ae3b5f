package backtest

import (
	"github.com/ducminhle1904/signal-backtest/internal/indicators"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/risk"
	"github.com/ducminhle1904/signal-backtest/internal/shadow"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// Context is the per-bar working set shared by the stages of one run.
// Fields other than the per-bar ones carry forward across bars.
type Context struct {
	Bar    types.Bar
	Index  int
	InstID string
	Warmup int
	Risk   trading.RiskConfig

	Signal        *trading.SignalResult
	Filtered      bool
	FilterReasons []string

	State      *trading.TradingState
	Position   *trading.TradePosition
	Shadow     *shadow.Manager
	Audit      *AuditTrail
	Indicators *indicators.Cache

	OpenedThisBar bool
	ClosedThisBar bool
	CloseReason   string

	// RiskEvaluated is set once the risk policy ran for this bar, so the
	// risk stage does not evaluate the same bar twice.
	RiskEvaluated bool
	lastDecision  risk.Decision

	// shadowAdvanced is set once the shadow trades saw the bar.
	shadowAdvanced bool

	evaluator risk.Evaluator
	log       *logger.Logger
	metrics   MetricsRecorder
}

// Reset prepares the context for the next bar.
func (c *Context) Reset(bar types.Bar, idx int) {
	c.Bar = bar
	c.Index = idx
	c.Signal = nil
	c.Filtered = false
	c.FilterReasons = nil
	c.OpenedThisBar = false
	c.ClosedThisBar = false
	c.CloseReason = ""
	c.RiskEvaluated = false
	c.lastDecision = risk.Decision{}
	c.shadowAdvanced = false
	c.Position = c.State.Position
}

// advanceShadow moves the open shadow trades over the bar at most once.
func (c *Context) advanceShadow() {
	if c.shadowAdvanced {
		return
	}
	c.shadowAdvanced = true
	c.Shadow.Update(c.Bar)
}

// HasPosition reports whether a position is open.
func (c *Context) HasPosition() bool {
	return c.State != nil && c.State.HasPosition()
}

// HasSignal reports whether the bar carries an actionable signal.
func (c *Context) HasSignal() bool {
	return c.Signal.IsActionable()
}

// env is the risk input of the current bar.
func (c *Context) env() risk.Env {
	return risk.Env{BarIndex: c.Index, ATR: c.Indicators.ATR()}
}

// syncPosition refreshes the position view after the state changed.
func (c *Context) syncPosition() {
	c.Position = c.State.Position
}

// markClosed records a full close made during the bar.
func (c *Context) markClosed(reason string) {
	c.ClosedThisBar = true
	c.CloseReason = reason
	c.syncPosition()
}

// Audit decisions
const (
	DecisionSkip  = "SKIP"
	DecisionHold  = "HOLD"
	DecisionClose = "CLOSE"
)

// RiskDecision is one entry of the audit trail.
type RiskDecision struct {
	Timestamp int64  `json:"ts"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
}

// AuditTrail collects one risk decision per bar after warm-up.
type AuditTrail struct {
	decisions []RiskDecision
}

// NewAuditTrail creates an empty trail.
func NewAuditTrail() *AuditTrail {
	return &AuditTrail{decisions: make([]RiskDecision, 0, 256)}
}

// Record appends a decision.
func (a *AuditTrail) Record(ts int64, decision, reason string) {
	a.decisions = append(a.decisions, RiskDecision{Timestamp: ts, Decision: decision, Reason: reason})
}

// Decisions returns the recorded decisions in bar order.
func (a *AuditTrail) Decisions() []RiskDecision {
	return a.decisions
}

// Len returns the number of recorded decisions.
func (a *AuditTrail) Len() int {
	return len(a.decisions)
}
