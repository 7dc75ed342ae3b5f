// Package backtest replays bars through the staged pipeline
// Signal → Filter/Shadow → Position → Risk and reports the trade ledger,
// the shadow trades of filtered signals, the risk audit trail and summary
// statistics. A run is sequential and deterministic; WorkerPool runs many
// independent runs in parallel.
package backtest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/indicators"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/risk"
	"github.com/ducminhle1904/signal-backtest/internal/shadow"
	"github.com/ducminhle1904/signal-backtest/internal/strategy"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/google/uuid"
)

// DefaultRunNamespace seeds run IDs when no namespace is configured.
var DefaultRunNamespace = uuid.MustParse("6f1c9a52-3d0e-5b8a-9c47-2e81d0a4b7f3")

// MetricsRecorder receives pipeline observations
type MetricsRecorder interface {
	RecordBar(instID string, close float64)
	RecordTrade(instID, kind string, pnl float64)
	RecordShadow(instID, result string)
	RecordRiskDecision(instID, decision string)
	RecordRun(d time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) RecordBar(string, float64) {}
func (nopMetrics) RecordTrade(string, string, float64) {}
func (nopMetrics) RecordShadow(string, string) {}
func (nopMetrics) RecordRiskDecision(string, string) {}
func (nopMetrics) RecordRun(time.Duration, error) {}

// Runner executes an ordered list of stages over a bar series. A Runner keeps
// stage state between bars and must not be shared by concurrent runs.
type Runner struct {
	name      string
	stages    []Stage
	warmup    int
	recording bool
	log       *logger.Logger
	metrics   MetricsRecorder
	namespace uuid.UUID
	evaluator risk.Evaluator
}

// Option configures a Runner
type Option func(*Runner)

// WithWarmup sets the number of bars replayed before signals are generated.
func WithWarmup(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.warmup = n
		}
	}
}

// WithRecording toggles the trade ledger. Counters and funds are kept either way.
func WithRecording(enabled bool) Option {
	return func(r *Runner) { r.recording = enabled }
}

// WithLogger sets the run logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithRunNamespace sets the namespace of the deterministic run ID.
func WithRunNamespace(ns uuid.UUID) Option {
	return func(r *Runner) { r.namespace = ns }
}

// WithEvaluator replaces the risk policy.
func WithEvaluator(e risk.Evaluator) Option {
	return func(r *Runner) {
		if e != nil {
			r.evaluator = e
		}
	}
}

// WithName sets the strategy name reported in results.
func WithName(name string) Option {
	return func(r *Runner) { r.name = name }
}

// NewRunner creates a runner without stages.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		warmup:    DefaultWarmup,
		recording: true,
		log:       logger.Nop(),
		metrics:   nopMetrics{},
		namespace: DefaultRunNamespace,
		evaluator: risk.Default,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewStrategyRunner wires the signal, filter, position and risk stages for gen.
func NewStrategyRunner[S any, V any](gen strategy.SignalGenerator[S, V], opts ...Option) *Runner {
	r := NewRunner(append([]Option{WithName(gen.Name())}, opts...)...)
	return r.AddStage(NewSignalStage(gen)).
		AddStage(NewFilterStage()).
		AddStage(NewPositionStage()).
		AddStage(NewRiskStage())
}

// NewNamedRunner builds a strategy runner from a strategy name and its
// parameters.
func NewNamedRunner(name string, params map[string]interface{}, opts ...Option) (*Runner, error) {
	n, err := strategy.NormalizeName(name)
	if err != nil {
		return nil, pipeerrors.NewConfigurationError("backtest", "NewNamedRunner", err.Error())
	}
	switch n {
	case strategy.NameBreakout:
		cfg, err := strategy.BreakoutConfigFromParams(params)
		if err != nil {
			return nil, pipeerrors.NewConfigurationError("backtest", "NewNamedRunner", err.Error())
		}
		return NewStrategyRunner(strategy.NewBreakout(cfg), opts...), nil
	default:
		cfg, err := strategy.EMACrossConfigFromParams(params)
		if err != nil {
			return nil, pipeerrors.NewConfigurationError("backtest", "NewNamedRunner", err.Error())
		}
		return NewStrategyRunner(strategy.NewEMACross(cfg), opts...), nil
	}
}

// AddStage appends a stage and returns the runner for chaining.
func (r *Runner) AddStage(s Stage) *Runner {
	r.stages = append(r.stages, s)
	return r
}

// Stages returns the stage names in execution order.
func (r *Runner) Stages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name()
	}
	return names
}

// Run replays bars for instID under cfg. Sequencing bugs raised as invariant
// panics are returned as errors.
func (r *Runner) Run(bars []types.Bar, instID string, cfg trading.RiskConfig) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			pe, ok := rec.(*pipeerrors.PipelineError)
			if !ok || pe.Category != pipeerrors.ErrorCategoryInvariant {
				panic(rec)
			}
			r.log.LogError("run aborted", pe)
			res, err = nil, pe
		}
		r.metrics.RecordRun(time.Since(start), err)
	}()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(r.stages) == 0 {
		return nil, pipeerrors.NewConfigurationError("backtest", "Run", "runner has no stages")
	}
	for _, s := range r.stages {
		if rs, ok := s.(Resetter); ok {
			rs.Reset()
		}
	}

	state := trading.NewTradingState()
	state.DisableRecording = !r.recording
	initialFunds := state.Funds

	ctx := &Context{
		InstID:     instID,
		Warmup:     r.warmup,
		Risk:       cfg,
		State:      state,
		Shadow:     shadow.NewManager(cfg.Shadow.PullRatio),
		Audit:      NewAuditTrail(),
		Indicators: indicators.NewCache(indicators.DefaultATRPeriod),
		evaluator:  r.evaluator,
		log:        r.log,
		metrics:    r.metrics,
	}

	var dynLogs []DynamicConfigLog
	for idx, bar := range bars {
		ctx.Indicators.Update(bar)
		ctx.Reset(bar, idx)
		r.metrics.RecordBar(instID, bar.Close)

		r.processBar(ctx)

		if sig := ctx.Signal; sig != nil && len(sig.DynamicAdjustments) > 0 {
			dynLogs = append(dynLogs, DynamicConfigLog{
				Timestamp:   bar.Timestamp,
				Adjustments: append([]string(nil), sig.DynamicAdjustments...),
				Snapshot:    sig.DynamicConfigSnapshot,
			})
		}
	}

	if n := len(bars); n > 0 {
		last := bars[n-1]
		ctx.Shadow.Finalize(last)
		if state.HasPosition() {
			net := state.ClosePosition(cfg, last, nil, last.Close, ReasonEndOfBacktest)
			r.metrics.RecordTrade(instID, "close", net)
			r.log.Trade("close @ %.4f pnl %.4f (%s)", last.Close, net, ReasonEndOfBacktest)
		}
	}

	res = &Result{
		RunID:             r.runID(bars, instID, cfg),
		Strategy:          r.name,
		InstID:            instID,
		Funds:             state.Funds,
		WinRate:           state.WinRate(),
		Wins:              state.Wins,
		Losses:            state.Losses,
		OpenTrades:        state.OpenPositionTimes,
		Records:           state.Records,
		FilteredSignals:   ctx.Shadow.Signals(),
		DynamicConfigLogs: dynLogs,
		Audit:             ctx.Audit.Decisions(),
		Stats:             CalculateStatistics(state.Records, initialFunds, state.Funds),
		Bars:              len(bars),
	}
	for _, s := range res.FilteredSignals {
		r.metrics.RecordShadow(instID, s.TradeResult)
	}
	res.Duration = time.Since(start)
	r.log.Status("%s %s: %d bars, %d trades, funds %.4f, win rate %.2f%%",
		r.name, instID, res.Bars, res.OpenTrades, res.Funds, res.WinRate*100)
	return res, nil
}

// processBar runs the stages until one stops the bar. Shadow trades advance
// on every bar, also when an early exit skipped the filter stage.
func (r *Runner) processBar(ctx *Context) {
	defer ctx.advanceShadow()
	for _, stage := range r.stages {
		out := stage.Process(ctx)
		switch out.Kind {
		case KindContinue:
			continue
		case KindExit:
			if ctx.HasPosition() {
				net := ctx.State.ClosePosition(ctx.Risk, ctx.Bar, ctx.Signal, out.Price, out.Reason)
				ctx.recordClose(out.Reason, net)
				ctx.log.Trade("close @ %.4f pnl %.4f (%s)", out.Price, net, out.Reason)
				ctx.record(ctx.Bar.Timestamp, DecisionClose, out.Reason)
			}
		}
		return
	}
}

// runID derives a stable identifier from the namespace and the run inputs.
func (r *Runner) runID(bars []types.Bar, instID string, cfg trading.RiskConfig) uuid.UUID {
	buf := make([]byte, 0, 64+len(bars)*24)
	buf = append(buf, r.name...)
	buf = append(buf, '|')
	buf = append(buf, instID...)
	buf = append(buf, '|')
	if raw, err := json.Marshal(cfg); err == nil {
		buf = append(buf, raw...)
	}
	buf = append(buf, fmt.Sprintf("|%d|%d", r.warmup, len(bars))...)
	for _, b := range bars {
		buf = append(buf, '|')
		buf = strconv.AppendInt(buf, b.Timestamp, 10)
		buf = append(buf, ':')
		buf = strconv.AppendFloat(buf, b.Close, 'g', -1, 64)
	}
	return uuid.NewSHA1(r.namespace, buf)
}
