package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/ducminhle1904/signal-backtest/internal/indicators"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/risk"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned by Send after Close.
var ErrEngineClosed = errors.New("realtime engine closed")

const atrPeriod = 14

// Metrics receives engine measurements; monitoring.Recorder satisfies it.
type Metrics interface {
	RecordEvent(kind string)
	SetQueueDepth(n int)
	RecordStopAmend(instID string, err error)
	RecordRiskDecision(instID, decision string)
}

type nopMetrics struct{}

func (nopMetrics) RecordEvent(string)                {}
func (nopMetrics) SetQueueDepth(int)                 {}
func (nopMetrics) RecordStopAmend(string, error)     {}
func (nopMetrics) RecordRiskDecision(string, string) {}

// DecisionHandler is called from the consumer goroutine whenever the risk
// policy moved a stop or closed (part of) a mirrored position.
type DecisionHandler func(key Key, bar types.Bar, d risk.Decision)

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithEvaluator(ev risk.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

func WithDecisionHandler(h DecisionHandler) Option {
	return func(e *Engine) { e.onDecision = h }
}

// WithDefaultRisk sets the configuration used for keys that never received a
// risk-config event.
func WithDefaultRisk(cfg trading.RiskConfig) Option {
	return func(e *Engine) { e.defaultRisk = cfg }
}

// instrument is the market state of one instrument.
type instrument struct {
	atr  *indicators.ATR
	bars int
}

// mirror replays the backtest exit policy against a live position.
type mirror struct {
	state *trading.TradingState
	risk  trading.RiskConfig
}

// Engine is the event-driven realtime risk engine. Send may be called from
// any goroutine; events are applied in order by a single consumer started
// with Run.
type Engine struct {
	queue *queue
	done  chan struct{}
	once  sync.Once

	cfgMu       sync.RWMutex
	configs     map[Key]trading.RiskConfig
	defaultRisk trading.RiskConfig

	// owned by the consumer
	breakeven   *breakevenService
	mirrors     map[Key]*mirror
	instruments map[string]*instrument

	evaluator  risk.Evaluator
	onDecision DecisionHandler
	log        *logger.Logger
	metrics    Metrics
}

// NewEngine creates an engine that amends live stops through amender.
func NewEngine(amender StopLossAmender, opts ...Option) *Engine {
	e := &Engine{
		done:        make(chan struct{}),
		configs:     make(map[Key]trading.RiskConfig),
		defaultRisk: trading.DefaultRiskConfig(),
		mirrors:     make(map[Key]*mirror),
		instruments: make(map[string]*instrument),
		evaluator:   risk.Default,
		log:         logger.Nop(),
		metrics:     nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Nop()
	}
	e.breakeven = newBreakevenService(amender, e.log, e.metrics.RecordStopAmend)
	e.queue = newQueue(e.metrics.SetQueueDepth)
	return e
}

// Send enqueues an event without blocking on the consumer.
func (e *Engine) Send(ev Event) error {
	if ev == nil {
		return nil
	}
	if !e.queue.push(ev) {
		return ErrEngineClosed
	}
	return nil
}

// Close stops accepting events. Queued events are still applied.
func (e *Engine) Close() {
	e.queue.close()
}

// Done is closed when the consumer has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Pending returns the number of queued events.
func (e *Engine) Pending() int {
	return e.queue.len()
}

// RiskConfig returns the configuration in effect for key. It is safe to call
// concurrently with the consumer.
func (e *Engine) RiskConfig(key Key) trading.RiskConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if cfg, ok := e.configs[key]; ok {
		return cfg
	}
	return e.defaultRisk
}

// Run consumes events until the engine is closed and drained or ctx is
// cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	defer e.once.Do(func() { close(e.done) })

	e.log.Status("realtime risk engine started")
	for {
		select {
		case <-ctx.Done():
			e.Close()
			go func() {
				for range e.queue.out {
				}
			}()
			e.log.Status("realtime risk engine stopped: %v", ctx.Err())
			return ctx.Err()
		case ev, ok := <-e.queue.out:
			if !ok {
				e.log.Status("realtime risk engine drained")
				return nil
			}
			e.apply(ctx, ev)
		}
	}
}

func (e *Engine) apply(ctx context.Context, ev Event) {
	e.metrics.RecordEvent(ev.Kind())
	switch ev := ev.(type) {
	case *RiskConfigEvent:
		e.onRiskConfig(ev)
	case *PositionEvent:
		e.onPosition(ev.Snapshot)
	case *CandleEvent:
		e.onCandle(ctx, ev)
	default:
		e.log.Warning("ignoring unknown event %T", ev)
	}
}

func (e *Engine) onRiskConfig(ev *RiskConfigEvent) {
	key := ev.Key()
	if err := ev.Risk.Validate(); err != nil {
		e.log.LogError("risk config "+key.String(), err)
		return
	}
	e.cfgMu.Lock()
	e.configs[key] = ev.Risk
	e.cfgMu.Unlock()

	e.breakeven.upsertRisk(key, ev.Risk)
	if m, ok := e.mirrors[key]; ok {
		m.risk = ev.Risk
	}
	e.log.Info("risk config updated for %s", key)
}

func (e *Engine) onPosition(snap PositionSnapshot) {
	key := snap.Key()
	cfg := e.RiskConfig(key)
	e.log.Zap().Debug("position update",
		zap.String("key", key.String()),
		zap.Bool("open", snap.IsOpen),
		zap.String("side", snap.Side.String()))

	e.breakeven.upsertPosition(snap, cfg)

	if !snap.IsOpen || snap.EntryPrice <= 0 || snap.Size <= 0 {
		delete(e.mirrors, key)
		return
	}
	if m, ok := e.mirrors[key]; ok && m.state.HasPosition() {
		pos := m.state.Position
		if pos.Side == snap.Side && pos.EntryPrice == snap.EntryPrice {
			pos.Quantity = snap.Size
			m.risk = cfg
			return
		}
	}
	e.mirrors[key] = newMirror(snap, cfg, e.instrument(snap.InstID).bars)
}

func (e *Engine) onCandle(ctx context.Context, ev *CandleEvent) {
	inst := e.instrument(ev.InstID)
	e.breakeven.onCandle(ctx, ev.InstID, ev.Bar)
	if !ev.Bar.IsConfirmed() {
		return
	}

	inst.atr.Update(ev.Bar)
	env := risk.Env{BarIndex: inst.bars}
	if inst.atr.IsReady() {
		env.ATR = inst.atr.GetLastValue()
	}
	inst.bars++

	for key, m := range e.mirrors {
		if key.InstID != ev.InstID || !m.state.HasPosition() {
			continue
		}
		d := e.evaluator.Evaluate(m.risk, m.state, nil, ev.Bar, env)
		e.metrics.RecordRiskDecision(ev.InstID, d.Action.String())
		if d.Closed() || d.StopMoved || len(d.Partials) > 0 {
			if d.Closed() {
				e.log.Trade("%s exit signalled at %.6f: %s", key, d.Price, d.Reason)
			}
			if e.onDecision != nil {
				e.onDecision(key, ev.Bar, d)
			}
		}
	}
}

func (e *Engine) instrument(instID string) *instrument {
	inst, ok := e.instruments[instID]
	if !ok {
		inst = &instrument{atr: indicators.NewATR(atrPeriod)}
		e.instruments[instID] = inst
	}
	return inst
}

// MovedToBreakeven reports whether the stop of key was already moved to entry.
// It must only be called after Done is closed or from a DecisionHandler.
func (e *Engine) MovedToBreakeven(key Key) bool {
	return e.breakeven.moved(key)
}

// newMirror seeds a trading state holding the live position so the exit
// policy can be evaluated on it.
func newMirror(snap PositionSnapshot, cfg trading.RiskConfig, barIndex int) *mirror {
	stop := snap.EntryPrice * (1 - snap.Side.Sign()*cfg.MaxLossPercent)
	if snap.InitialStop != nil {
		stop = *snap.InitialStop
	}

	state := trading.NewTradingState()
	state.DisableRecording = true
	sig := &trading.SignalResult{
		ShouldBuy:           snap.Side == types.Long,
		ShouldSell:          snap.Side == types.Short,
		OpenPrice:           snap.EntryPrice,
		SignalKlineStopLoss: trading.Price(stop),
	}
	pos := state.OpenPosition(cfg, trading.OpenRequest{
		Side:        snap.Side,
		Signal:      sig,
		BarIndex:    barIndex,
		InitialStop: trading.Price(stop),
	})
	pos.Quantity = snap.Size
	pos.InitialQuantity = snap.Size
	return &mirror{state: state, risk: cfg}
}
