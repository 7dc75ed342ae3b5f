package realtime

import (
	"context"
	"math"

	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"go.uber.org/zap"
)

// BreakevenTriggerR is the favourable excursion, in R, that moves the stop to entry.
const BreakevenTriggerR = 1.5

// StopLossAmender moves the protective stop of a live order.
type StopLossAmender interface {
	MoveStopLoss(ctx context.Context, instID, orderID string, price float64) error
}

// StopLossAmenderFunc adapts a function to StopLossAmender.
type StopLossAmenderFunc func(ctx context.Context, instID, orderID string, price float64) error

func (f StopLossAmenderFunc) MoveStopLoss(ctx context.Context, instID, orderID string, price float64) error {
	return f(ctx, instID, orderID, price)
}

type trackedPosition struct {
	snapshot         PositionSnapshot
	risk             trading.RiskConfig
	movedToBreakeven bool
}

// breakevenService moves the stop of a live position to its entry price once
// the market has moved BreakevenTriggerR in its favour. It is only used from
// the engine consumer goroutine.
type breakevenService struct {
	amender   StopLossAmender
	positions map[Key]*trackedPosition
	log       *logger.Logger
	onAmend   func(instID string, err error)
}

func newBreakevenService(amender StopLossAmender, log *logger.Logger, onAmend func(string, error)) *breakevenService {
	return &breakevenService{
		amender:   amender,
		positions: make(map[Key]*trackedPosition),
		log:       log,
		onAmend:   onAmend,
	}
}

func (s *breakevenService) upsertRisk(key Key, risk trading.RiskConfig) {
	if st, ok := s.positions[key]; ok {
		st.risk = risk
	}
}

// upsertPosition replaces the snapshot and keeps the breakeven flag across updates.
func (s *breakevenService) upsertPosition(snap PositionSnapshot, risk trading.RiskConfig) {
	key := snap.Key()
	if !snap.IsOpen {
		delete(s.positions, key)
		return
	}
	moved := false
	if st, ok := s.positions[key]; ok {
		moved = st.movedToBreakeven
	}
	s.positions[key] = &trackedPosition{snapshot: snap, risk: risk, movedToBreakeven: moved}
}

func (s *breakevenService) onCandle(ctx context.Context, instID string, bar types.Bar) {
	for key, st := range s.positions {
		if key.InstID != instID || st.movedToBreakeven || !breakevenEnabled(st.risk) {
			continue
		}
		snap := st.snapshot
		if snap.OrderID == "" {
			s.log.Warning("cannot move stop of %s: missing order id", key)
			continue
		}

		threshold := BreakevenThreshold(snap.Side, snap.EntryPrice, snap.InitialStop, st.risk.MaxLossPercent)
		triggered := bar.High >= threshold
		if snap.Side == types.Short {
			triggered = bar.Low <= threshold
		}
		if !triggered {
			continue
		}

		s.log.Zap().Info("breakeven triggered",
			zap.String("key", key.String()),
			zap.String("side", snap.Side.String()),
			zap.Float64("entry", snap.EntryPrice),
			zap.Float64("threshold", threshold))

		err := s.amender.MoveStopLoss(ctx, key.InstID, snap.OrderID, snap.EntryPrice)
		if s.onAmend != nil {
			s.onAmend(key.InstID, err)
		}
		if err != nil {
			s.log.Warning("moving stop of %s (order %s) failed, retrying on next candle: %v", key, snap.OrderID, err)
			continue
		}
		st.movedToBreakeven = true
	}
}

func (s *breakevenService) moved(key Key) bool {
	st, ok := s.positions[key]
	return ok && st.movedToBreakeven
}

func breakevenEnabled(risk trading.RiskConfig) bool {
	return risk.ATRTakeProfitRatio > 0
}

// BreakevenThreshold returns the price at which the stop of a position moves
// to entry. A missing initial stop is derived from maxLossPercent.
func BreakevenThreshold(side types.TradeSide, entry float64, initialStop *float64, maxLossPercent float64) float64 {
	stop := entry * (1 - side.Sign()*maxLossPercent)
	if initialStop != nil {
		stop = *initialStop
	}
	r := math.Abs(entry - stop)
	return entry + side.Sign()*BreakevenTriggerR*r
}
