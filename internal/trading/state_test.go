package trading

import (
	"encoding/json"
	"testing"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longSignal(price, stop float64) *SignalResult {
	return &SignalResult{
		ShouldBuy:           true,
		OpenPrice:           price,
		SignalKlineStopLoss: Price(stop),
		SignalValue:         "ema_cross",
	}
}

func openLong(t *testing.T, s *TradingState, cfg RiskConfig, price, stop float64) *TradePosition {
	t.Helper()
	bar := types.MustBar(1_000, price, price+1, price-1, price, 10)
	return s.OpenPosition(cfg, OpenRequest{
		Side:        types.Long,
		Signal:      longSignal(price, stop),
		Bar:         bar,
		BarIndex:    7,
		InitialStop: Price(stop),
	})
}

func TestOpenPositionSizingAndRecord(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.FixedSignalKlineTakeProfitRatio = 2
	s := NewTradingState()

	pos := openLong(t, s, cfg, 100, 95)

	assert.InDelta(t, 1.0, pos.Quantity, 1e-12)
	assert.Equal(t, 1, s.OpenPositionTimes)
	require.NotNil(t, pos.FixedTakeProfit)
	assert.InDelta(t, 110.0, *pos.FixedTakeProfit, 1e-9)
	require.NotNil(t, pos.R)
	assert.Equal(t, 5.0, pos.R.OneR)
	require.NotNil(t, pos.Ladder)
	assert.Equal(t, 107.5, pos.Ladder.Target1)
	assert.Equal(t, 110.0, pos.Ladder.Target2)
	assert.Equal(t, 120.0, pos.Ladder.Target3)
	assert.InDelta(t, 0.5, *pos.EntryKlineClosePos, 1e-12)

	require.Len(t, s.Records, 1)
	assert.Equal(t, OptionLong, s.Records[0].OptionType)
	assert.False(t, s.Records[0].FullClose)
}

func TestClosePositionChargesFeeAndCounts(t *testing.T) {
	cfg := DefaultRiskConfig()
	s := NewTradingState()
	openLong(t, s, cfg, 100, 95)

	bar := types.MustBar(2_000, 104, 106, 103, 105, 1)
	net := s.ClosePosition(cfg, bar, nil, 105, "take profit")

	// gross 5 on 1 unit, fee 1 * 100 * 0.0007
	assert.InDelta(t, 5-0.07, net, 1e-12)
	assert.InDelta(t, 100+5-0.07, s.Funds, 1e-12)
	assert.Equal(t, int64(1), s.Wins)
	assert.False(t, s.HasPosition())
	assert.Equal(t, 1.0, s.WinRate())

	exit := s.Records[len(s.Records)-1]
	assert.True(t, exit.IsClose())
	assert.True(t, exit.FullClose)
	assert.Equal(t, "take profit", exit.CloseType)
	assert.Equal(t, int64(1), exit.WinNum)
}

func TestCloseAtEntryChargesNoFee(t *testing.T) {
	cfg := DefaultRiskConfig()
	s := NewTradingState()
	openLong(t, s, cfg, 100, 95)

	net := s.ClosePosition(cfg, types.MustBar(2_000, 100, 100, 100, 100, 1), nil, 100, "flat")
	assert.Equal(t, 0.0, net)
	assert.Equal(t, DefaultFunds, s.Funds)
	assert.Equal(t, int64(0), s.Wins+s.Losses)
	assert.Equal(t, 0.0, s.WinRate())
}

func TestPartialCloseUsesInitialQuantity(t *testing.T) {
	cfg := DefaultRiskConfig()
	s := NewTradingState()
	pos := openLong(t, s, cfg, 100, 95)
	pos.StopLossUpdates = append(pos.StopLossUpdates, StopLossUpdate{Timestamp: 1, OldPrice: 95, NewPrice: 100, Reason: "breakeven"})

	bar := types.MustBar(2_000, 107, 108, 106, 107.5, 1)
	s.PartialClose(cfg, bar, nil, 107.5, 0.4, "ladder target 1")
	s.PartialClose(cfg, bar, nil, 110, 0.3, "ladder target 2")

	require.True(t, s.HasPosition())
	assert.InDelta(t, 0.3, s.Position.Quantity, 1e-12)
	assert.Equal(t, int64(2), s.Wins)

	last := s.Records[len(s.Records)-1]
	assert.False(t, last.FullClose)
	assert.InDelta(t, 0.3, last.Quantity, 1e-12)

	var history []StopLossUpdate
	require.NoError(t, json.Unmarshal([]byte(last.StopLossUpdateHistory), &history))
	assert.Equal(t, 100.0, history[0].NewPrice)
}

func TestPartialCloseWithNothingLeftClosesPosition(t *testing.T) {
	cfg := DefaultRiskConfig()
	s := NewTradingState()
	openLong(t, s, cfg, 100, 95)

	bar := types.MustBar(2_000, 107, 111, 106, 110, 1)
	s.ReduceCurrent(cfg, bar, nil, 99, 0.5, "time stop reduce")
	s.PartialClose(cfg, bar, nil, 107.5, 0.4, "ladder target 1")
	require.True(t, s.HasPosition())

	net := s.PartialClose(cfg, bar, nil, 110, 0.3, "ladder target 2")
	assert.False(t, s.HasPosition())
	// 0.1 * 10 minus the fee on 0.1 * 100
	assert.InDelta(t, 1-0.007, net, 1e-12)
	assert.Equal(t, int64(2), s.Wins)
	assert.Equal(t, int64(1), s.Losses)

	last := s.Records[len(s.Records)-1]
	assert.True(t, last.FullClose)
	assert.Equal(t, "ladder target 2", last.CloseType)
	assert.InDelta(t, 0.1, last.Quantity, 1e-12)
}

func TestDisableRecordingSkipsLedger(t *testing.T) {
	cfg := DefaultRiskConfig()
	s := NewTradingState()
	s.DisableRecording = true
	openLong(t, s, cfg, 100, 95)
	s.ClosePosition(cfg, types.MustBar(2_000, 90, 91, 89, 90, 1), nil, 90, "stop")

	assert.Empty(t, s.Records)
	assert.Equal(t, int64(1), s.Losses)
}

func TestInvariantViolationsPanic(t *testing.T) {
	cfg := DefaultRiskConfig()
	s := NewTradingState()
	bar := types.MustBar(1, 1, 1, 1, 1, 1)

	assertInvariantPanic(t, func() { s.ClosePosition(cfg, bar, nil, 1, "x") })

	openLong(t, s, cfg, 100, 95)
	assertInvariantPanic(t, func() { openLong(t, s, cfg, 100, 95) })
	assertInvariantPanic(t, func() { s.PartialClose(cfg, bar, nil, 1, 1.5, "x") })
}

func assertInvariantPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryInvariant))
	}()
	fn()
}

func TestShortPositionProfitSign(t *testing.T) {
	cfg := DefaultRiskConfig()
	s := NewTradingState()
	sig := &SignalResult{ShouldSell: true, OpenPrice: 100, SignalKlineStopLoss: Price(104)}
	s.OpenPosition(cfg, OpenRequest{Side: types.Short, Signal: sig, Bar: types.MustBar(1, 100, 101, 99, 100, 1), InitialStop: Price(104)})

	net := s.ClosePosition(cfg, types.MustBar(2, 96, 97, 95, 96, 1), nil, 96, "tp")
	assert.InDelta(t, 4-0.07, net, 1e-12)
	assert.Equal(t, OptionShort, s.Records[0].OptionType)
	assert.Equal(t, int64(1), s.Wins)
}

func TestValidateSignalTakeProfit(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.ValidateSignalTP = true
	s := NewTradingState()
	sig := longSignal(100, 95)
	sig.LongSignalTakeProfit = Price(99)
	pos := s.OpenPosition(cfg, OpenRequest{Side: types.Long, Signal: sig, Bar: types.MustBar(1, 100, 101, 99, 100, 1)})
	assert.Nil(t, pos.LongSignalTakeProfit)
	assert.Nil(t, pos.R)
}

func TestRiskConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultRiskConfig().Validate())

	bad := DefaultRiskConfig()
	bad.TimeStop.ReduceRatio = 1
	assert.Error(t, bad.Validate())

	bad = DefaultRiskConfig()
	bad.RSystem.Level2Trigger = 0.5
	assert.Error(t, bad.Validate())

	bad = DefaultRiskConfig()
	bad.MaxLossPercent = -0.1
	assert.True(t, pipeerrors.IsCategory(bad.Validate(), pipeerrors.ErrorCategoryValidation))
}

func TestRiskConfigValidateReportsFirstBadField(t *testing.T) {
	bad := DefaultRiskConfig()
	bad.MaxLossPercent = -0.1
	bad.FeeRate = -1
	bad.Shadow.PullRatio = -1

	want := bad.Validate()
	require.Error(t, want)
	assert.Contains(t, want.Error(), "max_loss_percent")
	for i := 0; i < 20; i++ {
		assert.Equal(t, want.Error(), bad.Validate().Error())
	}
}

func TestFromDomainSignal(t *testing.T) {
	yes := true
	open := 101.5
	ts := int64(42)
	val := 0.75
	s := FromDomainSignal(DomainSignal{ShouldBuy: &yes, OpenPrice: &open, Timestamp: &ts, SignalValue: &val, FilterReasons: []string{"RSI_OVERBOUGHT"}})

	assert.True(t, s.ShouldBuy)
	assert.False(t, s.ShouldSell)
	assert.Equal(t, 101.5, s.OpenPrice)
	assert.Equal(t, int64(42), s.Timestamp)
	assert.Equal(t, "0.75", s.SignalValue)
	assert.True(t, s.IsFiltered())
	side, ok := s.Side()
	assert.True(t, ok)
	assert.Equal(t, types.Long, side)
}

func TestEntryBlockReasonsDoNotFilter(t *testing.T) {
	s := &SignalResult{ShouldSell: true, FilterReasons: []string{BlockShortEntryReason}}
	assert.False(t, s.IsFiltered())
	assert.True(t, s.BlocksEntry(types.Short))
	assert.False(t, s.BlocksEntry(types.Long))

	s.FilterReasons = append(s.FilterReasons, "VOLUME_TOO_LOW")
	assert.True(t, s.IsFiltered())
}
