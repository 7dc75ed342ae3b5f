package risk

import (
	"testing"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hour = int64(3_600_000)

func openPosition(t *testing.T, cfg trading.RiskConfig, side types.TradeSide, entry, stop float64) *trading.TradingState {
	t.Helper()
	s := trading.NewTradingState()
	sig := &trading.SignalResult{OpenPrice: entry, SignalKlineStopLoss: trading.Price(stop)}
	if side == types.Long {
		sig.ShouldBuy = true
	} else {
		sig.ShouldSell = true
	}
	s.OpenPosition(cfg, trading.OpenRequest{
		Side:        side,
		Signal:      sig,
		Bar:         types.MustBar(hour, entry, entry+0.5, entry-0.5, entry, 1),
		InitialStop: trading.Price(stop),
	})
	return s
}

func bar(i int, o, h, l, c float64) types.Bar {
	return types.MustBar(hour*int64(i+1), o, h, l, c, 1)
}

func TestEvaluateWithoutPositionSkips(t *testing.T) {
	d := Evaluate(trading.DefaultRiskConfig(), trading.NewTradingState(), nil, bar(1, 1, 1, 1, 1), Env{BarIndex: 1})
	assert.Equal(t, ActionSkip, d.Action)
	assert.Equal(t, "SKIP", d.Action.String())
}

func TestRSystemStopIsMonotonic(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	s := openPosition(t, cfg, types.Long, 100, 95)
	r := s.Position.R

	d := Evaluate(cfg, s, nil, bar(1, 100, 105, 100, 105), Env{BarIndex: 1})
	require.Equal(t, ActionHold, d.Action)
	assert.GreaterOrEqual(t, r.CurrentStop, 100.0)
	assert.Equal(t, trading.LevelBreakEven, r.Level)
	assert.True(t, d.StopMoved)

	d = Evaluate(cfg, s, nil, bar(2, 105, 107.5, 104, 107.5), Env{BarIndex: 2})
	require.Equal(t, ActionHold, d.Action)
	assert.GreaterOrEqual(t, r.CurrentStop, 102.5)
	assert.Len(t, d.Partials, 1)
	assert.Equal(t, ReasonLadderTarget1, d.Partials[0].Reason)
	assert.InDelta(t, 0.4, d.Partials[0].Quantity, 1e-12)

	locked := r.CurrentStop
	d = Evaluate(cfg, s, nil, bar(3, 107.5, 107.5, 103, 104), Env{BarIndex: 3})
	require.Equal(t, ActionHold, d.Action)
	assert.Equal(t, locked, r.CurrentStop)
	assert.False(t, d.StopMoved)

	d = Evaluate(cfg, s, nil, bar(4, 104, 104, 102, 102.5), Env{BarIndex: 4})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, locked, d.Price)
	assert.Contains(t, d.Reason, "r system stop loss")
}

func TestStopWinsOverTarget(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	s := openPosition(t, cfg, types.Long, 100, 95)

	d := Evaluate(cfg, s, nil, bar(1, 100, 121, 94, 100), Env{BarIndex: 1})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonSignalStop, d.Reason)
	assert.Equal(t, 95.0, d.Price)
	assert.Empty(t, d.Partials)
	assert.Equal(t, int64(1), s.Losses)
}

func TestLadderFiresInOneBar(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	s := openPosition(t, cfg, types.Long, 100, 95)

	d := Evaluate(cfg, s, nil, bar(1, 100, 121, 99, 120), Env{BarIndex: 1})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonLadderTarget3, d.Reason)
	require.Len(t, d.Partials, 2)
	assert.Equal(t, 107.5, d.Partials[0].Price)
	assert.Equal(t, 110.0, d.Partials[1].Price)

	// 0.4*7.5 + 0.3*10 + 0.3*20 minus the fee on the full entry notional
	assert.InDelta(t, 100+12-0.07, s.Funds, 1e-9)
	assert.Equal(t, int64(3), s.Wins)
	assert.Equal(t, 1.0, s.WinRate())
	assert.False(t, s.HasPosition())
}

func TestMaxLossStop(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	cfg.UseSignalKlineStopLoss = false
	cfg.RSystem.Enabled = false
	s := openPosition(t, cfg, types.Long, 100, 90)
	s.Position.R = nil

	d := Evaluate(cfg, s, nil, bar(1, 99, 99, 97.5, 98), Env{BarIndex: 1})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonMaxLoss, d.Reason)
	assert.InDelta(t, 98.0, d.Price, 1e-9)
}

func TestOneKlineDiffStop(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	cfg.UseSignalKlineStopLoss = false
	cfg.OneKlineDiffStopLoss = true
	cfg.MaxLossPercent = 0.5
	s := openPosition(t, cfg, types.Short, 100, 101)
	s.Position.R = nil

	d := Evaluate(cfg, s, nil, bar(1, 100, 101, 99.5, 100.5), Env{BarIndex: 1})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonOneRStop, d.Reason)
	assert.Equal(t, 101.0, d.Price)
}

func TestTimeStops(t *testing.T) {
	t.Run("stale signal", func(t *testing.T) {
		cfg := trading.DefaultRiskConfig()
		s := openPosition(t, cfg, types.Long, 100, 95)
		d := Evaluate(cfg, s, nil, bar(48, 100.5, 100.6, 100.4, 100.5), Env{BarIndex: 48})
		require.Equal(t, ActionClose, d.Action)
		assert.Equal(t, ReasonStale, d.Reason)
		last := s.Records[len(s.Records)-1]
		assert.Equal(t, trading.SignalStatusStale, last.SignalStatus)
	})

	t.Run("breakeven timeout", func(t *testing.T) {
		cfg := trading.DefaultRiskConfig()
		s := openPosition(t, cfg, types.Long, 100, 95)
		d := Evaluate(cfg, s, nil, bar(24, 100, 100.2, 99.9, 100.1), Env{BarIndex: 24})
		require.Equal(t, ActionClose, d.Action)
		assert.Equal(t, ReasonBreakEvenTimeout, d.Reason)
	})

	t.Run("loss reduce happens once", func(t *testing.T) {
		cfg := trading.DefaultRiskConfig()
		s := openPosition(t, cfg, types.Long, 100, 95)
		d := Evaluate(cfg, s, nil, bar(12, 99, 99.5, 98.5, 99), Env{BarIndex: 12})
		require.Equal(t, ActionHold, d.Action)
		require.Len(t, d.Partials, 1)
		assert.Equal(t, ReasonTimeReduce, d.Partials[0].Reason)
		assert.InDelta(t, 0.5, s.Position.Quantity, 1e-12)
		assert.True(t, s.Position.TimeReduced)

		d = Evaluate(cfg, s, nil, bar(13, 99, 99.5, 98.5, 99), Env{BarIndex: 13})
		assert.Empty(t, d.Partials)
		assert.InDelta(t, 0.5, s.Position.Quantity, 1e-12)
	})

	t.Run("reduce then ladder closes the remainder", func(t *testing.T) {
		cfg := trading.DefaultRiskConfig()
		s := openPosition(t, cfg, types.Long, 100, 95)
		d := Evaluate(cfg, s, nil, bar(12, 99, 99.5, 98.5, 99), Env{BarIndex: 12})
		require.Equal(t, ActionHold, d.Action)
		assert.InDelta(t, 0.5, s.Position.Quantity, 1e-12)

		d = Evaluate(cfg, s, nil, bar(13, 99, 111, 98.5, 109), Env{BarIndex: 13})
		require.Equal(t, ActionClose, d.Action)
		assert.Equal(t, ReasonLadderTarget2, d.Reason)
		assert.Equal(t, 110.0, d.Price)
		require.Len(t, d.Partials, 1)
		assert.Equal(t, ReasonLadderTarget1, d.Partials[0].Reason)
		assert.False(t, s.HasPosition())
		assert.Equal(t, int64(2), s.Wins)
		assert.Equal(t, int64(1), s.Losses)

		last := s.Records[len(s.Records)-1]
		assert.True(t, last.FullClose)
		assert.InDelta(t, 0.1, last.Quantity, 1e-12)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := trading.DefaultRiskConfig()
		cfg.TimeStop.Enabled = false
		s := openPosition(t, cfg, types.Long, 100, 95)
		d := Evaluate(cfg, s, nil, bar(48, 100.5, 100.6, 100.4, 100.5), Env{BarIndex: 48})
		assert.Equal(t, ActionHold, d.Action)
	})
}

func TestMaxHoldTime(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	cfg.MaxHoldHours = trading.Price(2)
	s := openPosition(t, cfg, types.Long, 100, 95)

	d := Evaluate(cfg, s, nil, bar(1, 100, 100.5, 99.5, 100.2), Env{BarIndex: 1})
	assert.Equal(t, ActionHold, d.Action)

	d = Evaluate(cfg, s, nil, bar(2, 100, 100.5, 99.5, 100.2), Env{BarIndex: 2})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonMaxHoldTime, d.Reason)
}

func TestShortSignalTakeProfitIsStrict(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	cfg.Tiered.Enabled = false
	s := openPosition(t, cfg, types.Short, 100, 104)
	s.Position.ShortSignalTakeProfit = trading.Price(97)

	d := Evaluate(cfg, s, nil, bar(1, 99, 99.5, 97, 97.5), Env{BarIndex: 1})
	assert.Equal(t, ActionHold, d.Action)

	d = Evaluate(cfg, s, nil, bar(2, 97.5, 97.8, 96.9, 97), Env{BarIndex: 2})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonShortSignalTP, d.Reason)
	assert.Equal(t, 97.0, d.Price)
}

func TestATRTieredLevels(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	cfg.Tiered.Enabled = false
	cfg.RSystem.Enabled = false
	s := openPosition(t, cfg, types.Long, 100, 95)
	p := s.Position
	p.ATRTakeProfitLevel1 = trading.Price(102)
	p.ATRTakeProfitLevel2 = trading.Price(104)
	p.ATRTakeProfitLevel3 = trading.Price(106)

	d := Evaluate(cfg, s, nil, bar(1, 100, 104.5, 100, 104), Env{BarIndex: 1})
	require.Equal(t, ActionHold, d.Action)
	assert.Equal(t, uint8(2), p.ReachedTakeProfitLevel)
	assert.Equal(t, 102.0, *p.MoveStopPrice)

	d = Evaluate(cfg, s, nil, bar(2, 104, 106, 103, 105), Env{BarIndex: 2})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonATRLevel3, d.Reason)
}

func TestBreakEvenOnTouch(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	cfg.RSystem.Enabled = false
	cfg.Tiered.Enabled = false
	cfg.MoveStopToEntryWhenTouch = true
	s := openPosition(t, cfg, types.Long, 100, 95)
	s.Position.MoveStopWhenTouchPrice = trading.Price(102)

	d := Evaluate(cfg, s, nil, bar(1, 100.6, 102.5, 100.5, 102), Env{BarIndex: 1})
	require.Equal(t, ActionHold, d.Action)
	assert.Equal(t, 100.0, d.Stop)

	d = Evaluate(cfg, s, nil, bar(2, 101, 101, 99.8, 100.5), Env{BarIndex: 2})
	require.Equal(t, ActionClose, d.Action)
	assert.Equal(t, ReasonTrailingStop, d.Reason)
}

func TestATRTrailingAndZeroATR(t *testing.T) {
	cfg := trading.DefaultRiskConfig()
	cfg.Tiered.Enabled = false

	s := openPosition(t, cfg, types.Long, 100, 95)
	Evaluate(cfg, s, nil, bar(1, 100, 111, 100, 110), Env{BarIndex: 1, ATR: 2})
	assert.Equal(t, 109.0, s.Position.R.CurrentStop)
	assert.Equal(t, trading.LevelATRTrailing, s.Position.R.Level)

	s = openPosition(t, cfg, types.Long, 100, 95)
	Evaluate(cfg, s, nil, bar(1, 100, 111, 100, 110), Env{BarIndex: 1})
	assert.Equal(t, 102.5, s.Position.R.CurrentStop)
}
