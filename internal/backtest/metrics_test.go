package backtest

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeRecord(pnl float64) trading.TradeRecord {
	return trading.TradeRecord{OptionType: trading.OptionClose, OpenPrice: 100, Quantity: 1, ProfitLoss: pnl}
}

func TestCalculateStatistics(t *testing.T) {
	records := []trading.TradeRecord{
		{OptionType: trading.OptionLong, OpenPrice: 100, Quantity: 1},
		closeRecord(2),
		closeRecord(-1),
		closeRecord(3),
	}
	s := CalculateStatistics(records, 100, 104)

	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.InDelta(t, 0.04, s.TotalReturn, 1e-12)
	assert.InDelta(t, 5.0, s.ProfitFactor, 1e-12)
	assert.InDelta(t, 1.0/102, s.MaxDrawdown, 1e-12)
	assert.Greater(t, s.SharpeRatio, 0.0)
}

func TestProfitFactorEdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, CalculateProfitFactor(nil))
	assert.True(t, math.IsInf(CalculateProfitFactor([]trading.TradeRecord{closeRecord(1)}), 1))
	assert.Equal(t, 0.0, CalculateProfitFactor([]trading.TradeRecord{closeRecord(-1)}))
}

func TestSharpeRatioDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, CalculateSharpeRatio(nil))
	assert.Equal(t, 0.0, CalculateSharpeRatio([]float64{0.01, 0.01, 0.01}))
}

func TestStatisticsJSONWithInfiniteProfitFactor(t *testing.T) {
	raw, err := json.Marshal(Statistics{TotalTrades: 1, ProfitFactor: math.Inf(1)})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Nil(t, out["profit_factor"])
	assert.Equal(t, 1.0, out["total_trades"])

	raw, err = json.Marshal(Statistics{ProfitFactor: 2.5})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"profit_factor":2.5`)
}
