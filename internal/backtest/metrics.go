package backtest

import (
	"encoding/json"
	"math"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
)

// Statistics summarises the closed trades of a run
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalReturn   float64 `json:"total_return"`
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
}

// MarshalJSON writes an infinite profit factor as null.
func (s Statistics) MarshalJSON() ([]byte, error) {
	type plain Statistics
	out := struct {
		plain
		ProfitFactor *float64 `json:"profit_factor"`
	}{plain: plain(s)}
	if !math.IsInf(s.ProfitFactor, 0) && !math.IsNaN(s.ProfitFactor) {
		out.ProfitFactor = &s.ProfitFactor
	}
	return json.Marshal(out)
}

// CalculateStatistics computes the statistics of records. Funds are used for
// the total return so runs without recording still report it.
func CalculateStatistics(records []trading.TradeRecord, initialFunds, finalFunds float64) Statistics {
	var s Statistics
	if initialFunds > 0 {
		s.TotalReturn = (finalFunds - initialFunds) / initialFunds
	}

	var returns []float64
	for _, rec := range records {
		if !rec.IsClose() {
			continue
		}
		s.TotalTrades++
		switch {
		case rec.ProfitLoss > 0:
			s.WinningTrades++
		case rec.ProfitLoss < 0:
			s.LosingTrades++
		}
		if denom := rec.OpenPrice * rec.Quantity; denom > 0 {
			returns = append(returns, rec.ProfitLoss/denom)
		}
	}

	s.ProfitFactor = CalculateProfitFactor(records)
	s.MaxDrawdown = CalculateMaxDrawdown(records, initialFunds)
	s.SharpeRatio = CalculateSharpeRatio(returns)
	return s
}

// CalculateSharpeRatio is the mean over the standard deviation of per-exit
// returns, with a zero risk-free rate.
func CalculateSharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	avgReturn := 0.0
	for _, r := range returns {
		avgReturn += r
	}
	avgReturn /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-avgReturn, 2)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)

	if stdDev < 1e-10 {
		return 0
	}
	return avgReturn / stdDev
}

// CalculateProfitFactor is gross profit over gross loss of the exit records;
// +Inf when there is profit and no loss.
func CalculateProfitFactor(records []trading.TradeRecord) float64 {
	totalProfit, totalLoss := 0.0, 0.0
	for _, rec := range records {
		if !rec.IsClose() {
			continue
		}
		if rec.ProfitLoss > 0 {
			totalProfit += rec.ProfitLoss
		} else {
			totalLoss += math.Abs(rec.ProfitLoss)
		}
	}

	if totalLoss == 0 {
		if totalProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return totalProfit / totalLoss
}

// CalculateMaxDrawdown walks the realised equity curve and returns the
// deepest peak-to-trough fall as a ratio of the peak.
func CalculateMaxDrawdown(records []trading.TradeRecord, initialFunds float64) float64 {
	equity, peak, maxDD := initialFunds, initialFunds, 0.0
	for _, rec := range records {
		if !rec.IsClose() {
			continue
		}
		equity += rec.ProfitLoss
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
