package reporting

import (
	"math"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/shopspring/decimal"
)

// round returns v rounded half away from zero to places decimals. Non-finite
// values are returned unchanged.
func round(v float64, places int32) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func money(v float64) float64 { return round(v, 2) }

func price(v float64) float64 { return round(v, 6) }

// profitFactorCell keeps an unbounded profit factor readable in reports.
func profitFactorCell(pf float64) interface{} {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return round(pf, 2)
}

func millisTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	return types.FormatMillis(ms)
}
