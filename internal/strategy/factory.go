package strategy

import (
	"fmt"
	"strings"
)

// Strategy names
const (
	NameEMACross = "ema_cross"
	NameBreakout = "breakout"
)

// GetAvailableStrategies returns a list of available strategies
func GetAvailableStrategies() []string {
	return []string{
		NameEMACross, // EMA crossover with RSI and volume filters (default)
		NameBreakout, // channel breakout with pullback limit entry
	}
}

// NormalizeName maps aliases to a strategy name
func NormalizeName(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameEMACross, "ema", "":
		return NameEMACross, nil
	case NameBreakout, "donchian":
		return NameBreakout, nil
	default:
		return "", fmt.Errorf("unknown strategy: %s (supported: %s)", name, strings.Join(GetAvailableStrategies(), ", "))
	}
}

// GetStrategyDescription returns a description of the specified strategy
func GetStrategyDescription(name string) string {
	n, err := NormalizeName(name)
	if err != nil {
		return "Unknown strategy"
	}
	switch n {
	case NameBreakout:
		return "Channel breakout - enters on a pullback after a close beyond the lookback channel, exits on volatility spikes"
	default:
		return "EMA crossover - fast/slow cross with ATR stops, filtered by RSI extremes and thin volume"
	}
}

// paramFloat reads a numeric parameter; JSON and YAML decode numbers differently.
func paramFloat(params map[string]interface{}, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func paramInt(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func paramBool(params map[string]interface{}, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

// GetDefaultParameters returns default parameters for a strategy
func GetDefaultParameters(name string) map[string]interface{} {
	n, _ := NormalizeName(name)
	switch n {
	case NameEMACross:
		c := DefaultEMACrossConfig()
		return map[string]interface{}{
			"fast_period":                c.FastPeriod,
			"slow_period":                c.SlowPeriod,
			"trend_period":               c.TrendPeriod,
			"rsi_period":                 c.RSIPeriod,
			"atr_period":                 c.ATRPeriod,
			"volume_period":              c.VolumePeriod,
			"rsi_overbought":             c.RSIOverbought,
			"rsi_oversold":               c.RSIOversold,
			"min_volume_ratio":           c.MinVolumeRatio,
			"trend_band":                 c.TrendBand,
			"atr_stop_multiplier":        c.ATRStopMultiplier,
			"atr_take_profit_multiplier": c.ATRTakeProfitMultiplier,
			"tiered_atr":                 c.TieredATR,
			"wide_atr_percent":           c.WideATRPercent,
		}
	case NameBreakout:
		c := DefaultBreakoutConfig()
		return map[string]interface{}{
			"lookback":            c.Lookback,
			"atr_period":          c.ATRPeriod,
			"pullback_atr":        c.PullbackATR,
			"atr_stop_multiplier": c.ATRStopMultiplier,
			"exit_atr_multiple":   c.ExitATRMultiple,
		}
	default:
		return map[string]interface{}{}
	}
}
