package trading

import (
	"fmt"
	"math"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
)

// Default values for the risk policy
const (
	DefaultFunds          = 100.0
	DefaultMaxLossPercent = 0.02
	DefaultFeeRate        = 0.0007

	DefaultRLevel1         = 1.0
	DefaultRLevel2         = 1.5
	DefaultRLevel3         = 2.0
	DefaultRLevel4         = 3.0
	DefaultATRMultLevel3   = 1.0
	DefaultATRMultLevel4   = 0.8
	DefaultBreakEvenFee    = 0.0004
	DefaultTarget1R        = 1.5
	DefaultTarget1Ratio    = 0.4
	DefaultTarget2R        = 2.0
	DefaultTarget2Ratio    = 0.3
	DefaultTarget3R        = 4.0
	DefaultLossReduceBars  = 12
	DefaultBreakEvenBars   = 24
	DefaultStaleBars       = 48
	DefaultBreakEvenTol    = 0.002
	DefaultReduceRatio     = 0.5
	DefaultShadowPullRatio = 0.32
)

// RSystemConfig configures the R-multiple trailing stop.
type RSystemConfig struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	Level1Trigger    float64 `json:"level_1_trigger" yaml:"level_1_trigger"`
	Level2Trigger    float64 `json:"level_2_trigger" yaml:"level_2_trigger"`
	Level3Trigger    float64 `json:"level_3_trigger" yaml:"level_3_trigger"`
	Level4Trigger    float64 `json:"level_4_trigger" yaml:"level_4_trigger"`
	ATRMultiplierL3  float64 `json:"atr_multiplier_level_3" yaml:"atr_multiplier_level_3"`
	ATRMultiplierL4  float64 `json:"atr_multiplier_level_4" yaml:"atr_multiplier_level_4"`
	BreakEvenFeeRate float64 `json:"break_even_fee_rate" yaml:"break_even_fee_rate"`
}

// TieredConfig configures the partial take-profit ladder.
type TieredConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Target1R     float64 `json:"target_1_r" yaml:"target_1_r"`
	Target1Ratio float64 `json:"target_1_close_ratio" yaml:"target_1_close_ratio"`
	Target2R     float64 `json:"target_2_r" yaml:"target_2_r"`
	Target2Ratio float64 `json:"target_2_close_ratio" yaml:"target_2_close_ratio"`
	Target3R     float64 `json:"target_3_r" yaml:"target_3_r"`
}

// TimeStopConfig configures exits based on bars held.
type TimeStopConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	LossReduceBars     int     `json:"loss_reduce_bars" yaml:"loss_reduce_bars"`
	BreakEvenBars      int     `json:"break_even_bars" yaml:"break_even_bars"`
	StaleBars          int     `json:"stale_bars" yaml:"stale_bars"`
	BreakEvenTolerance float64 `json:"break_even_tolerance" yaml:"break_even_tolerance"`
	ReduceRatio        float64 `json:"reduce_ratio" yaml:"reduce_ratio"`
}

// ShadowConfig configures shadow trades of filtered signals.
type ShadowConfig struct {
	// PullRatio is the share of the signal stop distance used as a synthetic
	// stop when a filtered signal carries no usable stop.
	PullRatio float64 `json:"pull_ratio" yaml:"pull_ratio"`
}

// RiskConfig is supplied per run and is read-only while the run executes.
type RiskConfig struct {
	MaxLossPercent                  float64  `json:"max_loss_percent" yaml:"max_loss_percent"`
	UseSignalKlineStopLoss          bool     `json:"is_used_signal_k_line_stop_loss" yaml:"is_used_signal_k_line_stop_loss"`
	ATRTakeProfitRatio              float64  `json:"atr_take_profit_ratio" yaml:"atr_take_profit_ratio"`
	FixedSignalKlineTakeProfitRatio float64  `json:"fixed_signal_kline_take_profit_ratio" yaml:"fixed_signal_kline_take_profit_ratio"`
	OneKlineDiffStopLoss            bool     `json:"is_one_k_line_diff_stop_loss" yaml:"is_one_k_line_diff_stop_loss"`
	MoveStopToEntryWhenTouch        bool     `json:"is_move_stop_open_price_when_touch_price" yaml:"is_move_stop_open_price_when_touch_price"`
	DynamicMaxLoss                  bool     `json:"dynamic_max_loss" yaml:"dynamic_max_loss"`
	ValidateSignalTP                bool     `json:"validate_signal_tp" yaml:"validate_signal_tp"`
	MaxHoldHours                    *float64 `json:"max_hold_hours,omitempty" yaml:"max_hold_hours,omitempty"`
	MaxLeverage                     *float64 `json:"max_leverage,omitempty" yaml:"max_leverage,omitempty"`
	FeeRate                         float64  `json:"fee_rate" yaml:"fee_rate"`

	RSystem  RSystemConfig  `json:"r_system" yaml:"r_system"`
	Tiered   TieredConfig   `json:"tiered_take_profit" yaml:"tiered_take_profit"`
	TimeStop TimeStopConfig `json:"time_stop" yaml:"time_stop"`
	Shadow   ShadowConfig   `json:"shadow" yaml:"shadow"`
}

// DefaultRiskConfig returns the default risk policy.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxLossPercent:         DefaultMaxLossPercent,
		UseSignalKlineStopLoss: true,
		DynamicMaxLoss:         true,
		FeeRate:                DefaultFeeRate,
		RSystem: RSystemConfig{
			Enabled:          true,
			Level1Trigger:    DefaultRLevel1,
			Level2Trigger:    DefaultRLevel2,
			Level3Trigger:    DefaultRLevel3,
			Level4Trigger:    DefaultRLevel4,
			ATRMultiplierL3:  DefaultATRMultLevel3,
			ATRMultiplierL4:  DefaultATRMultLevel4,
			BreakEvenFeeRate: DefaultBreakEvenFee,
		},
		Tiered: TieredConfig{
			Enabled:      true,
			Target1R:     DefaultTarget1R,
			Target1Ratio: DefaultTarget1Ratio,
			Target2R:     DefaultTarget2R,
			Target2Ratio: DefaultTarget2Ratio,
			Target3R:     DefaultTarget3R,
		},
		TimeStop: TimeStopConfig{
			Enabled:            true,
			LossReduceBars:     DefaultLossReduceBars,
			BreakEvenBars:      DefaultBreakEvenBars,
			StaleBars:          DefaultStaleBars,
			BreakEvenTolerance: DefaultBreakEvenTol,
			ReduceRatio:        DefaultReduceRatio,
		},
		Shadow: ShadowConfig{PullRatio: DefaultShadowPullRatio},
	}
}

// Validate checks the configuration for impossible values.
func (c RiskConfig) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return pipeerrors.NewValidationError("risk_config", "Validate", fmt.Sprintf(format, args...))
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"max_loss_percent", c.MaxLossPercent},
		{"atr_take_profit_ratio", c.ATRTakeProfitRatio},
		{"fixed_signal_kline_take_profit_ratio", c.FixedSignalKlineTakeProfitRatio},
		{"fee_rate", c.FeeRate},
		{"shadow.pull_ratio", c.Shadow.PullRatio},
	} {
		if math.IsNaN(f.v) || f.v < 0 {
			return fail("%s must be a non-negative number, got %v", f.name, f.v)
		}
	}
	if c.MaxLossPercent <= 0 || c.MaxLossPercent >= 1 {
		return fail("max_loss_percent must be in (0, 1), got %v", c.MaxLossPercent)
	}
	if c.FeeRate >= 0.1 {
		return fail("fee_rate %v is unrealistically high", c.FeeRate)
	}
	if c.MaxHoldHours != nil && *c.MaxHoldHours <= 0 {
		return fail("max_hold_hours must be positive")
	}
	if c.MaxLeverage != nil && (*c.MaxLeverage <= 0 || *c.MaxLeverage > 125) {
		return fail("max_leverage must be in (0, 125]")
	}

	if c.RSystem.Enabled {
		r := c.RSystem
		if !(r.Level1Trigger > 0 && r.Level1Trigger < r.Level2Trigger && r.Level2Trigger < r.Level3Trigger && r.Level3Trigger < r.Level4Trigger) {
			return fail("r_system triggers must be positive and strictly increasing")
		}
		if r.ATRMultiplierL3 <= 0 || r.ATRMultiplierL4 <= 0 || r.BreakEvenFeeRate < 0 {
			return fail("r_system multipliers must be positive")
		}
	}
	if c.Tiered.Enabled {
		t := c.Tiered
		if !(t.Target1R > 0 && t.Target1R < t.Target2R && t.Target2R < t.Target3R) {
			return fail("tiered targets must be positive and strictly increasing")
		}
		if t.Target1Ratio <= 0 || t.Target2Ratio <= 0 || t.Target1Ratio+t.Target2Ratio >= 1 {
			return fail("tiered close ratios must be positive and leave a remainder")
		}
	}
	if c.TimeStop.Enabled {
		ts := c.TimeStop
		if ts.LossReduceBars <= 0 || ts.BreakEvenBars <= 0 || ts.StaleBars <= 0 {
			return fail("time_stop bar thresholds must be positive")
		}
		if ts.ReduceRatio <= 0 || ts.ReduceRatio >= 1 {
			return fail("time_stop.reduce_ratio must be in (0, 1)")
		}
		if ts.BreakEvenTolerance < 0 {
			return fail("time_stop.break_even_tolerance must be non-negative")
		}
	}
	return nil
}

// Leverage returns the configured leverage, 1 when unset.
func (c RiskConfig) Leverage() float64 {
	if c.MaxLeverage == nil || *c.MaxLeverage <= 0 {
		return 1
	}
	return *c.MaxLeverage
}
