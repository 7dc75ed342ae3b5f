package strategy

import (
	"fmt"

	"github.com/ducminhle1904/signal-backtest/internal/indicators"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// EMACrossConfig parameterises the EMA crossover strategy
type EMACrossConfig struct {
	FastPeriod   int
	SlowPeriod   int
	TrendPeriod  int // 0 disables the trend entry block
	RSIPeriod    int
	ATRPeriod    int
	VolumePeriod int

	RSIOverbought  float64
	RSIOversold    float64
	MinVolumeRatio float64 // 0 disables the volume filter
	TrendBand      float64

	ATRStopMultiplier       float64
	ATRTakeProfitMultiplier float64 // used when the risk config sets no ATR ratio
	TieredATR               bool
	WideATRPercent          float64
}

// DefaultEMACrossConfig returns the default parameters
func DefaultEMACrossConfig() EMACrossConfig {
	return EMACrossConfig{
		FastPeriod:              12,
		SlowPeriod:              26,
		TrendPeriod:             200,
		RSIPeriod:               14,
		ATRPeriod:               indicators.DefaultATRPeriod,
		VolumePeriod:            20,
		RSIOverbought:           75,
		RSIOversold:             25,
		MinVolumeRatio:          0.3,
		TrendBand:               0.03,
		ATRStopMultiplier:       1.5,
		ATRTakeProfitMultiplier: 3,
		WideATRPercent:          0.03,
	}
}

// EMACrossConfigFromParams overrides the defaults with params
func EMACrossConfigFromParams(params map[string]interface{}) (EMACrossConfig, error) {
	c := DefaultEMACrossConfig()
	c.FastPeriod = paramInt(params, "fast_period", c.FastPeriod)
	c.SlowPeriod = paramInt(params, "slow_period", c.SlowPeriod)
	c.TrendPeriod = paramInt(params, "trend_period", c.TrendPeriod)
	c.RSIPeriod = paramInt(params, "rsi_period", c.RSIPeriod)
	c.ATRPeriod = paramInt(params, "atr_period", c.ATRPeriod)
	c.VolumePeriod = paramInt(params, "volume_period", c.VolumePeriod)
	c.RSIOverbought = paramFloat(params, "rsi_overbought", c.RSIOverbought)
	c.RSIOversold = paramFloat(params, "rsi_oversold", c.RSIOversold)
	c.MinVolumeRatio = paramFloat(params, "min_volume_ratio", c.MinVolumeRatio)
	c.TrendBand = paramFloat(params, "trend_band", c.TrendBand)
	c.ATRStopMultiplier = paramFloat(params, "atr_stop_multiplier", c.ATRStopMultiplier)
	c.ATRTakeProfitMultiplier = paramFloat(params, "atr_take_profit_multiplier", c.ATRTakeProfitMultiplier)
	c.TieredATR = paramBool(params, "tiered_atr", c.TieredATR)
	c.WideATRPercent = paramFloat(params, "wide_atr_percent", c.WideATRPercent)

	if c.FastPeriod < 1 || c.SlowPeriod <= c.FastPeriod {
		return c, fmt.Errorf("ema_cross: need 0 < fast_period < slow_period, got %d/%d", c.FastPeriod, c.SlowPeriod)
	}
	if c.RSIPeriod < 1 || c.ATRPeriod < 1 || c.VolumePeriod < 1 || c.TrendPeriod < 0 {
		return c, fmt.Errorf("ema_cross: indicator periods must be positive")
	}
	if c.RSIOversold >= c.RSIOverbought {
		return c, fmt.Errorf("ema_cross: rsi_oversold must be below rsi_overbought")
	}
	return c, nil
}

// EMACross signals on fast/slow EMA crossovers
type EMACross struct {
	cfg EMACrossConfig
}

// NewEMACross creates the strategy
func NewEMACross(cfg EMACrossConfig) *EMACross {
	return &EMACross{cfg: cfg}
}

// EMACrossState is the indicator state of one run
type EMACrossState struct {
	fast, slow, trend *indicators.EMA
	rsi               *indicators.RSI
	atr               *indicators.ATR
	volume            *indicators.SMA
	bars              int
}

// EMACrossValues are the indicator values at the current bar
type EMACrossValues struct {
	Fast, Slow         float64
	PrevFast, PrevSlow float64
	Trend              float64
	RSI                float64
	ATR                float64
	VolumeAvg          float64
	Ready              bool
}

func (s *EMACross) Name() string { return NameEMACross }

func (s *EMACross) MinDataLength() int {
	n := s.cfg.SlowPeriod
	for _, p := range []int{s.cfg.TrendPeriod, s.cfg.RSIPeriod + 1, s.cfg.ATRPeriod + 1, s.cfg.VolumePeriod} {
		if p > n {
			n = p
		}
	}
	return n + 1
}

func (s *EMACross) InitIndicatorState() *EMACrossState {
	st := &EMACrossState{
		fast:   indicators.NewEMA(s.cfg.FastPeriod),
		slow:   indicators.NewEMA(s.cfg.SlowPeriod),
		rsi:    indicators.NewRSI(s.cfg.RSIPeriod),
		atr:    indicators.NewATR(s.cfg.ATRPeriod),
		volume: indicators.NewSMAOf(s.cfg.VolumePeriod, indicators.Volume),
	}
	if s.cfg.TrendPeriod > 0 {
		st.trend = indicators.NewEMA(s.cfg.TrendPeriod)
	}
	return st
}

func (s *EMACross) Advance(st *EMACrossState, bar types.Bar) EMACrossValues {
	v := EMACrossValues{
		PrevFast: st.fast.GetLastValue(),
		PrevSlow: st.slow.GetLastValue(),
	}
	prevReady := st.slow.IsReady()

	st.bars++
	v.Fast = st.fast.Update(bar)
	v.Slow = st.slow.Update(bar)
	v.RSI = st.rsi.Update(bar)
	v.ATR = st.atr.Update(bar)
	v.VolumeAvg = st.volume.Update(bar)
	trendReady := true
	if st.trend != nil {
		v.Trend = st.trend.Update(bar)
		trendReady = st.trend.IsReady()
	}
	v.Ready = prevReady && st.rsi.IsReady() && st.atr.IsReady() && st.volume.IsReady() && trendReady
	return v
}

func (s *EMACross) GenerateSignal(window []types.Bar, v EMACrossValues, cfg trading.RiskConfig) trading.SignalResult {
	last := window[len(window)-1]
	sig := trading.SignalResult{
		OpenPrice: last.Close,
		Timestamp: last.Timestamp,
		ATR:       v.ATR,
	}
	if !v.Ready {
		return sig
	}

	crossUp := v.PrevFast <= v.PrevSlow && v.Fast > v.Slow
	crossDown := v.PrevFast >= v.PrevSlow && v.Fast < v.Slow
	if !crossUp && !crossDown {
		return sig
	}

	side := types.Long
	sig.ShouldBuy = crossUp
	sig.ShouldSell = crossDown
	sig.SignalKlineStopLoss = trading.Price(last.Low)
	if crossDown {
		side = types.Short
		sig.SignalKlineStopLoss = trading.Price(last.High)
	}
	sign := side.Sign()
	sig.StopLossSource = "signal_kline"
	sig.SignalResult = side.String()
	sig.SignalValue = fmt.Sprintf("fast=%.4f slow=%.4f rsi=%.2f", v.Fast, v.Slow, v.RSI)

	if v.ATR > 0 {
		sig.ATRStopLossPrice = trading.Price(last.Close - sign*s.cfg.ATRStopMultiplier*v.ATR)
		tpMult := cfg.ATRTakeProfitRatio
		if tpMult <= 0 {
			tpMult = s.cfg.ATRTakeProfitMultiplier
		}
		if tpMult > 0 {
			sig.ATRTakeProfitRatioPrice = trading.Price(last.Close + sign*tpMult*v.ATR)
		}
		sig.MoveStopWhenTouchPrice = trading.Price(last.Close + sign*v.ATR)
		if s.cfg.TieredATR {
			sig.ATRTakeProfitLevel1 = trading.Price(last.Close + sign*v.ATR)
			sig.ATRTakeProfitLevel2 = trading.Price(last.Close + sign*2*v.ATR)
			sig.ATRTakeProfitLevel3 = trading.Price(last.Close + sign*3*v.ATR)
		}
		if last.Close > 0 && v.ATR/last.Close > s.cfg.WideATRPercent {
			sig.DynamicAdjustments = append(sig.DynamicAdjustments, "ATR_WIDE_STOP")
			sig.DynamicConfigSnapshot = fmt.Sprintf(`{"atr_pct":%.5f,"atr_stop_multiplier":%.2f}`, v.ATR/last.Close, s.cfg.ATRStopMultiplier)
		}
	}

	if crossUp && v.RSI > s.cfg.RSIOverbought {
		sig.FilterReasons = append(sig.FilterReasons, ReasonRSIOverbought)
	}
	if crossDown && v.RSI < s.cfg.RSIOversold {
		sig.FilterReasons = append(sig.FilterReasons, ReasonRSIOversold)
	}
	if s.cfg.MinVolumeRatio > 0 && v.VolumeAvg > 0 && last.Volume < s.cfg.MinVolumeRatio*v.VolumeAvg {
		sig.FilterReasons = append(sig.FilterReasons, ReasonVolumeTooLow)
	}
	if s.cfg.TrendPeriod > 0 && v.Trend > 0 {
		if crossUp && last.Close < v.Trend*(1-s.cfg.TrendBand) {
			sig.FilterReasons = append(sig.FilterReasons, trading.BlockLongEntryReason)
		}
		if crossDown && last.Close > v.Trend*(1+s.cfg.TrendBand) {
			sig.FilterReasons = append(sig.FilterReasons, trading.BlockShortEntryReason)
		}
	}
	return sig
}
