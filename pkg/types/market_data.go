package types

import (
	"fmt"
	"math"
	"strings"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
)

// Bar is one OHLCV candle. Timestamp is in Unix milliseconds.
// Confirm is 0 while the candle is still forming and nonzero once closed.
//
// Build bars with NewBar; the zero value is only useful as a placeholder.
type Bar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"ts"`
	Confirm   int     `json:"confirm"`
}

// NewBar validates OHLC consistency and returns an immutable Bar.
func NewBar(ts int64, open, high, low, close, volume float64, confirm int) (Bar, error) {
	for name, v := range map[string]float64{"open": open, "high": high, "low": low, "close": close, "volume": volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Bar{}, invalidBar(ts, fmt.Sprintf("%s is not a finite number", name))
		}
	}
	if low < 0 {
		return Bar{}, invalidBar(ts, fmt.Sprintf("negative low %.8f", low))
	}
	if volume < 0 {
		return Bar{}, invalidBar(ts, fmt.Sprintf("negative volume %.8f", volume))
	}
	if low > math.Min(open, close) {
		return Bar{}, invalidBar(ts, fmt.Sprintf("low %.8f above body min %.8f", low, math.Min(open, close)))
	}
	if high < math.Max(open, close) {
		return Bar{}, invalidBar(ts, fmt.Sprintf("high %.8f below body max %.8f", high, math.Max(open, close)))
	}

	return Bar{
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Timestamp: ts,
		Confirm:   confirm,
	}, nil
}

// MustBar is NewBar for fixtures and tests; it panics on invalid input.
func MustBar(ts int64, open, high, low, close, volume float64) Bar {
	b, err := NewBar(ts, open, high, low, close, volume, 1)
	if err != nil {
		panic(err)
	}
	return b
}

func invalidBar(ts int64, msg string) error {
	return pipeerrors.NewValidationError("bar", "NewBar", msg).WithContext("ts", ts)
}

// Time returns the bar open time in UTC.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// Range returns high minus low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// IsConfirmed reports whether the candle is closed.
func (b Bar) IsConfirmed() bool {
	return b.Confirm != 0
}

// FormatMillis renders a millisecond timestamp the way trade records store times.
func FormatMillis(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02 15:04:05")
}

// TradeSide is the direction of a position.
type TradeSide int

const (
	Long TradeSide = iota
	Short
)

func (s TradeSide) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// ParseTradeSide accepts LONG/SHORT and the exchange spellings BUY/SELL.
func ParseTradeSide(s string) (TradeSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	default:
		return Long, fmt.Errorf("unknown trade side %q", s)
	}
}

// Opposite returns the other side.
func (s TradeSide) Opposite() TradeSide {
	if s == Long {
		return Short
	}
	return Long
}

// Sign is +1 for longs and -1 for shorts.
func (s TradeSide) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}
