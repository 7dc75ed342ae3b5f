package bybit

import (
	"context"
	"sort"
	"strings"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"golang.org/x/time/rate"
)

// DefaultKlineRate keeps paging well under the public market data limit.
const DefaultKlineRate = 10

// KlineSource returns one page of klines; *Client implements it.
type KlineSource interface {
	GetKlines(ctx context.Context, params KlineParams) ([]Kline, error)
}

// CandleRepository loads historical candles from the kline endpoint, paging
// backwards from the end of the range.
type CandleRepository struct {
	source   KlineSource
	category string
	retry    RetryConfig
	limiter  *rate.Limiter
	log      *logger.Logger
	now      func() time.Time
}

// NewCandleRepository creates a repository over source.
func NewCandleRepository(source KlineSource, category string, log *logger.Logger) *CandleRepository {
	if category == "" {
		category = DefaultCategory
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CandleRepository{
		source:   source,
		category: category,
		retry:    DefaultRetryConfig(),
		limiter:  rate.NewLimiter(rate.Limit(DefaultKlineRate), 1),
		log:      log,
		now:      time.Now,
	}
}

// WithRetry replaces the retry policy.
func (r *CandleRepository) WithRetry(cfg RetryConfig) *CandleRepository {
	r.retry = cfg
	return r
}

// WithRateLimit caps kline requests per second. A non-positive value
// disables the limiter.
func (r *CandleRepository) WithRateLimit(perSecond float64) *CandleRepository {
	if perSecond <= 0 {
		r.limiter = rate.NewLimiter(rate.Inf, 1)
		return r
	}
	r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return r
}

// GetCandles returns the candles of symbol opening within [start, end],
// oldest first. A zero end means now. Candles still forming are returned
// unconfirmed.
func (r *CandleRepository) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Bar, error) {
	iv, err := ParseInterval(interval)
	if err != nil {
		return nil, pipeerrors.NewValidationError("bybit", "GetCandles", err.Error())
	}
	now := r.now()
	if end.IsZero() || end.After(now) {
		end = now
	}
	if !start.IsZero() && start.After(end) {
		return nil, pipeerrors.NewValidationError("bybit", "GetCandles", "start after end").
			WithContext("start", start).WithContext("end", end)
	}
	symbol = strings.ToUpper(symbol)

	byTS := make(map[int64]Kline)
	cursor := end
	for page := 1; ; page++ {
		params := KlineParams{
			Category: r.category,
			Symbol:   symbol,
			Interval: iv,
			End:      timePtr(cursor),
			Limit:    MaxKlineLimit,
		}
		if !start.IsZero() {
			params.Start = timePtr(start)
		}

		var klines []Kline
		err := Retry(ctx, r.retry, func() error {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			var err error
			klines, err = r.source.GetKlines(ctx, params)
			return err
		})
		if err != nil {
			return nil, toPipelineError("GetKlines", err)
		}
		if len(klines) == 0 {
			break
		}

		oldest := klines[0].StartTime
		for _, k := range klines {
			byTS[k.StartTime.UnixMilli()] = k
			if k.StartTime.Before(oldest) {
				oldest = k.StartTime
			}
		}
		r.log.Info("fetched page %d of %s %s: %d klines back to %s", page, symbol, iv, len(klines), oldest.Format(time.RFC3339))

		if len(klines) < MaxKlineLimit || start.IsZero() || !oldest.After(start) {
			break
		}
		cursor = oldest.Add(-time.Millisecond)
	}

	return r.toBars(byTS, iv, start, end, now), nil
}

func (r *CandleRepository) toBars(byTS map[int64]Kline, iv KlineInterval, start, end, now time.Time) []types.Bar {
	keys := make([]int64, 0, len(byTS))
	for ts := range byTS {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	bars := make([]types.Bar, 0, len(keys))
	for _, ts := range keys {
		k := byTS[ts]
		if (!start.IsZero() && k.StartTime.Before(start)) || k.StartTime.After(end) {
			continue
		}
		confirm := 1
		if k.StartTime.Add(iv.Duration()).After(now) {
			confirm = 0
		}
		bar, err := types.NewBar(ts, k.OpenPrice, k.HighPrice, k.LowPrice, k.ClosePrice, k.Volume, confirm)
		if err != nil {
			r.log.Warning("skipping invalid kline: %v", err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

func timePtr(t time.Time) *time.Time {
	return &t
}
