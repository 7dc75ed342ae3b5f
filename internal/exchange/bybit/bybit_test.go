package bybit

import (
	"context"
	"errors"
	"testing"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeSource serves hourly klines from a fixed history, newest first, the
// way the kline endpoint pages.
type fakeSource struct {
	history []Kline
	calls   []KlineParams
	fail    []error
}

func (f *fakeSource) GetKlines(_ context.Context, p KlineParams) ([]Kline, error) {
	f.calls = append(f.calls, p)
	if len(f.fail) > 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		return nil, err
	}
	var page []Kline
	for i := len(f.history) - 1; i >= 0 && len(page) < p.Limit; i-- {
		k := f.history[i]
		if k.StartTime.After(*p.End) || (p.Start != nil && k.StartTime.Before(*p.Start)) {
			continue
		}
		page = append(page, k)
	}
	return page, nil
}

func hourlyHistory(start time.Time, n int) []Kline {
	out := make([]Kline, n)
	for i := range out {
		p := 100 + float64(i%10)
		out[i] = Kline{StartTime: start.Add(time.Duration(i) * time.Hour), OpenPrice: p, HighPrice: p + 1, LowPrice: p - 1, ClosePrice: p, Volume: 10}
	}
	return out
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func TestCandleRepositoryPagesBackwards(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{history: hourlyHistory(start, 2500)}
	repo := NewCandleRepository(src, "", nil).WithRetry(fastRetry())
	repo.now = func() time.Time { return start.Add(3000 * time.Hour) }

	bars, err := repo.GetCandles(context.Background(), "btcusdt", "1h", start, start.Add(2499*time.Hour))
	require.NoError(t, err)

	require.Len(t, bars, 2500)
	assert.Len(t, src.calls, 3)
	assert.Equal(t, "BTCUSDT", src.calls[0].Symbol)
	assert.Equal(t, Interval1h, src.calls[0].Interval)
	assert.Equal(t, start.UnixMilli(), bars[0].Timestamp)
	for i := 1; i < len(bars); i++ {
		require.Greater(t, bars[i].Timestamp, bars[i-1].Timestamp)
	}
	assert.True(t, bars[len(bars)-1].IsConfirmed())
}

func TestCandleRepositoryThrottlesPages(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{history: hourlyHistory(start, 2500)}
	repo := NewCandleRepository(src, "", nil).WithRetry(fastRetry()).WithRateLimit(20)
	repo.now = func() time.Time { return start.Add(3000 * time.Hour) }

	began := time.Now()
	_, err := repo.GetCandles(context.Background(), "BTCUSDT", "1h", start, start.Add(2499*time.Hour))
	require.NoError(t, err)
	require.Len(t, src.calls, 3)
	// first page is free, the next two wait 50ms each
	assert.GreaterOrEqual(t, time.Since(began), 90*time.Millisecond)

	repo.WithRateLimit(0)
	assert.Equal(t, rate.Inf, repo.limiter.Limit())
}

func TestCandleRepositoryMarksFormingCandle(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{history: hourlyHistory(start, 10)}
	repo := NewCandleRepository(src, "linear", nil).WithRetry(fastRetry())
	repo.now = func() time.Time { return start.Add(9*time.Hour + 30*time.Minute) }

	bars, err := repo.GetCandles(context.Background(), "BTCUSDT", "60", start, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 10)
	assert.True(t, bars[8].IsConfirmed())
	assert.False(t, bars[9].IsConfirmed())
}

func TestCandleRepositoryRetriesRateLimit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{
		history: hourlyHistory(start, 5),
		fail:    []error{NewBybitError(ErrCodeRateLimitExceeded, "too many visits"), errors.New("connection reset")},
	}
	repo := NewCandleRepository(src, "", nil).WithRetry(fastRetry())
	repo.now = func() time.Time { return start.Add(10 * time.Hour) }

	bars, err := repo.GetCandles(context.Background(), "BTCUSDT", "60", start, start.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	assert.Len(t, src.calls, 3)
}

func TestCandleRepositoryStopsOnPermanentError(t *testing.T) {
	src := &fakeSource{fail: []error{NewBybitError(ErrCodeSymbolNotFound, "symbol invalid")}}
	repo := NewCandleRepository(src, "", nil).WithRetry(fastRetry())

	_, err := repo.GetCandles(context.Background(), "NOPE", "60", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Len(t, src.calls, 1)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryExchange))
	assert.False(t, pipeerrors.IsRetryable(err))
}

func TestCandleRepositoryRejectsBadInterval(t *testing.T) {
	repo := NewCandleRepository(&fakeSource{}, "", nil)
	_, err := repo.GetCandles(context.Background(), "BTCUSDT", "7x", time.Time{}, time.Time{})
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryValidation))
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want KlineInterval
	}{
		{"60", Interval1h},
		{"1h", Interval1h},
		{"4h", Interval4h},
		{"5m", Interval5m},
		{"d", Interval1d},
		{"1d", Interval1d},
		{"W", Interval1w},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseInterval("7m")
	assert.Error(t, err)
	assert.Equal(t, 4*time.Hour, Interval4h.Duration())
}

func TestParseKlineRows(t *testing.T) {
	klines, err := parseKlineRows([][]string{
		{"1670608800000", "17071", "17073", "17027", "17055.5", "268611", "15.74462667"},
		{"short"},
	})
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, int64(1670608800000), klines[0].StartTime.UnixMilli())
	assert.Equal(t, 17055.5, klines[0].ClosePrice)

	_, err = parseKlineRows([][]string{{"1", "x", "1", "1", "1", "1", "1"}})
	assert.Error(t, err)
}

type stopCall struct {
	symbol, stop string
}

type fakeStopSetter struct {
	calls []stopCall
	errs  []error
}

func (f *fakeStopSetter) SetTradingStop(_ context.Context, _, symbol string, _ int, _, stopLoss string) error {
	f.calls = append(f.calls, stopCall{symbol, stopLoss})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func TestStopAmenderSetsPositionStop(t *testing.T) {
	setter := &fakeStopSetter{errs: []error{NewBybitError(ErrCodeRateLimitExceeded, "slow down")}}
	amender := NewStopAmender(setter, "", nil)
	amender.retry = fastRetry()

	require.NoError(t, amender.MoveStopLoss(context.Background(), "ETHUSDT", "ord-1", 2315.5))
	assert.Equal(t, []stopCall{{"ETHUSDT", "2315.5"}, {"ETHUSDT", "2315.5"}}, setter.calls)
}

func TestStopAmenderOpensBreaker(t *testing.T) {
	setter := &fakeStopSetter{}
	for i := 0; i < 10; i++ {
		setter.errs = append(setter.errs, NewBybitError(ErrCodeOrderNotFound, "order not exists"))
	}
	amender := NewStopAmender(setter, "", nil)
	amender.retry = fastRetry()

	for i := 0; i < 5; i++ {
		assert.Error(t, amender.MoveStopLoss(context.Background(), "ETHUSDT", "ord-1", 1))
	}
	assert.Equal(t, CircuitOpen, amender.breaker.State())

	err := amender.MoveStopLoss(context.Background(), "ETHUSDT", "ord-1", 1)
	require.Error(t, err)
	assert.Len(t, setter.calls, 5)
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, fastRetry(), func() error { calls++; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
