package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, symbol, interval, body string) string {
	t.Helper()
	path := filepath.Join(dir, "bybit", "linear", symbol, interval, "candles.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestCSVProviderSkipsInvalidRows(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "BTCUSDT", "60", `time,open,high,low,close,volume
2024-01-01 00:00:00,100,101,99,100.5,10
2024-01-01 01:00:00,100.5,100,99,100,10
2024-01-01 02:00:00,abc,101,99,100,10
2024-01-01 03:00:00,100,102,99.5,101,12
short,row
`)

	p := NewCSVProvider(dir, "bybit", nil)
	bars, err := p.GetCandles(context.Background(), "btcusdt", "1h", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), bars[0].Timestamp)
	assert.Equal(t, 101.0, bars[1].Close)
}

func TestCSVProviderMissingFile(t *testing.T) {
	p := NewCSVProvider(t.TempDir(), "bybit", nil)
	_, err := p.GetCandles(context.Background(), "ETHUSDT", "5m", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestFilterByDateRange(t *testing.T) {
	bars := []types.Bar{
		types.MustBar(1_000, 1, 1, 1, 1, 1),
		types.MustBar(2_000, 1, 1, 1, 1, 1),
		types.MustBar(3_000, 1, 1, 1, 1, 1),
	}
	out := FilterByDateRange(bars, time.UnixMilli(2_000), time.UnixMilli(3_000))
	require.Len(t, out, 2)
	assert.Equal(t, int64(2_000), out[0].Timestamp)

	assert.Len(t, FilterByDateRange(bars, time.Time{}, time.UnixMilli(1_500)), 1)
}

func TestValidateTimeSequence(t *testing.T) {
	assert.NoError(t, ValidateTimeSequence(nil))
	dup := []types.Bar{types.MustBar(1, 1, 1, 1, 1, 1), types.MustBar(1, 1, 1, 1, 1, 1)}
	assert.Error(t, ValidateTimeSequence(dup))
}

type countingRepo struct {
	calls int
	bars  []types.Bar
}

func (r *countingRepo) GetCandles(context.Context, string, string, time.Time, time.Time) ([]types.Bar, error) {
	r.calls++
	return r.bars, nil
}

func TestCachedProviderLoadsOnce(t *testing.T) {
	repo := &countingRepo{bars: []types.Bar{types.MustBar(1, 1, 1, 1, 1, 1)}}
	p := NewCachedProvider(repo, nil)

	for i := 0; i < 3; i++ {
		bars, err := p.GetCandles(context.Background(), "BTCUSDT", "60", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, bars, 1)
	}
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 1, p.GetCache().Size())

	p.ClearCache()
	_, _ = p.GetCandles(context.Background(), "BTCUSDT", "60", time.Time{}, time.Time{})
	assert.Equal(t, 2, repo.calls)
}

func TestConvertIntervalToMinutes(t *testing.T) {
	l := NewDefaultFileLocator(nil)
	for in, want := range map[string]string{"5m": "5", "1h": "60", "4h": "240", "1d": "1440", "D": "1440", "15": "15"} {
		assert.Equal(t, want, l.ConvertIntervalToMinutes(in), in)
	}
}

func TestSaveCSVReadsBack(t *testing.T) {
	dir := t.TempDir()
	hour := int64(time.Hour / time.Millisecond)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	forming, err := types.NewBar(base+2*hour, 102, 103, 101, 102.5, 4, 0)
	require.NoError(t, err)
	bars := []types.Bar{
		types.MustBar(base, 100, 101.25, 99.5, 100.75, 12.5),
		types.MustBar(base+hour, 100.75, 102, 100, 101.5, 8),
		forming,
	}

	path := CandlePath(dir, "bybit", "linear", "ethusdt", "1h")
	assert.Equal(t, filepath.Join(dir, "bybit", "linear", "ETHUSDT", "60", "candles.csv"), path)

	n, err := SaveCSV(path, bars)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := NewCSVProvider(dir, "bybit", nil).GetCandles(context.Background(), "ETHUSDT", "60", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base+hour, got[1].Timestamp)
	assert.Equal(t, 101.25, got[0].High)
	assert.Equal(t, 12.5, got[0].Volume)
}

func TestSaveCSVRejectsUnorderedBars(t *testing.T) {
	bars := []types.Bar{types.MustBar(2_000, 1, 1, 1, 1, 1), types.MustBar(1_000, 1, 1, 1, 1, 1)}
	_, err := SaveCSV(filepath.Join(t.TempDir(), "candles.csv"), bars)
	assert.Error(t, err)
}
