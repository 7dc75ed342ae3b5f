package indicators

import (
	"testing"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateTestData creates bars whose close steps by step each bar
func generateTestData(count int, start, step float64) []types.Bar {
	data := make([]types.Bar, count)
	price := start
	for i := 0; i < count; i++ {
		data[i] = types.MustBar(int64(i)*60_000, price, price+1, price-1, price, 1000+float64(i))
		price += step
	}
	return data
}

func TestSMA(t *testing.T) {
	sma := NewSMA(5)
	_, err := sma.Calculate(generateTestData(3, 100, 1))
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryData))
	assert.Contains(t, err.Error(), "insufficient data")

	value, err := sma.Calculate(generateTestData(10, 100, 1))
	require.NoError(t, err)
	// closes 105..109
	assert.InDelta(t, 107.0, value, 1e-12)
	assert.True(t, sma.IsReady())

	vol := NewSMAOf(2, Volume)
	vol.Update(types.MustBar(0, 1, 1, 1, 1, 10))
	assert.False(t, vol.IsReady())
	vol.Update(types.MustBar(1, 1, 1, 1, 1, 20))
	assert.Equal(t, 15.0, vol.Update(types.MustBar(2, 1, 1, 1, 1, 10)))
}

func TestEMASeedsWithSimpleAverage(t *testing.T) {
	ema := NewEMA(3)
	data := generateTestData(3, 10, 1)
	for _, b := range data {
		ema.Update(b)
	}
	assert.True(t, ema.IsReady())
	assert.InDelta(t, 11.0, ema.GetLastValue(), 1e-12)

	// alpha = 0.5
	next := ema.Update(types.MustBar(3, 15, 16, 14, 15, 1))
	assert.InDelta(t, 13.0, next, 1e-12)

	again, err := NewEMA(3).Calculate(append(data, types.MustBar(3, 15, 16, 14, 15, 1)))
	require.NoError(t, err)
	assert.InDelta(t, next, again, 1e-12)
}

func TestRSI(t *testing.T) {
	rising := NewRSI(14)
	value, err := rising.Calculate(generateTestData(20, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, 100.0, value)

	falling := NewRSI(14)
	value, err = falling.Calculate(generateTestData(20, 100, -1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)

	flat := NewRSI(14)
	value, err = flat.Calculate(generateTestData(20, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, 50.0, value)

	_, err = NewRSI(14).Calculate(generateTestData(14, 100, 1))
	assert.Error(t, err)
}

func TestATR(t *testing.T) {
	atr := NewATR(3)
	// constant range of 2, no gaps
	value, err := atr.Calculate(generateTestData(10, 100, 0))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, value, 1e-12)

	// a gap widens the true range
	assert.Equal(t, 6.0, TrueRange(types.MustBar(1, 105, 106, 104, 105, 1), 100))
	next := atr.Update(types.MustBar(11, 105, 106, 104, 105, 1))
	assert.InDelta(t, (2.0*2+6)/3, next, 1e-12)
}

func TestCacheFeedsEachBarOnce(t *testing.T) {
	c := NewCache(3)
	c.Register("ema_fast", NewEMA(2))

	assert.Equal(t, 0.0, c.ATR())
	for _, b := range generateTestData(5, 100, 0) {
		c.Update(b)
		c.Update(b)
	}
	assert.Equal(t, 5, c.Bars())
	assert.InDelta(t, 2.0, c.ATR(), 1e-12)

	v, ok := c.Value("ema_fast")
	require.True(t, ok)
	assert.InDelta(t, 100.0, v, 1e-12)

	_, ok = c.Value("missing")
	assert.False(t, ok)
}
