package types

import (
	"math"
	"testing"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBarValidation(t *testing.T) {
	tests := []struct {
		name          string
		o, h, l, c, v float64
		wantErr       bool
	}{
		{"valid", 100, 101, 99, 100.5, 10, false},
		{"doji", 100, 100, 100, 100, 0, false},
		{"low above open", 100, 101, 100.5, 100.8, 1, true},
		{"high below close", 100, 100.5, 99, 101, 1, true},
		{"negative volume", 100, 101, 99, 100, -1, true},
		{"negative low", 1, 2, -0.1, 1, 1, true},
		{"nan close", 100, 101, 99, math.NaN(), 1, true},
		{"inf high", 100, math.Inf(1), 99, 100, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar, err := NewBar(1000, tt.o, tt.h, tt.l, tt.c, tt.v, 1)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryValidation))
				assert.Equal(t, Bar{}, bar)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.c, bar.Close)
			assert.True(t, bar.IsConfirmed())
		})
	}
}

func TestBarHelpers(t *testing.T) {
	bar := MustBar(1_700_000_000_000, 100, 110, 95, 105, 1)
	assert.Equal(t, 15.0, bar.Range())
	assert.Equal(t, int64(1_700_000_000), bar.Time().Unix())
	assert.Equal(t, "2023-11-14 22:13:20", FormatMillis(bar.Timestamp))
}

func TestTradeSide(t *testing.T) {
	assert.Equal(t, "LONG", Long.String())
	assert.Equal(t, "SHORT", Short.String())
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, -1.0, Short.Sign())
	assert.Panics(t, func() { MustBar(0, 1, 0.5, 0.2, 1, 1) })

	side, err := ParseTradeSide(" sell")
	assert.NoError(t, err)
	assert.Equal(t, Short, side)
	side, err = ParseTradeSide("Long")
	assert.NoError(t, err)
	assert.Equal(t, Long, side)
	_, err = ParseTradeSide("flat")
	assert.Error(t, err)
}
