// Package data loads historical candles for backtests from CSV files, an
// in-memory cache or, through internal/exchange/bybit, the exchange API.
package data

import (
	"context"
	"time"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// CandleRepository loads the bars of symbol and interval whose open time lies
// in [start, end], oldest first. A zero start or end leaves that side open.
type CandleRepository interface {
	GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Bar, error)
}

// DataCache interface for caching loaded data
type DataCache interface {
	// Get retrieves data from cache if available
	Get(key string) ([]types.Bar, bool)

	// Set stores data in cache
	Set(key string, data []types.Bar)

	// Clear removes all cached data
	Clear()

	// Size returns the number of cached entries
	Size() int
}

// CSVColumnMapping defines the column positions for different CSV formats
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	// DateFormat parses the timestamp column; empty means Unix milliseconds.
	DateFormat string
}

// Predefined CSV formats
var (
	DefaultCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		DateFormat:   "2006-01-02 15:04:05",
	}

	MillisCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
	}
)

// FileLocator interface for finding data files
type FileLocator interface {
	// FindDataFile attempts to locate data files for a specific exchange and symbol
	FindDataFile(dataRoot, exchange, symbol, interval string) string

	// ConvertIntervalToMinutes converts interval strings like "5m", "1h", "4h" to minute numbers
	ConvertIntervalToMinutes(interval string) string
}
