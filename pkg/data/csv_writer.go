package data

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CandlePath returns where CSVProvider looks for symbol and interval under
// root: {root}/{exchange}/{category}/{SYMBOL}/{minutes}/candles.csv.
func CandlePath(root, exchange, category, symbol, interval string) string {
	minutes := NewDefaultFileLocator(nil).ConvertIntervalToMinutes(interval)
	return filepath.Join(root, exchange, category, strings.ToUpper(symbol), minutes, "candles.csv")
}

// WriteCSV writes bars in DefaultCSVFormat. Unconfirmed bars are dropped so
// a file never stores a candle that is still forming.
func WriteCSV(w io.Writer, bars []types.Bar) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	written := 0
	for _, b := range bars {
		if !b.IsConfirmed() {
			continue
		}
		err := cw.Write([]string{
			types.FormatMillis(b.Timestamp),
			formatNumber(b.Open),
			formatNumber(b.High),
			formatNumber(b.Low),
			formatNumber(b.Close),
			formatNumber(b.Volume),
		})
		if err != nil {
			return written, err
		}
		written++
	}
	cw.Flush()
	return written, cw.Error()
}

// SaveCSV replaces the file at path with bars, creating parent directories.
// The file is written next to its target and renamed into place.
func SaveCSV(path string, bars []types.Bar) (int, error) {
	if err := ValidateTimeSequence(bars); err != nil {
		return 0, pipeerrors.NewValidationError("csv_writer", "SaveCSV", err.Error()).WithContext("path", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, pipeerrors.NewDataError("csv_writer", "SaveCSV", err).WithContext("path", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".candles-*.csv")
	if err != nil {
		return 0, pipeerrors.NewDataError("csv_writer", "SaveCSV", err).WithContext("path", path)
	}
	defer os.Remove(tmp.Name())

	n, err := WriteCSV(tmp, bars)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		return 0, pipeerrors.NewDataError("csv_writer", "SaveCSV", err).WithContext("path", path)
	}
	return n, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
