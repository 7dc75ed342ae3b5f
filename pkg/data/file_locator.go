package data

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ducminhle1904/signal-backtest/internal/logger"
)

// categories lists the product folders searched per exchange, most common first.
var categories = map[string][]string{
	"bybit":   {"linear", "spot", "inverse"},
	"binance": {"futures", "spot"},
}

var unitMinutes = map[byte]int{'m': 1, 'h': 60, 'd': 24 * 60, 'w': 7 * 24 * 60}

// DefaultFileLocator resolves candle files on the local file system.
type DefaultFileLocator struct {
	log *logger.Logger
}

func NewDefaultFileLocator(log *logger.Logger) *DefaultFileLocator {
	if log == nil {
		log = logger.Nop()
	}
	return &DefaultFileLocator{log: log}
}

// ConvertIntervalToMinutes maps "5m", "1h", "4h", "D" or a bare minute count
// to the minute folder name. Unknown input is returned unchanged.
func (f *DefaultFileLocator) ConvertIntervalToMinutes(interval string) string {
	interval = strings.TrimSpace(interval)
	if _, err := strconv.Atoi(interval); err == nil {
		return interval
	}
	switch strings.ToUpper(interval) {
	case "D":
		return "1440"
	case "W":
		return "10080"
	}
	lower := strings.ToLower(interval)
	if len(lower) < 2 {
		return interval
	}
	n, err := strconv.Atoi(lower[:len(lower)-1])
	mult, ok := unitMinutes[lower[len(lower)-1]]
	if err != nil || !ok {
		return interval
	}
	return strconv.Itoa(n * mult)
}

// FindDataFile returns the first existing candle file for symbol and
// interval, or "" when there is none. A flat {root}/{SYMBOL}_{minutes}.csv
// export wins over the {root}/{exchange}/{category}/{SYMBOL}/{minutes}/candles.csv tree.
func (f *DefaultFileLocator) FindDataFile(dataRoot, exchange, symbol, interval string) string {
	symbol = strings.ToUpper(symbol)
	minutes := f.ConvertIntervalToMinutes(interval)

	candidates := []string{filepath.Join(dataRoot, symbol+"_"+minutes+".csv")}
	cats, ok := categories[strings.ToLower(exchange)]
	if !ok {
		cats = []string{"linear", "futures", "spot", "inverse"}
	}
	for _, category := range cats {
		candidates = append(candidates, filepath.Join(dataRoot, exchange, category, symbol, minutes, "candles.csv"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	f.log.Warning("no data file found for %s %s %s in: %s", exchange, symbol, interval, strings.Join(candidates, ", "))
	return ""
}
