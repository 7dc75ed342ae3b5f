package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// CSVProvider reads candles from data/{exchange}/{category}/{symbol}/{interval}/candles.csv
type CSVProvider struct {
	root     string
	exchange string
	format   CSVColumnMapping
	locator  FileLocator
	log      *logger.Logger
}

// NewCSVProvider creates a new CSV data provider with default format
func NewCSVProvider(root, exchange string, log *logger.Logger) *CSVProvider {
	return NewCSVProviderWithFormat(root, exchange, DefaultCSVFormat, log)
}

// NewCSVProviderWithFormat creates a new CSV data provider with custom format
func NewCSVProviderWithFormat(root, exchange string, format CSVColumnMapping, log *logger.Logger) *CSVProvider {
	if log == nil {
		log = logger.Nop()
	}
	if exchange == "" {
		exchange = "bybit"
	}
	return &CSVProvider{
		root:     root,
		exchange: exchange,
		format:   format,
		locator:  NewDefaultFileLocator(log),
		log:      log,
	}
}

// GetName returns the name of the data provider
func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// GetCandles locates the file of symbol and interval and returns its bars
// within [start, end].
func (p *CSVProvider) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := p.locator.FindDataFile(p.root, p.exchange, symbol, interval)
	if path == "" {
		return nil, pipeerrors.NewDataError("csv_provider", "GetCandles",
			fmt.Errorf("no data file for %s %s under %s", symbol, interval, p.root)).
			WithContext("symbol", symbol)
	}
	bars, err := p.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return FilterByDateRange(bars, start, end), nil
}

// LoadFile parses one CSV file. Rows that do not form a valid bar are
// skipped with a warning.
func (p *CSVProvider) LoadFile(path string) ([]types.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, pipeerrors.NewDataError("csv_provider", "LoadFile", err).WithContext("path", path)
	}
	defer file.Close()

	bars, err := p.parse(file)
	if err != nil {
		return nil, pipeerrors.NewDataError("csv_provider", "LoadFile", err).WithContext("path", path)
	}
	if err := ValidateTimeSequence(bars); err != nil {
		return nil, pipeerrors.NewDataError("csv_provider", "LoadFile", err).WithContext("path", path)
	}
	return bars, nil
}

func (p *CSVProvider) parse(r io.Reader) ([]types.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	format := p.format

	// Skip header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	var data []types.Bar
	lineNum := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading CSV at line %d: %w", lineNum, err)
		}
		lineNum++

		if len(record) < format.MinColumns {
			p.log.Warning("insufficient columns at line %d (expected %d, got %d), skipping", lineNum, format.MinColumns, len(record))
			continue
		}

		ts, err := p.parseTimestamp(record[format.TimestampCol])
		if err != nil {
			p.log.Warning("invalid timestamp %q at line %d, skipping: %v", record[format.TimestampCol], lineNum, err)
			continue
		}

		var values [5]float64
		cols := [5]int{format.OpenCol, format.HighCol, format.LowCol, format.CloseCol, format.VolumeCol}
		valid := true
		for i, col := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				p.log.Warning("invalid number %q at line %d, skipping: %v", record[col], lineNum, err)
				valid = false
				break
			}
			values[i] = v
		}
		if !valid {
			continue
		}

		bar, err := types.NewBar(ts, values[0], values[1], values[2], values[3], values[4], 1)
		if err != nil {
			p.log.Warning("line %d: %v, skipping", lineNum, err)
			continue
		}
		data = append(data, bar)
	}
	return data, nil
}

func (p *CSVProvider) parseTimestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if p.format.DateFormat == "" {
		return strconv.ParseInt(raw, 10, 64)
	}
	t, err := time.Parse(p.format.DateFormat, raw)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
