// Package reporting renders backtest results as console tables, Excel
// workbooks, CSV ledgers and JSON documents.
package reporting

import (
	"github.com/ducminhle1904/signal-backtest/internal/backtest"
)

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	OutputResult(res *backtest.Result, interval string)
	OutputBatch(results []backtest.JobResult)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteTradesCSV(res *backtest.Result, path string) error
	WriteFilteredSignalsCSV(res *backtest.Result, path string) error
	WriteXLSX(res *backtest.Result, path string) error
	WriteResultJSON(res *backtest.Result, path string) error
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle   int
	CurrencyStyle int
	PriceStyle    int
	PercentStyle  int
	BaseStyle     int
	ProfitStyle   int
	LossStyle     int
	EntryStyle    int
	ExitStyle     int
	SummaryStyle  int
}

// ReportingConfig holds configuration for reporting
type ReportingConfig struct {
	EnableConsole   bool
	OutputDirectory string
	ExcelEnabled    bool
	CSVEnabled      bool
	JSONEnabled     bool
}

// EnableFiles reports whether any file format is selected.
func (c ReportingConfig) EnableFiles() bool {
	return c.ExcelEnabled || c.CSVEnabled || c.JSONEnabled
}
