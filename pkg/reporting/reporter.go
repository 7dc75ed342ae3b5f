package reporting

import (
	"path/filepath"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
)

// DefaultReporter implements ConsoleReporter and FileReporter
type DefaultReporter struct {
	console *DefaultConsoleReporter
	csv     *DefaultCSVReporter
	excel   *DefaultExcelReporter
}

// NewDefaultReporter creates a new default reporter with all functionality
func NewDefaultReporter() *DefaultReporter {
	return &DefaultReporter{
		console: NewDefaultConsoleReporter(),
		csv:     NewDefaultCSVReporter(),
		excel:   NewDefaultExcelReporter(),
	}
}

func (r *DefaultReporter) OutputResult(res *backtest.Result, interval string) {
	r.console.OutputResult(res, interval)
}

func (r *DefaultReporter) OutputBatch(results []backtest.JobResult) {
	r.console.OutputBatch(results)
}

func (r *DefaultReporter) WriteTradesCSV(res *backtest.Result, path string) error {
	return r.csv.WriteTradesCSV(res, path)
}

func (r *DefaultReporter) WriteFilteredSignalsCSV(res *backtest.Result, path string) error {
	return r.csv.WriteFilteredSignalsCSV(res, path)
}

func (r *DefaultReporter) WriteXLSX(res *backtest.Result, path string) error {
	return r.excel.WriteXLSX(res, path)
}

func (r *DefaultReporter) WriteResultJSON(res *backtest.Result, path string) error {
	return WriteResultJSON(res, path)
}

// ReportingManager writes every configured output of a run
type ReportingManager struct {
	console ConsoleReporter
	files   FileReporter
	paths   *DefaultPathManager
	config  ReportingConfig
}

// NewReportingManager creates a new reporting manager with configuration
func NewReportingManager(config ReportingConfig) *ReportingManager {
	reporter := NewDefaultReporter()
	return &ReportingManager{
		console: reporter,
		files:   reporter,
		paths:   NewDefaultPathManager(config.OutputDirectory),
		config:  config,
	}
}

// WithConsole replaces the console reporter.
func (m *ReportingManager) WithConsole(c ConsoleReporter) *ReportingManager {
	m.console = c
	return m
}

// ReportResult outputs one run and returns the files written.
func (m *ReportingManager) ReportResult(res *backtest.Result, interval string) ([]string, error) {
	if m.config.EnableConsole {
		m.console.OutputResult(res, interval)
	}
	if !m.config.EnableFiles() {
		return nil, nil
	}

	dir := m.paths.GetDefaultOutputDir(res.InstID, interval, res.Strategy)
	var written []string
	write := func(name string, fn func(*backtest.Result, string) error) error {
		path := filepath.Join(dir, name)
		if err := fn(res, path); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if m.config.ExcelEnabled {
		if err := write("trades.xlsx", m.files.WriteXLSX); err != nil {
			return written, err
		}
	}
	if m.config.CSVEnabled {
		if err := write("trades.csv", m.files.WriteTradesCSV); err != nil {
			return written, err
		}
		if err := write("filtered_signals.csv", m.files.WriteFilteredSignalsCSV); err != nil {
			return written, err
		}
	}
	if m.config.JSONEnabled {
		if err := write("result.json", m.files.WriteResultJSON); err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReportBatch prints the batch table and, when files are enabled, writes
// summary.json under the output directory.
func (m *ReportingManager) ReportBatch(results []backtest.JobResult) (string, error) {
	if m.config.EnableConsole {
		m.console.OutputBatch(results)
	}
	if !m.config.EnableFiles() {
		return "", nil
	}
	path := filepath.Join(m.paths.root, "summary.json")
	return path, WriteBatchSummaryJSON(results, path)
}
