// Package config describes a backtest run: which candles to load, which
// strategy to replay over them, the risk rules and where to write reports.
package config

import (
	"strings"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/trading"
)

// Data sources
const (
	SourceCSV   = "csv"
	SourceBybit = "bybit"
)

const (
	DefaultInterval = "1h"
	DefaultDataRoot = "data"
	DefaultExchange = "bybit"
	DefaultStrategy = "ema_cross"
	DefaultWarmup   = 500
	ResultsDir      = "results"
	DateLayout      = "2006-01-02"
)

// StrategyConfig names a bundled strategy and overrides its parameters.
type StrategyConfig struct {
	Name   string                 `json:"name" yaml:"name"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// OutputConfig selects the report formats written after a run.
type OutputConfig struct {
	Dir     string `json:"dir" yaml:"dir"`
	Console bool   `json:"console" yaml:"console"`
	Excel   bool   `json:"excel" yaml:"excel"`
	CSV     bool   `json:"csv" yaml:"csv"`
	JSON    bool   `json:"json" yaml:"json"`
	// Persist writes results to DATABASE_URL when it is configured.
	Persist bool `json:"persist" yaml:"persist"`
}

// RunConfig is the file format read by cmd/backtest. One run is executed per
// symbol; all of them share the strategy and risk settings.
type RunConfig struct {
	Symbols  []string           `json:"symbols" yaml:"symbols"`
	Interval string             `json:"interval" yaml:"interval"`
	Start    string             `json:"start,omitempty" yaml:"start,omitempty"`
	End      string             `json:"end,omitempty" yaml:"end,omitempty"`
	Source   string             `json:"source" yaml:"source"`
	DataRoot string             `json:"data_root" yaml:"data_root"`
	Exchange string             `json:"exchange" yaml:"exchange"`
	Strategy StrategyConfig     `json:"strategy" yaml:"strategy"`
	Risk     trading.RiskConfig `json:"risk" yaml:"risk"`
	Warmup   int                `json:"warmup" yaml:"warmup"`
	Workers  int                `json:"workers" yaml:"workers"`
	Output   OutputConfig       `json:"output" yaml:"output"`
}

// DefaultRunConfig returns a config that backtests BTCUSDT hourly candles from
// the local data tree with the default risk rules.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Symbols:  []string{"BTCUSDT"},
		Interval: DefaultInterval,
		Source:   SourceCSV,
		DataRoot: DefaultDataRoot,
		Exchange: DefaultExchange,
		Strategy: StrategyConfig{Name: DefaultStrategy},
		Risk:     trading.DefaultRiskConfig(),
		Warmup:   DefaultWarmup,
		Output: OutputConfig{
			Dir:     ResultsDir,
			Console: true,
			Excel:   true,
		},
	}
}

// StartTime parses Start; an empty value is the zero time.
func (c *RunConfig) StartTime() (time.Time, error) {
	return parseDate(c.Start)
}

// EndTime parses End as the last included day, so the range ends just before
// the following midnight.
func (c *RunConfig) EndTime() (time.Time, error) {
	t, err := parseDate(c.End)
	if err != nil || t.IsZero() {
		return t, err
	}
	return t.Add(24*time.Hour - time.Millisecond), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(DateLayout, s)
}

// normalize upper-cases symbols and fills empty fields with defaults.
func (c *RunConfig) normalize() {
	seen := make(map[string]bool, len(c.Symbols))
	symbols := c.Symbols[:0]
	for _, s := range c.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	c.Symbols = symbols
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		c.Source = SourceCSV
	}
	if c.Interval == "" {
		c.Interval = DefaultInterval
	}
	if c.DataRoot == "" {
		c.DataRoot = DefaultDataRoot
	}
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = DefaultStrategy
	}
	if c.Output.Dir == "" {
		c.Output.Dir = ResultsDir
	}
}
