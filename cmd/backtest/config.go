package main

import (
	"strings"

	"github.com/ducminhle1904/signal-backtest/pkg/config"
)

// overrides carries the command line values that replace config file fields.
// Empty strings and negative numbers mean "keep the file value".
type overrides struct {
	symbols     string
	interval    string
	start       string
	end         string
	source      string
	dataRoot    string
	strategy    string
	workers     int
	warmup      int
	consoleOnly bool
	persist     bool
}

func loadRunConfig(path string, o overrides) (*config.RunConfig, error) {
	cfg := config.DefaultRunConfig()
	if path != "" {
		loaded, err := config.LoadRunConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o overrides) apply(cfg *config.RunConfig) {
	if o.symbols != "" {
		var symbols []string
		for _, s := range strings.Split(o.symbols, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		cfg.Symbols = symbols
	}
	if o.interval != "" {
		cfg.Interval = o.interval
	}
	if o.start != "" {
		cfg.Start = o.start
	}
	if o.end != "" {
		cfg.End = o.end
	}
	if o.source != "" {
		cfg.Source = strings.ToLower(o.source)
	}
	if o.dataRoot != "" {
		cfg.DataRoot = o.dataRoot
	}
	if o.strategy != "" {
		cfg.Strategy.Name = o.strategy
		cfg.Strategy.Params = nil
	}
	if o.workers >= 0 {
		cfg.Workers = o.workers
	}
	if o.warmup >= 0 {
		cfg.Warmup = o.warmup
	}
	if o.consoleOnly {
		cfg.Output.Excel = false
		cfg.Output.CSV = false
		cfg.Output.JSON = false
	}
	if o.persist {
		cfg.Output.Persist = true
	}
}
