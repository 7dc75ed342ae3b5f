package config

import (
	"fmt"

	"github.com/ducminhle1904/signal-backtest/internal/exchange/bybit"
	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/strategy"
)

// MaxWorkers caps the worker pool of one batch.
const MaxWorkers = 64

// Validate checks the run configuration, including its risk rules.
func (c *RunConfig) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return pipeerrors.NewConfigurationError("run_config", "Validate", fmt.Sprintf(format, args...))
	}

	if len(c.Symbols) == 0 {
		return fail("at least one symbol is required")
	}
	if _, err := bybit.ParseInterval(c.Interval); err != nil {
		return fail("invalid interval %q", c.Interval)
	}
	switch c.Source {
	case SourceCSV, SourceBybit:
	default:
		return fail("source must be %q or %q, got %q", SourceCSV, SourceBybit, c.Source)
	}

	start, err := c.StartTime()
	if err != nil {
		return fail("invalid start date %q", c.Start)
	}
	end, err := c.EndTime()
	if err != nil {
		return fail("invalid end date %q", c.End)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return fail("start %s is not before end %s", c.Start, c.End)
	}
	if c.Source == SourceBybit && start.IsZero() {
		return fail("a start date is required when loading candles from bybit")
	}

	if _, err := strategy.NormalizeName(c.Strategy.Name); err != nil {
		return fail("%v", err)
	}
	if c.Warmup < 0 {
		return fail("warmup must be non-negative, got %d", c.Warmup)
	}
	if c.Workers < 0 || c.Workers > MaxWorkers {
		return fail("workers must be between 0 and %d, got %d", MaxWorkers, c.Workers)
	}

	return c.Risk.Validate()
}
