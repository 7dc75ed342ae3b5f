package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/exchange/bybit"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/pkg/config"
	"github.com/ducminhle1904/signal-backtest/pkg/data"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

type job struct {
	Symbol   string
	Interval string
	Path     string
}

func (j job) String() string {
	return j.Symbol + " " + j.Interval
}

func buildJobs(root, category string, symbols, intervals []string) ([]job, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols given")
	}
	if len(intervals) == 0 {
		return nil, errors.New("no intervals given")
	}
	jobs := make([]job, 0, len(symbols)*len(intervals))
	for _, iv := range intervals {
		if _, err := bybit.ParseInterval(iv); err != nil {
			return nil, err
		}
		for _, sym := range symbols {
			jobs = append(jobs, job{
				Symbol:   sym,
				Interval: iv,
				Path:     data.CandlePath(root, config.DefaultExchange, category, sym, iv),
			})
		}
	}
	return jobs, nil
}

// parseRange resolves the day bounds of a download. The end day is included.
func parseRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	if start == "" {
		return time.Time{}, time.Time{}, errors.New("-start is required")
	}
	from, err := time.Parse(config.DateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q: %w", start, err)
	}
	to := now
	if end != "" {
		day, err := time.Parse(config.DateLayout, end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q: %w", end, err)
		}
		to = day.Add(24*time.Hour - time.Millisecond)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s", start, to.Format(config.DateLayout))
	}
	return from, to, nil
}

type fetcher struct {
	repo    data.CandleRepository
	log     *logger.Logger
	replace bool
}

func (f *fetcher) fetch(ctx context.Context, j job, from, to time.Time) error {
	bars, err := f.repo.GetCandles(ctx, j.Symbol, j.Interval, from, to)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		f.log.Warning("no candles returned for %s", j)
		return nil
	}

	existing := 0
	if !f.replace {
		if _, statErr := os.Stat(j.Path); statErr == nil {
			old, err := data.NewCSVProvider("", config.DefaultExchange, f.log).LoadFile(j.Path)
			if err != nil {
				return err
			}
			existing = len(old)
			bars = mergeBars(old, bars)
		}
	}

	n, err := data.SaveCSV(j.Path, bars)
	if err != nil {
		return err
	}
	f.log.Status("%s: %d candles in %s (%d before), %s to %s", j, n, j.Path, existing,
		types.FormatMillis(bars[0].Timestamp), types.FormatMillis(bars[len(bars)-1].Timestamp))
	return nil
}

// mergeBars combines two series by open time. Bars from fresh replace bars
// of old with the same timestamp.
func mergeBars(old, fresh []types.Bar) []types.Bar {
	byTS := make(map[int64]types.Bar, len(old)+len(fresh))
	for _, b := range old {
		byTS[b.Timestamp] = b
	}
	for _, b := range fresh {
		byTS[b.Timestamp] = b
	}
	out := make([]types.Bar, 0, len(byTS))
	for _, b := range byTS {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
