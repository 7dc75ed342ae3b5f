package data

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// FilterByDateRange keeps the bars whose open time lies in [start, end]. A
// zero bound is open.
func FilterByDateRange(data []types.Bar, start, end time.Time) []types.Bar {
	if len(data) == 0 || (start.IsZero() && end.IsZero()) {
		return data
	}

	filtered := make([]types.Bar, 0, len(data))
	for _, bar := range data {
		if !start.IsZero() && bar.Timestamp < start.UnixMilli() {
			continue
		}
		if !end.IsZero() && bar.Timestamp > end.UnixMilli() {
			continue
		}
		filtered = append(filtered, bar)
	}
	return filtered
}

// ValidateTimeSequence ensures data is in strictly increasing time order
func ValidateTimeSequence(data []types.Bar) error {
	for i := 1; i < len(data); i++ {
		if data[i].Timestamp < data[i-1].Timestamp {
			return fmt.Errorf("data not in chronological order at index %d: %s comes after %s",
				i, types.FormatMillis(data[i].Timestamp), types.FormatMillis(data[i-1].Timestamp))
		}
		if data[i].Timestamp == data[i-1].Timestamp {
			return fmt.Errorf("duplicate timestamp at index %d: %s", i, types.FormatMillis(data[i].Timestamp))
		}
	}
	return nil
}
