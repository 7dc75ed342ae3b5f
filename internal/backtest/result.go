package backtest

import (
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/shadow"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/google/uuid"
)

// DynamicConfigLog records the per-bar adjustments reported by a generator
type DynamicConfigLog struct {
	Timestamp   int64    `json:"ts"`
	Adjustments []string `json:"adjustments"`
	Snapshot    string   `json:"snapshot,omitempty"`
}

// Result is the outcome of one backtest run
type Result struct {
	RunID             uuid.UUID               `json:"run_id"`
	Strategy          string                  `json:"strategy"`
	InstID            string                  `json:"inst_id"`
	Funds             float64                 `json:"funds"`
	WinRate           float64                 `json:"win_rate"`
	Wins              int64                   `json:"wins"`
	Losses            int64                   `json:"losses"`
	OpenTrades        int                     `json:"open_trades"`
	Records           []trading.TradeRecord   `json:"records"`
	FilteredSignals   []shadow.FilteredSignal `json:"filtered_signals"`
	DynamicConfigLogs []DynamicConfigLog      `json:"dynamic_config_logs"`
	Audit             []RiskDecision          `json:"audit"`
	Stats             Statistics              `json:"stats"`
	Bars              int                     `json:"bars"`
	Duration          time.Duration           `json:"-"`
}

// CloseRecords returns the exit records of the ledger.
func (r *Result) CloseRecords() []trading.TradeRecord {
	out := make([]trading.TradeRecord, 0, len(r.Records)/2+1)
	for _, rec := range r.Records {
		if rec.IsClose() {
			out = append(out, rec)
		}
	}
	return out
}

// ShadowSummary counts filtered signals by trade result.
func (r *Result) ShadowSummary() map[string]int {
	out := make(map[string]int)
	for _, s := range r.FilteredSignals {
		out[s.TradeResult]++
	}
	return out
}
