package reporting

import (
	"encoding/json"
	"os"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
)

// BatchSummary is the JSON document written for a batch of runs.
type BatchSummary struct {
	Runs []RunSummary `json:"runs"`
}

// RunSummary is one line of a batch summary.
type RunSummary struct {
	JobID      string               `json:"job_id"`
	RunID      string               `json:"run_id,omitempty"`
	InstID     string               `json:"inst_id"`
	Strategy   string               `json:"strategy,omitempty"`
	Funds      float64              `json:"funds"`
	WinRate    float64              `json:"win_rate"`
	Stats      *backtest.Statistics `json:"stats,omitempty"`
	DurationMS int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
}

// WriteResultJSON writes the complete result, ledger and audit trail included.
func WriteResultJSON(res *backtest.Result, path string) error {
	return writeJSON(res, path)
}

// Summarize reduces job results to their headline numbers.
func Summarize(results []backtest.JobResult) BatchSummary {
	out := BatchSummary{Runs: make([]RunSummary, 0, len(results))}
	for _, jr := range results {
		s := RunSummary{JobID: jr.ID, InstID: jr.InstID, DurationMS: jr.Duration.Milliseconds()}
		if jr.Error != nil {
			s.Error = jr.Error.Error()
		}
		if res := jr.Result; res != nil {
			stats := res.Stats
			s.RunID = res.RunID.String()
			s.Strategy = res.Strategy
			s.Funds = money(res.Funds)
			s.WinRate = round(res.WinRate, 4)
			s.Stats = &stats
		}
		out.Runs = append(out.Runs, s)
	}
	return out
}

// WriteBatchSummaryJSON writes Summarize(results) to path.
func WriteBatchSummaryJSON(results []backtest.JobResult, path string) error {
	return writeJSON(Summarize(results), path)
}

func writeJSON(v interface{}, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
