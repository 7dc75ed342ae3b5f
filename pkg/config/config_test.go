package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRunConfigYAML(t *testing.T) {
	path := writeFile(t, "run.yaml", `
symbols: [btcusdt, ethusdt, BTCUSDT]
interval: 4h
start: "2024-01-01"
end: "2024-03-31"
strategy:
  name: breakout
  params:
    lookback: 30
risk:
  max_loss_percent: 0.03
  tiered_take_profit:
    enabled: false
workers: 4
`)

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, "4h", cfg.Interval)
	assert.Equal(t, "breakout", cfg.Strategy.Name)
	assert.Equal(t, 30, cfg.Strategy.Params["lookback"])
	assert.Equal(t, 0.03, cfg.Risk.MaxLossPercent)
	assert.False(t, cfg.Risk.Tiered.Enabled)
	// untouched fields keep their defaults
	assert.True(t, cfg.Risk.RSystem.Enabled)
	assert.Equal(t, trading.DefaultFeeRate, cfg.Risk.FeeRate)
	assert.Equal(t, DefaultWarmup, cfg.Warmup)
	assert.Equal(t, SourceCSV, cfg.Source)

	start, err := cfg.StartTime()
	require.NoError(t, err)
	end, err := cfg.EndTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC), end)
}

func TestLoadRunConfigJSON(t *testing.T) {
	path := writeFile(t, "run.json", `{
		"symbols": ["SOLUSDT"],
		"source": "BYBIT",
		"start": "2024-06-01",
		"output": {"dir": "out", "csv": true}
	}`)

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, SourceBybit, cfg.Source)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.CSV)
	assert.True(t, cfg.Output.Excel)
}

func TestRunConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"no symbols", func(c *RunConfig) { c.Symbols = nil }},
		{"bad interval", func(c *RunConfig) { c.Interval = "7m" }},
		{"bad source", func(c *RunConfig) { c.Source = "ftp" }},
		{"reversed range", func(c *RunConfig) { c.Start, c.End = "2024-02-01", "2024-01-01" }},
		{"bybit without start", func(c *RunConfig) { c.Source = SourceBybit }},
		{"unknown strategy", func(c *RunConfig) { c.Strategy.Name = "martingale" }},
		{"negative warmup", func(c *RunConfig) { c.Warmup = -1 }},
		{"too many workers", func(c *RunConfig) { c.Workers = MaxWorkers + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryConfiguration))
		})
	}

	cfg := DefaultRunConfig()
	cfg.Risk.MaxLossPercent = 2
	assert.True(t, pipeerrors.IsCategory(cfg.Validate(), pipeerrors.ErrorCategoryValidation))

	assert.NoError(t, DefaultRunConfig().Validate())
}

func TestLoadRunConfigErrors(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryConfiguration))

	_, err = LoadRunConfig(writeFile(t, "run.toml", "symbols = []"))
	assert.Error(t, err)

	_, err = LoadRunConfig(writeFile(t, "run.json", "{not json"))
	assert.Error(t, err)
}

func TestLoadRunConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadRunConfig(writeFile(t, "run.yaml", `
symbols: [BTCUSDT]
risk:
  tiered:
    enabled: false
`))
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.ErrorCategoryConfiguration))
	assert.Contains(t, err.Error(), "tiered")

	_, err = LoadRunConfig(writeFile(t, "run.json", `{"symbols": ["BTCUSDT"], "risk": {"max_loss_percnt": 0.03}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_loss_percnt")

	cfg, err := LoadRunConfig(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultRunConfig().Risk, cfg.Risk)
}

func TestSaveRunConfigRoundTrip(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Symbols = []string{"ETHUSDT"}
	path := filepath.Join(t.TempDir(), "nested", "run.yaml")

	require.NoError(t, SaveRunConfig(cfg, path))
	loaded, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Symbols, loaded.Symbols)
	assert.Equal(t, cfg.Risk, loaded.Risk)
}
