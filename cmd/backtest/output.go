package main

import (
	"context"
	"fmt"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
	appconfig "github.com/ducminhle1904/signal-backtest/internal/config"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/storage"
	"github.com/ducminhle1904/signal-backtest/pkg/config"
	"github.com/ducminhle1904/signal-backtest/pkg/reporting"
)

// writeOutputs reports every successful run, then the batch summary, then
// stores the runs when persistence is requested.
func writeOutputs(ctx context.Context, env *appconfig.Config, runCfg *config.RunConfig, results []backtest.JobResult, runLog *logger.Logger) error {
	manager := reporting.NewReportingManager(reporting.ReportingConfig{
		EnableConsole:   runCfg.Output.Console,
		OutputDirectory: runCfg.Output.Dir,
		ExcelEnabled:    runCfg.Output.Excel,
		CSVEnabled:      runCfg.Output.CSV,
		JSONEnabled:     runCfg.Output.JSON,
	})

	for _, jr := range results {
		if jr.Error != nil {
			runLog.LogError("run "+jr.ID, jr.Error)
			continue
		}
		files, err := manager.ReportResult(jr.Result, runCfg.Interval)
		if err != nil {
			return fmt.Errorf("report %s: %w", jr.ID, err)
		}
		for _, f := range files {
			runLog.Info("wrote %s", f)
		}
	}
	if len(results) > 1 {
		if path, err := manager.ReportBatch(results); err != nil {
			return fmt.Errorf("batch summary: %w", err)
		} else if path != "" {
			runLog.Info("wrote %s", path)
		}
	}

	if !runCfg.Output.Persist {
		return nil
	}
	if !env.PersistenceEnabled() {
		runLog.Warning("persistence requested but DATABASE_URL is not set; skipping")
		return nil
	}
	return persistResults(ctx, env, runCfg, results, runLog)
}

func persistResults(ctx context.Context, env *appconfig.Config, runCfg *config.RunConfig, results []backtest.JobResult, runLog *logger.Logger) error {
	pool, err := storage.NewPool(ctx, env.Database.URL, env.Database.Pool)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		return err
	}
	var sink storage.ResultSink = storage.NewPostgresSink(pool, runLog)
	for _, jr := range results {
		if jr.Result == nil {
			continue
		}
		if err := sink.SaveResult(ctx, runCfg.Strategy.Name, jr.Result); err != nil {
			return err
		}
	}
	return nil
}
