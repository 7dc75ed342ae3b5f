package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
	appconfig "github.com/ducminhle1904/signal-backtest/internal/config"
	"github.com/ducminhle1904/signal-backtest/internal/exchange/bybit"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/monitoring"
	"github.com/ducminhle1904/signal-backtest/pkg/config"
	"github.com/ducminhle1904/signal-backtest/pkg/data"
	"github.com/joho/godotenv"
)

func main() {
	var (
		configFile   = flag.String("config", "", "Run configuration file (.json, .yaml)")
		symbols      = flag.String("symbols", "", "Comma separated symbols (overrides config)")
		interval     = flag.String("interval", "", "Candle interval, e.g. 15m, 1h, 4h, 1d (overrides config)")
		start        = flag.String("start", "", "First day to load, YYYY-MM-DD (overrides config)")
		end          = flag.String("end", "", "Last day to load, YYYY-MM-DD (overrides config)")
		source       = flag.String("source", "", "Candle source: csv or bybit (overrides config)")
		dataRoot     = flag.String("data-root", "", "Root folder containing <EXCHANGE>/<CATEGORY>/<SYMBOL>/<INTERVAL>/candles.csv")
		strategyName = flag.String("strategy", "", "Strategy name (overrides config)")
		workers      = flag.Int("workers", -1, "Parallel runs, 0 uses every CPU (overrides config)")
		warmup       = flag.Int("warmup", -1, "Bars replayed before signals are generated (overrides config)")
		consoleOnly  = flag.Bool("console-only", false, "Only display results in console, do not write files")
		persist      = flag.Bool("persist", false, "Store results in DATABASE_URL")
		serveMetrics = flag.Bool("metrics", false, "Serve Prometheus metrics on METRICS_ADDR while running")
		saveConfig   = flag.String("save-config", "", "Write the effective run configuration to this path")
		envFile      = flag.String("env", ".env", "Environment file path")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("⚠️  %v, using process environment", err)
	}
	env, err := appconfig.Load()
	if err != nil {
		log.Fatalf("❌ Environment: %v", err)
	}

	runCfg, err := loadRunConfig(*configFile, overrides{
		symbols:     *symbols,
		interval:    *interval,
		start:       *start,
		end:         *end,
		source:      *source,
		dataRoot:    *dataRoot,
		strategy:    *strategyName,
		workers:     *workers,
		warmup:      *warmup,
		consoleOnly: *consoleOnly,
		persist:     *persist,
	})
	if err != nil {
		log.Fatalf("❌ Run configuration: %v", err)
	}
	if *saveConfig != "" {
		if err := config.SaveRunConfig(runCfg, *saveConfig); err != nil {
			log.Fatalf("❌ Save configuration: %v", err)
		}
	}

	runLog, err := logger.NewLogger("batch", runCfg.Strategy.Name, logger.Options{Dir: env.Logging.Dir, Console: env.Logging.Console})
	if err != nil {
		log.Fatalf("❌ Logger: %v", err)
	}
	defer runLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serveMetrics {
		srv := startMetricsServer(env.Monitoring.MetricsAddr, runLog)
		defer srv.Close()
	}

	if err := run(ctx, env, runCfg, runLog); err != nil {
		runLog.LogError("backtest", err)
		runLog.Close()
		log.Fatalf("❌ %v", err)
	}
}

func run(ctx context.Context, env *appconfig.Config, runCfg *config.RunConfig, runLog *logger.Logger) error {
	repo, err := newCandleRepository(runCfg, env, runLog)
	if err != nil {
		return err
	}
	requests, err := buildRequests(runCfg)
	if err != nil {
		return err
	}

	recorder := monitoring.NewRecorder()
	opts := []backtest.Option{
		backtest.WithWarmup(runCfg.Warmup),
		backtest.WithRecording(!env.RandomTest),
		backtest.WithLogger(runLog),
		backtest.WithMetrics(recorder),
	}
	// Fail fast on bad strategy parameters before any candles are loaded.
	if _, err := backtest.NewNamedRunner(runCfg.Strategy.Name, runCfg.Strategy.Params, opts...); err != nil {
		return err
	}
	factory := func() (*backtest.Runner, error) {
		return backtest.NewNamedRunner(runCfg.Strategy.Name, runCfg.Strategy.Params, opts...)
	}

	runLog.Info("starting %d run(s): strategy=%s interval=%s source=%s workers=%d random_test=%v",
		len(requests), runCfg.Strategy.Name, runCfg.Interval, runCfg.Source, runCfg.Workers, env.RandomTest)

	started := time.Now()
	bp := backtest.NewBatchProcessor(runCfg.Workers, len(requests), repo, runLog)
	results, batchErr := bp.ProcessBatch(ctx, requests, factory)
	runLog.Info("batch finished in %s", time.Since(started).Round(time.Millisecond))

	if err := writeOutputs(ctx, env, runCfg, results, runLog); err != nil {
		return err
	}
	if batchErr != nil && !errors.Is(batchErr, context.Canceled) {
		return batchErr
	}
	if failed := countFailed(results); failed == len(results) && failed > 0 {
		return fmt.Errorf("all %d runs failed", failed)
	}
	return nil
}

// newCandleRepository builds the configured candle source behind an in-memory cache.
func newCandleRepository(runCfg *config.RunConfig, env *appconfig.Config, runLog *logger.Logger) (data.CandleRepository, error) {
	var source data.CandleRepository
	switch runCfg.Source {
	case config.SourceBybit:
		client := bybit.NewClient(bybit.Config{
			APIKey:    env.Exchange.APIKey,
			APISecret: env.Exchange.Secret,
			Testnet:   env.Exchange.Testnet,
		})
		runLog.Info("loading candles from bybit %s (%s)", client.GetEnvironment(), client.Category())
		source = bybit.NewCandleRepository(client, client.Category(), runLog)
	case config.SourceCSV:
		source = data.NewCSVProvider(runCfg.DataRoot, runCfg.Exchange, runLog)
	default:
		return nil, fmt.Errorf("unknown source %q", runCfg.Source)
	}
	return data.NewCachedProvider(source, runLog), nil
}

func buildRequests(runCfg *config.RunConfig) ([]backtest.BatchRequest, error) {
	start, err := runCfg.StartTime()
	if err != nil {
		return nil, err
	}
	end, err := runCfg.EndTime()
	if err != nil {
		return nil, err
	}
	requests := make([]backtest.BatchRequest, 0, len(runCfg.Symbols))
	for _, symbol := range runCfg.Symbols {
		requests = append(requests, backtest.BatchRequest{
			Symbol:   symbol,
			Interval: runCfg.Interval,
			Start:    start,
			End:      end,
			Risk:     runCfg.Risk,
		})
	}
	return requests, nil
}

func countFailed(results []backtest.JobResult) int {
	n := 0
	for _, r := range results {
		if r.Error != nil || r.Result == nil {
			n++
		}
	}
	return n
}

func startMetricsServer(addr string, runLog *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runLog.LogError("metrics server", err)
		}
	}()
	runLog.Info("metrics available on %s/metrics", addr)
	return srv
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}
