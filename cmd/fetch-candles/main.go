package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appconfig "github.com/ducminhle1904/signal-backtest/internal/config"
	"github.com/ducminhle1904/signal-backtest/internal/exchange/bybit"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/pkg/config"
	"github.com/joho/godotenv"
)

func main() {
	var (
		symbols   = flag.String("symbols", "BTCUSDT", "Comma separated symbols")
		intervals = flag.String("intervals", config.DefaultInterval, "Comma separated intervals, e.g. 15m,1h,4h")
		category  = flag.String("category", bybit.DefaultCategory, "Market category (spot, linear, inverse)")
		start     = flag.String("start", "", "First day to download, YYYY-MM-DD (required)")
		end       = flag.String("end", "", "Last day to download, YYYY-MM-DD (default today)")
		dataRoot  = flag.String("data-root", config.DefaultDataRoot, "Root of the candle tree read by the backtest csv source")
		perSecond = flag.Float64("rate", bybit.DefaultKlineRate, "Maximum kline requests per second")
		replace   = flag.Bool("replace", false, "Overwrite existing files instead of merging into them")
		envFile   = flag.String("env", ".env", "Environment file path")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("⚠️  %v, using process environment", err)
	}
	env, err := appconfig.Load()
	if err != nil {
		log.Fatalf("❌ Environment: %v", err)
	}

	from, to, err := parseRange(*start, *end, time.Now().UTC())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	jobs, err := buildJobs(*dataRoot, *category, splitList(*symbols, true), splitList(*intervals, false))
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	runLog, err := logger.NewLogger("fetch", "candles", logger.Options{Dir: env.Logging.Dir, Console: env.Logging.Console})
	if err != nil {
		log.Fatalf("❌ Logger: %v", err)
	}
	defer runLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := bybit.NewClient(bybit.Config{
		APIKey:    env.Exchange.APIKey,
		APISecret: env.Exchange.Secret,
		Testnet:   env.Exchange.Testnet,
		Category:  *category,
	})
	repo := bybit.NewCandleRepository(client, client.Category(), runLog).WithRateLimit(*perSecond)
	runLog.Info("downloading %d series from bybit %s (%s) between %s and %s",
		len(jobs), client.GetEnvironment(), client.Category(), from.Format(config.DateLayout), to.Format(config.DateLayout))

	f := &fetcher{repo: repo, log: runLog, replace: *replace}
	failed := 0
	for _, job := range jobs {
		if err := f.fetch(ctx, job, from, to); err != nil {
			runLog.LogError(job.String(), err)
			failed++
			if ctx.Err() != nil {
				break
			}
		}
	}
	if failed > 0 {
		runLog.Close()
		log.Fatalf("❌ %d of %d downloads failed", failed, len(jobs))
	}
}

func splitList(s string, upper bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if upper {
			item = strings.ToUpper(item)
		}
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}
