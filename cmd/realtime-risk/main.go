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
	"strings"
	"syscall"
	"time"

	appconfig "github.com/ducminhle1904/signal-backtest/internal/config"
	"github.com/ducminhle1904/signal-backtest/internal/exchange/bybit"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/monitoring"
	"github.com/ducminhle1904/signal-backtest/internal/realtime"
	"github.com/ducminhle1904/signal-backtest/internal/risk"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		symbols       = flag.String("symbols", "BTCUSDT", "Comma separated symbols to stream")
		intervalFlag  = flag.String("interval", "1h", "Kline interval to stream, e.g. 5m, 1h")
		positionsFile = flag.String("positions", "", "JSON or YAML file with the positions to track at startup")
		dryRun        = flag.Bool("dry-run", true, "Log stop amendments instead of sending them to the exchange")
		staleAfter    = flag.Duration("stale-after", 5*time.Minute, "Report unhealthy when no candle arrived for this long")
		envFile       = flag.String("env", ".env", "Environment file path")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("⚠️  %v, using process environment", err)
	}
	env, err := appconfig.Load()
	if err != nil {
		log.Fatalf("❌ Environment: %v", err)
	}
	interval, err := bybit.ParseInterval(*intervalFlag)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	streamSymbols := splitSymbols(*symbols)
	if len(streamSymbols) == 0 {
		log.Fatal("❌ Please specify at least one symbol with -symbols")
	}

	session := uuid.NewString()
	fileLog, err := logger.NewLogger("realtime", "risk", logger.Options{Dir: env.Logging.Dir, Console: env.Logging.Console})
	if err != nil {
		log.Fatalf("❌ Logger: %v", err)
	}
	defer fileLog.Close()
	runLog := fileLog.With(zap.String("session", session))

	amender, err := newAmender(env, *dryRun, runLog)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	recorder := monitoring.NewRecorder()
	health := monitoring.NewHealthChecker(*staleAfter)
	engine := realtime.NewEngine(amender,
		realtime.WithLogger(runLog),
		realtime.WithMetrics(recorder),
		realtime.WithDefaultRisk(trading.DefaultRiskConfig()),
		realtime.WithDecisionHandler(func(key realtime.Key, bar types.Bar, d risk.Decision) {
			// Exits are advisory here; execution stays with the trading side.
			runLog.Trade("%s %s at %.6f (%s) on bar %s", key, d.Action, d.Price, d.Reason, types.FormatMillis(bar.Timestamp))
		}),
	)

	if *positionsFile != "" {
		events, err := loadPositions(*positionsFile)
		if err != nil {
			log.Fatalf("❌ Positions: %v", err)
		}
		for _, ev := range events {
			if err := engine.Send(ev); err != nil {
				log.Fatalf("❌ Positions: %v", err)
			}
		}
		runLog.Info("queued %d position events from %s", len(events), *positionsFile)
	}

	feed := realtime.NewKlineFeed(env.Realtime.StreamURL, string(interval), streamSymbols, func(ev realtime.Event) error {
		if c, ok := ev.(*realtime.CandleEvent); ok && c.Bar.IsConfirmed() {
			health.MarkEvent(c.Bar.Close)
		}
		return engine.Send(ev)
	}, runLog)
	feed.OnConnectionChange(health.SetConnected)

	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", health)
	mux.Handle("/positions", positionsHandler(engine.Send))
	srv := &http.Server{Addr: env.Monitoring.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runLog.Status("realtime risk engine %s: symbols=%s interval=%s stream=%s dry_run=%v http=%s",
		session, strings.Join(streamSymbols, ","), interval, env.Realtime.StreamURL, *dryRun, env.Monitoring.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return feed.Run(gctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		runLog.LogError("realtime", err)
		fileLog.Close()
		log.Fatalf("❌ %v", err)
	}
	runLog.Status("realtime risk engine stopped, %d events left unprocessed", engine.Pending())
}

// newAmender sends stops to Bybit, or only logs them in dry-run mode.
func newAmender(env *appconfig.Config, dryRun bool, runLog *logger.Logger) (realtime.StopLossAmender, error) {
	if dryRun {
		return realtime.StopLossAmenderFunc(func(_ context.Context, instID, orderID string, price float64) error {
			runLog.Trade("[dry-run] move stop of %s (order %s) to %.6f", instID, orderID, price)
			return nil
		}), nil
	}
	if !env.HasCredentials() {
		return nil, fmt.Errorf("live stop amendments need BYBIT_API_KEY and BYBIT_API_SECRET")
	}
	client := bybit.NewClient(bybit.Config{
		APIKey:    env.Exchange.APIKey,
		APISecret: env.Exchange.Secret,
		Testnet:   env.Exchange.Testnet,
	})
	runLog.Info("amending stops on bybit %s", client.GetEnvironment())
	return bybit.NewStopAmender(client, client.Category(), runLog), nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}
