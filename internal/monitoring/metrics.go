// Package monitoring exposes Prometheus metrics and a health endpoint for
// backtest runs and the realtime risk engine.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	barsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_backtest_bars_processed_total",
			Help: "Total number of bars replayed through the pipeline",
		},
		[]string{"inst_id"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_backtest_trades_total",
			Help: "Total number of trade records by kind (open, close, partial)",
		},
		[]string{"inst_id", "kind"},
	)

	tradeProfitLoss = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_backtest_trade_profit_loss",
			Help:    "Distribution of net profit and loss per exit",
			Buckets: []float64{-10, -5, -2, -1, -0.5, 0, 0.5, 1, 2, 5, 10},
		},
		[]string{"inst_id"},
	)

	shadowTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_backtest_shadow_trades_total",
			Help: "Total number of shadow trades by result",
		},
		[]string{"inst_id", "result"},
	)

	riskDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_backtest_risk_decisions_total",
			Help: "Total number of risk decisions by action",
		},
		[]string{"inst_id", "decision"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_backtest_run_duration_seconds",
			Help:    "Wall time of a backtest run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// Realtime metrics
	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_backtest_realtime_events_total",
			Help: "Total number of realtime events consumed by kind",
		},
		[]string{"kind"},
	)

	realtimeQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signal_backtest_realtime_queue_depth",
			Help: "Events waiting in the realtime queue",
		},
	)

	stopAmendments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_backtest_stop_amendments_total",
			Help: "Total number of stop-loss amendments by outcome",
		},
		[]string{"inst_id", "status"},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signal_backtest_current_price",
			Help: "Last close seen per instrument",
		},
		[]string{"inst_id"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_backtest_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(barsProcessed)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(tradeProfitLoss)
	prometheus.MustRegister(shadowTrades)
	prometheus.MustRegister(riskDecisions)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(realtimeEvents)
	prometheus.MustRegister(realtimeQueueDepth)
	prometheus.MustRegister(stopAmendments)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Recorder forwards pipeline and realtime observations to the package
// metrics. The zero value is ready to use.
type Recorder struct{}

// NewRecorder creates a recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordBar counts one replayed bar
func (Recorder) RecordBar(instID string, close float64) {
	barsProcessed.WithLabelValues(instID).Inc()
	currentPrice.WithLabelValues(instID).Set(close)
}

// RecordTrade counts a trade record; pnl is observed for exits only
func (Recorder) RecordTrade(instID, kind string, pnl float64) {
	tradesTotal.WithLabelValues(instID, kind).Inc()
	if kind != "open" {
		tradeProfitLoss.WithLabelValues(instID).Observe(pnl)
	}
}

// RecordShadow counts a settled shadow trade
func (Recorder) RecordShadow(instID, result string) {
	shadowTrades.WithLabelValues(instID, result).Inc()
}

// RecordRiskDecision counts a risk decision
func (Recorder) RecordRiskDecision(instID, decision string) {
	riskDecisions.WithLabelValues(instID, decision).Inc()
}

// RecordRun observes the wall time of a run
func (Recorder) RecordRun(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	runDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordEvent counts a consumed realtime event
func (Recorder) RecordEvent(kind string) {
	realtimeEvents.WithLabelValues(kind).Inc()
}

// SetQueueDepth reports the realtime backlog
func (Recorder) SetQueueDepth(n int) {
	realtimeQueueDepth.Set(float64(n))
}

// RecordStopAmend counts a stop-loss amendment
func (Recorder) RecordStopAmend(instID string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	stopAmendments.WithLabelValues(instID, status).Inc()
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
