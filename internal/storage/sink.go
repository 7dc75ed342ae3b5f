package storage

import (
	"context"
	"encoding/json"
	"math"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// priceScale is the number of decimals kept for prices and amounts.
const priceScale = 8

// ResultSink stores the result of a run.
type ResultSink interface {
	SaveResult(ctx context.Context, strategy string, res *backtest.Result) error
}

// TxBeginner starts a transaction; *pgxpool.Pool implements it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSink writes results to the tables created by Migrate. Saving a run
// id that already exists replaces it, so deterministic reruns stay unique.
type PostgresSink struct {
	db  TxBeginner
	log *logger.Logger
}

func NewPostgresSink(db TxBeginner, log *logger.Logger) *PostgresSink {
	if log == nil {
		log = logger.Nop()
	}
	return &PostgresSink{db: db, log: log}
}

// SaveResult writes the run summary, trade ledger, filtered signals and
// audit trail in one transaction.
func (s *PostgresSink) SaveResult(ctx context.Context, strategy string, res *backtest.Result) error {
	if res == nil {
		return pipeerrors.NewValidationError("storage", "SaveResult", "nil result")
	}
	if strategy == "" {
		strategy = res.Strategy
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `delete from backtest_runs where run_id = $1`, res.RunID); err != nil {
			return err
		}
		if err := insertRun(ctx, tx, strategy, res); err != nil {
			return err
		}
		if err := insertTrades(ctx, tx, res); err != nil {
			return err
		}
		if err := insertFilteredSignals(ctx, tx, res); err != nil {
			return err
		}
		return copyAudit(ctx, tx, res)
	})
	if err != nil {
		return pipeerrors.NewPersistenceError("storage", "SaveResult", err).
			WithContext("run_id", res.RunID.String())
	}
	s.log.Info("saved run %s (%s %s): %d records, %d filtered signals, %d audit rows",
		res.RunID, strategy, res.InstID, len(res.Records), len(res.FilteredSignals), len(res.Audit))
	return nil
}

func insertRun(ctx context.Context, tx pgx.Tx, strategy string, res *backtest.Result) error {
	st := res.Stats
	_, err := tx.Exec(ctx, `
		insert into backtest_runs(
			run_id, strategy, inst_id, bars, funds, win_rate, wins, losses,
			open_trades, total_trades, total_return, profit_factor, max_drawdown,
			sharpe_ratio, duration_ms
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		res.RunID,
		strategy,
		res.InstID,
		res.Bars,
		amount(res.Funds),
		amount(res.WinRate),
		res.Wins,
		res.Losses,
		res.OpenTrades,
		st.TotalTrades,
		amount(st.TotalReturn),
		nullableAmount(st.ProfitFactor),
		amount(st.MaxDrawdown),
		amount(st.SharpeRatio),
		res.Duration.Milliseconds(),
	)
	return err
}

func insertTrades(ctx context.Context, tx pgx.Tx, res *backtest.Result) error {
	for i, rec := range res.Records {
		var closePrice any
		if rec.ClosePrice != nil {
			closePrice = amount(*rec.ClosePrice)
		}
		var history any
		if rec.StopLossUpdateHistory != "" {
			history = rec.StopLossUpdateHistory
		}
		_, err := tx.Exec(ctx, `
			insert into backtest_trades(
				run_id, seq, option_type, open_time, signal_open_time, close_time,
				open_price, close_price, quantity, profit_loss, full_close, close_type,
				signal_status, signal_value, stop_loss_source, stop_loss_history
			) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`,
			res.RunID, i, rec.OptionType, rec.OpenTime, rec.SignalOpenTime, rec.CloseTime,
			amount(rec.OpenPrice), closePrice, amount(rec.Quantity), amount(rec.ProfitLoss),
			rec.FullClose, rec.CloseType, rec.SignalStatus, rec.SignalValue, rec.StopLossSource, history,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertFilteredSignals(ctx context.Context, tx pgx.Tx, res *backtest.Result) error {
	for i, sig := range res.FilteredSignals {
		reasons, err := json.Marshal(sig.FilterReasons)
		if err != nil {
			return err
		}
		var closedAt any
		if sig.ClosedAt != 0 {
			closedAt = sig.ClosedAt
		}
		_, err = tx.Exec(ctx, `
			insert into backtest_filtered_signals(
				run_id, seq, ts, direction, signal_price, filter_reasons, trade_result,
				final_pnl, theoretical_profit, theoretical_loss, closed_at
			) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			res.RunID, i, sig.Timestamp, sig.Direction, amount(sig.SignalPrice), string(reasons),
			sig.TradeResult, amount(sig.FinalPnL), amount(sig.TheoreticalProfit), amount(sig.TheoreticalLoss), closedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func copyAudit(ctx context.Context, tx pgx.Tx, res *backtest.Result) error {
	if len(res.Audit) == 0 {
		return nil
	}
	rows := make([][]any, len(res.Audit))
	for i, d := range res.Audit {
		rows[i] = []any{res.RunID, d.Timestamp, d.Decision, d.Reason}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"backtest_audit"},
		[]string{"run_id", "ts", "decision", "reason"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func amount(v float64) decimal.Decimal {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(priceScale)
}

// nullableAmount maps non-finite values (an unbounded profit factor) to NULL.
func nullableAmount(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return amount(v)
}
