package storage

import (
	"context"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement; *pgxpool.Pool, *pgx.Conn and pgx.Tx implement it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schema = []string{
	`create table if not exists backtest_runs (
		run_id uuid primary key,
		strategy text not null,
		inst_id text not null,
		bars int not null,
		funds numeric not null,
		win_rate numeric not null,
		wins bigint not null,
		losses bigint not null,
		open_trades int not null,
		total_trades int not null,
		total_return numeric not null,
		profit_factor numeric,
		max_drawdown numeric not null,
		sharpe_ratio numeric not null,
		duration_ms bigint not null,
		created_at timestamptz not null default now()
	);`,
	`create table if not exists backtest_trades (
		run_id uuid not null references backtest_runs(run_id) on delete cascade,
		seq int not null,
		option_type text not null,
		open_time text not null,
		signal_open_time text not null default '',
		close_time text not null default '',
		open_price numeric not null,
		close_price numeric,
		quantity numeric not null,
		profit_loss numeric not null,
		full_close boolean not null,
		close_type text not null default '',
		signal_status int not null,
		signal_value text not null default '',
		stop_loss_source text not null default '',
		stop_loss_history jsonb,
		primary key (run_id, seq)
	);`,
	`create table if not exists backtest_filtered_signals (
		run_id uuid not null references backtest_runs(run_id) on delete cascade,
		seq int not null,
		ts bigint not null,
		direction text not null,
		signal_price numeric not null,
		filter_reasons jsonb not null,
		trade_result text not null,
		final_pnl numeric not null,
		theoretical_profit numeric not null,
		theoretical_loss numeric not null,
		closed_at bigint,
		primary key (run_id, seq)
	);`,
	`create table if not exists backtest_audit (
		run_id uuid not null references backtest_runs(run_id) on delete cascade,
		ts bigint not null,
		decision text not null,
		reason text not null default ''
	);`,
	`create index if not exists backtest_audit_run_ts on backtest_audit (run_id, ts);`,
}

// Migrate creates the result tables when they do not exist.
func Migrate(ctx context.Context, db Execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return pipeerrors.NewPersistenceError("storage", "Migrate", err)
		}
	}
	return nil
}
