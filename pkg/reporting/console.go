package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxConsoleTrades limits the exit table; the files carry the full ledger.
const maxConsoleTrades = 20

// DefaultConsoleReporter implements console output functionality
type DefaultConsoleReporter struct {
	out io.Writer
}

// NewDefaultConsoleReporter creates a console reporter writing to stdout
func NewDefaultConsoleReporter() *DefaultConsoleReporter {
	return NewConsoleReporterTo(os.Stdout)
}

// NewConsoleReporterTo creates a console reporter writing to w
func NewConsoleReporterTo(w io.Writer) *DefaultConsoleReporter {
	return &DefaultConsoleReporter{out: w}
}

// OutputResult prints the summary of one run followed by its latest exits.
func (r *DefaultConsoleReporter) OutputResult(res *backtest.Result, interval string) {
	if res == nil {
		return
	}
	st := res.Stats

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("BACKTEST %s %s (%s)", res.InstID, interval, res.Strategy))
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Run ID", res.RunID.String()},
		{"Bars", res.Bars},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Funds", fmt.Sprintf("%.4f", res.Funds)},
		{"Total Return", fmt.Sprintf("%.2f%%", st.TotalReturn*100)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", st.MaxDrawdown*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", st.SharpeRatio)},
		{"Profit Factor", fmt.Sprint(profitFactorCell(st.ProfitFactor))},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Wins / Losses", fmt.Sprintf("%d / %d", res.Wins, res.Losses)},
		{"Win Rate", fmt.Sprintf("%.1f%%", res.WinRate*100)},
		{"Open Trades", res.OpenTrades},
		{"Filtered Signals", shadowLine(res)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(r.out)

	r.outputExits(res)
}

func (r *DefaultConsoleReporter) outputExits(res *backtest.Result) {
	exits := res.CloseRecords()
	if len(exits) == 0 {
		return
	}
	skipped := 0
	if len(exits) > maxConsoleTrades {
		skipped = len(exits) - maxConsoleTrades
		exits = exits[skipped:]
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("EXITS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Opened", "Closed", "Entry", "Exit", "Qty", "PnL", "Type"})
	for _, rec := range exits {
		exit := ""
		if rec.ClosePrice != nil {
			exit = fmt.Sprintf("%.4f", *rec.ClosePrice)
		}
		pnl := fmt.Sprintf("%+.4f", rec.ProfitLoss)
		if rec.ProfitLoss > 0 {
			pnl = text.FgGreen.Sprint(pnl)
		} else if rec.ProfitLoss < 0 {
			pnl = text.FgRed.Sprint(pnl)
		}
		t.AppendRow(table.Row{rec.OpenTime, rec.CloseTime, fmt.Sprintf("%.4f", rec.OpenPrice), exit,
			fmt.Sprintf("%.4f", rec.Quantity), pnl, rec.CloseType})
	}
	if skipped > 0 {
		t.AppendFooter(table.Row{fmt.Sprintf("%d earlier exits omitted", skipped)})
	}
	t.Render()
	fmt.Fprintln(r.out)
}

// OutputBatch prints one line per job, failed jobs included.
func (r *DefaultConsoleReporter) OutputBatch(results []backtest.JobResult) {
	if len(results) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("BATCH SUMMARY")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Job", "Symbol", "Funds", "Return", "Win Rate", "Trades", "Max DD", "Time", "Error"})

	var failed int
	for _, jr := range results {
		if jr.Error != nil || jr.Result == nil {
			failed++
			msg := "no result"
			if jr.Error != nil {
				msg = jr.Error.Error()
			}
			t.AppendRow(table.Row{jr.ID, jr.InstID, "", "", "", "", "", jr.Duration.Round(time.Millisecond).String(), text.FgRed.Sprint(msg)})
			continue
		}
		res := jr.Result
		t.AppendRow(table.Row{
			jr.ID,
			res.InstID,
			fmt.Sprintf("%.4f", res.Funds),
			fmt.Sprintf("%.2f%%", res.Stats.TotalReturn*100),
			fmt.Sprintf("%.1f%%", res.WinRate*100),
			res.Stats.TotalTrades,
			fmt.Sprintf("%.2f%%", res.Stats.MaxDrawdown*100),
			jr.Duration.Round(time.Millisecond).String(),
			"",
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d runs", len(results)), "", "", "", "", "", "", fmt.Sprintf("%d failed", failed)})
	t.Render()
	fmt.Fprintln(r.out)
}

// shadowLine summarises filtered signals as "n (WIN 1, LOSS 2)".
func shadowLine(res *backtest.Result) string {
	summary := res.ShadowSummary()
	if len(summary) == 0 {
		return "0"
	}
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, summary[k]))
	}
	return fmt.Sprintf("%d (%s)", len(res.FilteredSignals), strings.Join(parts, ", "))
}
