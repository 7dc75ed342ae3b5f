package reporting

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
)

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct{}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{}
}

var tradeHeaders = []string{
	"Option_Type", "Open_Time", "Signal_Open_Time", "Close_Time", "Open_Price", "Close_Price",
	"Quantity", "Profit_Loss", "Full_Close", "Close_Type", "Signal_Status", "Win_Num", "Loss_Num",
	"Stop_Loss_Source", "Stop_Loss_History", "Signal_Value",
}

// WriteTradesCSV writes the full trade ledger, entries and exits, in order.
func (r *DefaultCSVReporter) WriteTradesCSV(res *backtest.Result, path string) error {
	rows := make([][]string, 0, len(res.Records))
	for _, rec := range res.Records {
		closePrice := ""
		if rec.ClosePrice != nil {
			closePrice = formatFloat(*rec.ClosePrice)
		}
		rows = append(rows, []string{
			rec.OptionType,
			rec.OpenTime,
			rec.SignalOpenTime,
			rec.CloseTime,
			formatFloat(rec.OpenPrice),
			closePrice,
			formatFloat(rec.Quantity),
			formatFloat(rec.ProfitLoss),
			strconv.FormatBool(rec.FullClose),
			rec.CloseType,
			strconv.Itoa(rec.SignalStatus),
			strconv.FormatInt(rec.WinNum, 10),
			strconv.FormatInt(rec.LossNum, 10),
			rec.StopLossSource,
			rec.StopLossUpdateHistory,
			rec.SignalValue,
		})
	}
	return writeCSV(path, tradeHeaders, rows)
}

var filteredHeaders = []string{
	"Timestamp", "Direction", "Signal_Price", "Filter_Reasons", "Trade_Result",
	"Final_PnL", "Theoretical_Profit", "Theoretical_Loss", "Closed_At", "Indicator_Snapshot",
}

// WriteFilteredSignalsCSV writes the shadow outcome of every filtered signal.
func (r *DefaultCSVReporter) WriteFilteredSignalsCSV(res *backtest.Result, path string) error {
	rows := make([][]string, 0, len(res.FilteredSignals))
	for _, s := range res.FilteredSignals {
		rows = append(rows, []string{
			millisTime(s.Timestamp),
			s.Direction,
			formatFloat(s.SignalPrice),
			strings.Join(s.FilterReasons, "|"),
			s.TradeResult,
			formatFloat(s.FinalPnL),
			formatFloat(s.TheoreticalProfit),
			formatFloat(s.TheoreticalLoss),
			millisTime(s.ClosedAt),
			s.IndicatorSnapshot,
		})
	}
	return writeCSV(path, filteredHeaders, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
