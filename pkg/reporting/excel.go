package reporting

import (
	"fmt"
	"strings"

	"github.com/ducminhle1904/signal-backtest/internal/backtest"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	tradesSheet   = "Trades"
	filteredSheet = "Filtered Signals"
	auditSheet    = "Audit"
	dynamicSheet  = "Dynamic Config"
)

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct{}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{}
}

// WriteXLSX writes a workbook with the run summary, the trade ledger, the
// filtered signals and the audit trail.
func (r *DefaultExcelReporter) WriteXLSX(res *backtest.Result, path string) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	for _, name := range []string{tradesSheet, filteredSheet, auditSheet} {
		if _, err := fx.NewSheet(name); err != nil {
			return err
		}
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, res, styles); err != nil {
		return err
	}
	if err := r.writeTradesSheet(fx, res, styles); err != nil {
		return err
	}
	if err := r.writeFilteredSheet(fx, res, styles); err != nil {
		return err
	}
	if err := r.writeAuditSheet(fx, res, styles); err != nil {
		return err
	}
	if len(res.DynamicConfigLogs) > 0 {
		if err := r.writeDynamicSheet(fx, res, styles); err != nil {
			return err
		}
	}

	return fx.SaveAs(path)
}

func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	border := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}
	right := &excelize.Alignment{Horizontal: "right"}
	fill := func(color string) excelize.Fill {
		return excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
	}
	decimals4 := "0.0000"
	decimals6 := "0.000000"

	defs := []struct {
		target *int
		style  *excelize.Style
	}{
		{&styles.HeaderStyle, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
			Fill:      fill("2F4F4F"),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
			Border: []excelize.Border{
				{Type: "left", Color: "000000", Style: 1},
				{Type: "right", Color: "000000", Style: 1},
				{Type: "top", Color: "000000", Style: 1},
				{Type: "bottom", Color: "000000", Style: 1},
			},
		}},
		{&styles.CurrencyStyle, &excelize.Style{CustomNumFmt: &decimals4, Alignment: right, Border: border}},
		{&styles.PriceStyle, &excelize.Style{CustomNumFmt: &decimals6, Alignment: right, Border: border}},
		{&styles.PercentStyle, &excelize.Style{NumFmt: 10, Alignment: right, Border: border}},
		{&styles.BaseStyle, &excelize.Style{Border: border}},
		{&styles.ProfitStyle, &excelize.Style{CustomNumFmt: &decimals4, Font: &excelize.Font{Color: "008000"}, Alignment: right, Border: border}},
		{&styles.LossStyle, &excelize.Style{CustomNumFmt: &decimals4, Font: &excelize.Font{Color: "FF0000"}, Alignment: right, Border: border}},
		{&styles.EntryStyle, &excelize.Style{Fill: fill("EAF2FB"), Border: border}},
		{&styles.ExitStyle, &excelize.Style{Fill: fill("FDF2E9"), Border: border}},
		{&styles.SummaryStyle, &excelize.Style{Font: &excelize.Font{Bold: true}, Fill: fill("F2F2F2"), Border: border}},
	}
	for _, d := range defs {
		id, err := fx.NewStyle(d.style)
		if err != nil {
			return styles, err
		}
		*d.target = id
	}
	return styles, nil
}

func writeHeader(fx *excelize.File, sheet string, headers []string, widths []float64, styles ExcelStyles) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
		if i < len(widths) {
			col, _ := excelize.ColumnNumberToName(i + 1)
			fx.SetColWidth(sheet, col, col, widths[i])
		}
	}
	fx.SetPanes(sheet, &excelize.Panes{Freeze: true, Split: false, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (r *DefaultExcelReporter) writeSummarySheet(fx *excelize.File, res *backtest.Result, styles ExcelStyles) error {
	fx.SetColWidth(summarySheet, "A", "A", 22)
	fx.SetColWidth(summarySheet, "B", "B", 40)

	st := res.Stats
	rows := []struct {
		label string
		value interface{}
		style int
	}{
		{"Run ID", res.RunID.String(), styles.BaseStyle},
		{"Strategy", res.Strategy, styles.BaseStyle},
		{"Instrument", res.InstID, styles.BaseStyle},
		{"Bars", res.Bars, styles.BaseStyle},
		{"Funds", money(res.Funds), styles.CurrencyStyle},
		{"Total Return", round(st.TotalReturn, 6), styles.PercentStyle},
		{"Max Drawdown", round(st.MaxDrawdown, 6), styles.PercentStyle},
		{"Sharpe Ratio", round(st.SharpeRatio, 4), styles.BaseStyle},
		{"Profit Factor", profitFactorCell(st.ProfitFactor), styles.BaseStyle},
		{"Wins", res.Wins, styles.BaseStyle},
		{"Losses", res.Losses, styles.BaseStyle},
		{"Win Rate", round(res.WinRate, 6), styles.PercentStyle},
		{"Exits", st.TotalTrades, styles.BaseStyle},
		{"Open Trades", res.OpenTrades, styles.BaseStyle},
		{"Filtered Signals", len(res.FilteredSignals), styles.BaseStyle},
		{"Audit Rows", len(res.Audit), styles.BaseStyle},
	}
	for i, row := range rows {
		label, _ := excelize.CoordinatesToCellName(1, i+1)
		value, _ := excelize.CoordinatesToCellName(2, i+1)
		fx.SetCellValue(summarySheet, label, row.label)
		fx.SetCellStyle(summarySheet, label, label, styles.SummaryStyle)
		fx.SetCellValue(summarySheet, value, row.value)
		fx.SetCellStyle(summarySheet, value, value, row.style)
	}
	return nil
}

func (r *DefaultExcelReporter) writeTradesSheet(fx *excelize.File, res *backtest.Result, styles ExcelStyles) error {
	headers := []string{
		"#", "Type", "Open Time", "Signal Time", "Close Time", "Open Price", "Close Price",
		"Quantity", "PnL", "Full Close", "Close Type", "Stop Source", "Stop History",
	}
	widths := []float64{6, 8, 20, 20, 20, 14, 14, 12, 12, 10, 22, 16, 40}
	writeHeader(fx, tradesSheet, headers, widths, styles)

	for i, rec := range res.Records {
		row := i + 2
		var closePrice interface{}
		if rec.ClosePrice != nil {
			closePrice = price(*rec.ClosePrice)
		}
		values := []interface{}{
			i + 1, rec.OptionType, rec.OpenTime, rec.SignalOpenTime, rec.CloseTime,
			price(rec.OpenPrice), closePrice, round(rec.Quantity, 6), round(rec.ProfitLoss, 6),
			rec.FullClose, rec.CloseType, rec.StopLossSource, rec.StopLossUpdateHistory,
		}
		rowStyle := styles.EntryStyle
		if rec.IsClose() {
			rowStyle = styles.ExitStyle
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(tradesSheet, cell, v)
			style := rowStyle
			switch col {
			case 5, 6:
				style = styles.PriceStyle
			case 8:
				if rec.ProfitLoss > 0 {
					style = styles.ProfitStyle
				} else if rec.ProfitLoss < 0 {
					style = styles.LossStyle
				} else {
					style = styles.CurrencyStyle
				}
			}
			fx.SetCellStyle(tradesSheet, cell, cell, style)
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writeFilteredSheet(fx *excelize.File, res *backtest.Result, styles ExcelStyles) error {
	headers := []string{
		"Time", "Direction", "Signal Price", "Filter Reasons", "Result", "Final PnL",
		"Theoretical Profit", "Theoretical Loss", "Closed At", "Indicators",
	}
	widths := []float64{20, 10, 14, 30, 10, 12, 16, 16, 20, 50}
	writeHeader(fx, filteredSheet, headers, widths, styles)

	for i, s := range res.FilteredSignals {
		row := i + 2
		values := []interface{}{
			millisTime(s.Timestamp), s.Direction, price(s.SignalPrice), strings.Join(s.FilterReasons, ", "),
			s.TradeResult, round(s.FinalPnL, 6), round(s.TheoreticalProfit, 6), round(s.TheoreticalLoss, 6),
			millisTime(s.ClosedAt), s.IndicatorSnapshot,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(filteredSheet, cell, v)
			style := styles.BaseStyle
			switch col {
			case 2:
				style = styles.PriceStyle
			case 5:
				if s.FinalPnL > 0 {
					style = styles.ProfitStyle
				} else if s.FinalPnL < 0 {
					style = styles.LossStyle
				}
			case 6, 7:
				style = styles.PercentStyle
			}
			fx.SetCellStyle(filteredSheet, cell, cell, style)
		}
	}
	return nil
}

// writeAuditSheet streams the audit trail, which holds one row per bar.
func (r *DefaultExcelReporter) writeAuditSheet(fx *excelize.File, res *backtest.Result, styles ExcelStyles) error {
	sw, err := fx.NewStreamWriter(auditSheet)
	if err != nil {
		return err
	}
	for col, width := range []float64{20, 10, 30} {
		if err := sw.SetColWidth(col+1, col+1, width); err != nil {
			return err
		}
	}
	header := []interface{}{
		excelize.Cell{StyleID: styles.HeaderStyle, Value: "Time"},
		excelize.Cell{StyleID: styles.HeaderStyle, Value: "Decision"},
		excelize.Cell{StyleID: styles.HeaderStyle, Value: "Reason"},
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, d := range res.Audit {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, []interface{}{millisTime(d.Timestamp), d.Decision, d.Reason}); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func (r *DefaultExcelReporter) writeDynamicSheet(fx *excelize.File, res *backtest.Result, styles ExcelStyles) error {
	if _, err := fx.NewSheet(dynamicSheet); err != nil {
		return err
	}
	writeHeader(fx, dynamicSheet, []string{"Time", "Adjustments", "Snapshot"}, []float64{20, 50, 50}, styles)
	for i, l := range res.DynamicConfigLogs {
		row := i + 2
		for col, v := range []interface{}{millisTime(l.Timestamp), strings.Join(l.Adjustments, "; "), l.Snapshot} {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(dynamicSheet, cell, v)
			fx.SetCellStyle(dynamicSheet, cell, cell, styles.BaseStyle)
		}
	}
	return nil
}
