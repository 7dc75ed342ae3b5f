package trading

import "strconv"

// DomainSignal is the optional-field signal shape produced by live strategy
// services. FromDomainSignal adapts it for the backtest and risk code.
type DomainSignal struct {
	ShouldBuy              *bool
	ShouldSell             *bool
	OpenPrice              *float64
	SignalKlineStopLoss    *float64
	StopLossSource         string
	BestOpenPrice          *float64
	ATRTakeProfitRatio     *float64
	ATRStopLoss            *float64
	LongSignalTakeProfit   *float64
	ShortSignalTakeProfit  *float64
	MoveStopWhenTouchPrice *float64
	Timestamp              *int64
	SignalValue            *float64
	SignalResult           *float64
	FilterReasons          []string
	Direction              SignalDirection
}

// FromDomainSignal converts a domain signal; missing values become zero values.
func FromDomainSignal(d DomainSignal) SignalResult {
	s := SignalResult{
		ShouldBuy:               d.ShouldBuy != nil && *d.ShouldBuy,
		ShouldSell:              d.ShouldSell != nil && *d.ShouldSell,
		SignalKlineStopLoss:     clonePrice(d.SignalKlineStopLoss),
		StopLossSource:          d.StopLossSource,
		BestOpenPrice:           clonePrice(d.BestOpenPrice),
		ATRTakeProfitRatioPrice: clonePrice(d.ATRTakeProfitRatio),
		ATRStopLossPrice:        clonePrice(d.ATRStopLoss),
		LongSignalTakeProfit:    clonePrice(d.LongSignalTakeProfit),
		ShortSignalTakeProfit:   clonePrice(d.ShortSignalTakeProfit),
		MoveStopWhenTouchPrice:  clonePrice(d.MoveStopWhenTouchPrice),
		FilterReasons:           append([]string(nil), d.FilterReasons...),
		Direction:               d.Direction,
	}
	if d.OpenPrice != nil {
		s.OpenPrice = *d.OpenPrice
	}
	if d.Timestamp != nil {
		s.Timestamp = *d.Timestamp
	}
	if d.SignalValue != nil {
		s.SignalValue = strconv.FormatFloat(*d.SignalValue, 'f', -1, 64)
	}
	if d.SignalResult != nil {
		s.SignalResult = strconv.FormatFloat(*d.SignalResult, 'f', -1, 64)
	}
	return s
}
