package bybit

import (
	"context"
	"strconv"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/logger"
)

// SetTradingStop sets take profit and stop loss for a position
func (c *Client) SetTradingStop(ctx context.Context, category, symbol string, positionIdx int, takeProfit, stopLoss string) error {
	if category == "" {
		category = c.category
	}

	params := map[string]interface{}{
		"category":    category,
		"symbol":      symbol,
		"positionIdx": positionIdx,
	}
	if takeProfit != "" {
		params["takeProfit"] = takeProfit
	}
	if stopLoss != "" {
		params["stopLoss"] = stopLoss
	}

	result, err := c.api.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err != nil {
		return WrapAPIError("set trading stop", err)
	}
	if result != nil {
		return ParseAPIError(result.RetCode, result.RetMsg)
	}
	return nil
}

// TradingStopSetter is the part of Client used by StopAmender.
type TradingStopSetter interface {
	SetTradingStop(ctx context.Context, category, symbol string, positionIdx int, takeProfit, stopLoss string) error
}

// StopAmender moves the position stop loss of a live strategy. Bybit keeps
// the stop on the position, so the order id is only used for logging.
type StopAmender struct {
	client      TradingStopSetter
	category    string
	positionIdx int
	retry       RetryConfig
	breaker     *CircuitBreaker
	log         *logger.Logger
}

// NewStopAmender creates an amender for one-way mode positions.
func NewStopAmender(client TradingStopSetter, category string, log *logger.Logger) *StopAmender {
	if category == "" {
		category = DefaultCategory
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StopAmender{
		client:   client,
		category: category,
		retry: RetryConfig{
			MaxRetries:    2,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2,
			JitterEnabled: true,
		},
		breaker: NewCircuitBreaker(5, time.Minute),
		log:     log,
	}
}

// MoveStopLoss sets the stop of instID's position to price.
func (a *StopAmender) MoveStopLoss(ctx context.Context, instID, orderID string, price float64) error {
	stop := strconv.FormatFloat(price, 'f', -1, 64)
	err := a.breaker.Call(func() error {
		return Retry(ctx, a.retry, func() error {
			return a.client.SetTradingStop(ctx, a.category, instID, a.positionIdx, "", stop)
		})
	})
	if err != nil {
		return toPipelineError("MoveStopLoss", err)
	}
	a.log.Trade("moved stop of %s (order %s) to %s", instID, orderID, stop)
	return nil
}
