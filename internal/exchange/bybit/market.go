package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// KlineInterval represents the time interval for kline data
type KlineInterval string

const (
	Interval1m  KlineInterval = "1"
	Interval3m  KlineInterval = "3"
	Interval5m  KlineInterval = "5"
	Interval15m KlineInterval = "15"
	Interval30m KlineInterval = "30"
	Interval1h  KlineInterval = "60"
	Interval2h  KlineInterval = "120"
	Interval4h  KlineInterval = "240"
	Interval6h  KlineInterval = "360"
	Interval12h KlineInterval = "720"
	Interval1d  KlineInterval = "D"
	Interval1w  KlineInterval = "W"
)

// MaxKlineLimit is the largest page the kline endpoint returns.
const MaxKlineLimit = 1000

var intervalDurations = map[KlineInterval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// Duration returns the length of one candle.
func (i KlineInterval) Duration() time.Duration {
	return intervalDurations[i]
}

// ParseInterval accepts Bybit codes ("5", "60", "D") and shorthand such as
// "5m", "4h" or "1d".
func ParseInterval(s string) (KlineInterval, error) {
	s = strings.TrimSpace(s)
	if _, ok := intervalDurations[KlineInterval(strings.ToUpper(s))]; ok {
		return KlineInterval(strings.ToUpper(s)), nil
	}
	if len(s) >= 2 {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err == nil && n > 0 {
			minutes := 0
			switch strings.ToLower(s[len(s)-1:]) {
			case "m":
				minutes = n
			case "h":
				minutes = n * 60
			case "d":
				if n == 1 {
					return Interval1d, nil
				}
			case "w":
				if n == 1 {
					return Interval1w, nil
				}
			}
			if iv := KlineInterval(strconv.Itoa(minutes)); minutes > 0 && iv.Duration() > 0 {
				return iv, nil
			}
		}
	}
	return "", fmt.Errorf("unsupported kline interval %q", s)
}

// Kline represents a single kline/candlestick data point
type Kline struct {
	StartTime  time.Time
	OpenPrice  float64
	HighPrice  float64
	LowPrice   float64
	ClosePrice float64
	Volume     float64
	Turnover   float64
}

// KlineParams holds parameters for fetching kline data
type KlineParams struct {
	Category string        // "spot", "linear", "inverse"
	Symbol   string        // Trading pair symbol (e.g., "BTCUSDT")
	Interval KlineInterval // Time interval
	Start    *time.Time    // Start time (optional)
	End      *time.Time    // End time (optional)
	Limit    int           // Number of records to return (max 1000, default 200)
}

// GetKlines fetches one page of klines, newest first as Bybit returns them.
func (c *Client) GetKlines(ctx context.Context, params KlineParams) ([]Kline, error) {
	if params.Category == "" {
		params.Category = c.category
	}
	if params.Limit == 0 {
		params.Limit = 200
	}
	if params.Limit > MaxKlineLimit {
		params.Limit = MaxKlineLimit
	}

	reqParams := map[string]interface{}{
		"category": params.Category,
		"symbol":   params.Symbol,
		"interval": string(params.Interval),
		"limit":    params.Limit,
	}
	if params.Start != nil {
		reqParams["start"] = params.Start.UnixMilli()
	}
	if params.End != nil {
		reqParams["end"] = params.End.UnixMilli()
	}

	result, err := c.api.NewUtaBybitServiceWithParams(reqParams).GetMarketKline(ctx)
	if err != nil {
		return nil, WrapAPIError("get klines", err)
	}
	return parseKlineResponse(result)
}

// parseKlineResponse parses the API response into Kline structs
func parseKlineResponse(serverResp *bybit_api.ServerResponse) ([]Kline, error) {
	if serverResp == nil {
		return nil, fmt.Errorf("empty kline response")
	}
	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var klineResult struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kline result: %w", err)
	}
	return parseKlineRows(klineResult.List)
}

// parseKlineRows decodes [startTime, open, high, low, close, volume, turnover] rows.
func parseKlineRows(rows [][]string) ([]Kline, error) {
	klines := make([]Kline, 0, len(rows))
	for _, item := range rows {
		if len(item) < 7 {
			continue // Skip incomplete data
		}
		var v [7]float64
		for i := 0; i < 7; i++ {
			f, err := strconv.ParseFloat(item[i], 64)
			if err != nil {
				return nil, fmt.Errorf("kline field %d %q: %w", i, item[i], err)
			}
			v[i] = f
		}
		klines = append(klines, Kline{
			StartTime:  time.UnixMilli(int64(v[0])).UTC(),
			OpenPrice:  v[1],
			HighPrice:  v[2],
			LowPrice:   v[3],
			ClosePrice: v[4],
			Volume:     v[5],
			Turnover:   v[6],
		})
	}
	return klines, nil
}
