// Package bybit adapts the Bybit v5 REST API to the candle repository and
// stop-loss amender used by the backtest and realtime commands.
package bybit

import (
	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// DefaultCategory is the product category used when none is configured.
const DefaultCategory = "linear"

// Client is the REST client shared by CandleRepository and StopAmender.
// Market data needs no credentials; the trading-stop endpoint does.
type Client struct {
	api      *bybit_api.Client
	category string
	testnet  bool
}

type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	// Category is "spot", "linear" or "inverse".
	Category string
}

func NewClient(cfg Config) *Client {
	baseURL := bybit_api.MAINNET
	if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}
	category := cfg.Category
	if category == "" {
		category = DefaultCategory
	}
	return &Client{
		api:      bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		category: category,
		testnet:  cfg.Testnet,
	}
}

func (c *Client) Category() string {
	return c.category
}

// GetEnvironment names the endpoint the client talks to, for logs.
func (c *Client) GetEnvironment() string {
	if c.testnet {
		return "testnet"
	}
	return "mainnet"
}
