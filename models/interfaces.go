package models

import "context"

// MarketData is the read side of the exchange used by analysis components.
type MarketData interface {
	GetOHLCV(ctx context.Context, market, timeframe string, count int) ([]Candle, error)
	GetCurrentPrices(ctx context.Context, markets []string) (map[string]float64, error)
	GetOrderbook(ctx context.Context, market string) (*Orderbook, error)
}

// OrderExecutor places and settles orders, live against the exchange or simulated.
type OrderExecutor interface {
	BuyMarket(ctx context.Context, market string, krwAmount float64) (*Order, error)
	SellMarket(ctx context.Context, market string, quantity float64) (*Order, error)
	AvailableKRW(ctx context.Context) (float64, error)
	Balances(ctx context.Context) ([]Balance, error)
	Mode() string
}

// Notifier delivers out-of-band alerts. Implementations may silently drop
// messages when disabled or throttled.
type Notifier interface {
	NotifyTrade(ctx context.Context, trade *TradeResult) error
	NotifyError(ctx context.Context, component string, err error) error
	NotifyText(ctx context.Context, text string) error
	NotifyPortfolio(ctx context.Context, summary *PortfolioSummary) error
	NotifyStatus(ctx context.Context, text string) error
	Enabled() bool
}
