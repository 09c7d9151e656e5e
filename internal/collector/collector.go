package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/upbit"
	"github.com/coinbot-kr/coinbot/models"
)

const cacheTTL = 30 * time.Second

type cacheEntry struct {
	candles   []models.Candle
	fetchedAt time.Time
}

// exchangeAPI is the slice of the Upbit client the collector uses.
type exchangeAPI interface {
	GetOHLCV(ctx context.Context, market, timeframe string, count int) ([]models.Candle, error)
	GetTickers(ctx context.Context, markets []string) ([]upbit.TickerInfo, error)
	GetOrderbook(ctx context.Context, market string) (*models.Orderbook, error)
	GetBalances(ctx context.Context) ([]models.Balance, error)
}

// Collector fetches market data from Upbit with a short-lived OHLCV cache.
// Realtime websocket ticks can be pushed in to serve price reads without a
// REST round trip.
type Collector struct {
	client exchangeAPI
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry

	priceMu    sync.RWMutex
	livePrices map[string]models.Ticker
}

// New creates a Collector backed by the given Upbit client.
func New(client *upbit.Client) *Collector {
	return newWithAPI(client)
}

func newWithAPI(client exchangeAPI) *Collector {
	return &Collector{
		client:     client,
		logger:     log.With().Str("component", "collector").Logger(),
		cache:      make(map[string]cacheEntry),
		livePrices: make(map[string]models.Ticker),
	}
}

// GetOHLCV returns count candles for the market and timeframe, serving from
// cache while entries are fresh. Zero-price rows are dropped.
func (c *Collector) GetOHLCV(ctx context.Context, market, timeframe string, count int) ([]models.Candle, error) {
	key := market + "|" + timeframe

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < cacheTTL && len(entry.candles) >= count {
		return entry.candles[len(entry.candles)-count:], nil
	}

	candles, err := c.client.GetOHLCV(ctx, market, timeframe, count)
	if err != nil {
		return nil, err
	}
	candles = sanitize(candles)
	if len(candles) == 0 {
		return nil, fmt.Errorf("no usable candles for %s/%s", market, timeframe)
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{candles: candles, fetchedAt: time.Now()}
	c.mu.Unlock()

	return candles, nil
}

// GetMultiTimeframe fetches candles for every timeframe of one market.
// Timeframes that fail are skipped with a warning.
func (c *Collector) GetMultiTimeframe(ctx context.Context, market string, timeframes []string, count int) (map[string][]models.Candle, error) {
	out := make(map[string][]models.Candle, len(timeframes))
	for _, tf := range timeframes {
		candles, err := c.GetOHLCV(ctx, market, tf, count)
		if err != nil {
			c.logger.Warn().Err(err).Str("market", market).Str("timeframe", tf).
				Msg("timeframe fetch failed")
			continue
		}
		out[tf] = candles
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("all timeframe fetches failed for %s", market)
	}
	return out, nil
}

// PushTick records a realtime websocket price.
func (c *Collector) PushTick(ev upbit.TickerEvent) {
	c.priceMu.Lock()
	c.livePrices[ev.Code] = models.Ticker{
		Market:     ev.Code,
		TradePrice: ev.TradePrice,
		Timestamp:  time.UnixMilli(ev.TradeTimestamp).UTC(),
	}
	c.priceMu.Unlock()
}

// GetCurrentPrices returns trade prices for the markets. Live websocket
// ticks newer than 10s win; the rest are fetched in one bulk REST call.
func (c *Collector) GetCurrentPrices(ctx context.Context, markets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(markets))
	var missing []string

	c.priceMu.RLock()
	for _, m := range markets {
		if tick, ok := c.livePrices[m]; ok && time.Since(tick.Timestamp) < 10*time.Second {
			out[m] = tick.TradePrice
		} else {
			missing = append(missing, m)
		}
	}
	c.priceMu.RUnlock()

	if len(missing) > 0 {
		tickers, err := c.client.GetTickers(ctx, missing)
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			c.logger.Warn().Err(err).Msg("bulk ticker fetch failed, serving live ticks only")
			return out, nil
		}
		for _, t := range tickers {
			out[t.Market] = t.TradePrice
		}
	}
	return out, nil
}

// GetOrderbook returns the current top of book for a market.
func (c *Collector) GetOrderbook(ctx context.Context, market string) (*models.Orderbook, error) {
	return c.client.GetOrderbook(ctx, market)
}

// GetBalances returns current account balances.
func (c *Collector) GetBalances(ctx context.Context) ([]models.Balance, error) {
	return c.client.GetBalances(ctx)
}

// GetMarketSummary aggregates all watched markets into a single trend view.
// More than 60% of markets rising reads bullish, under 40% bearish.
func (c *Collector) GetMarketSummary(ctx context.Context, markets []string) (*models.MarketSummary, error) {
	tickers, err := c.client.GetTickers(ctx, markets)
	if err != nil {
		return nil, fmt.Errorf("market summary: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("market summary: no tickers returned")
	}

	summary := &models.MarketSummary{
		Timestamp:  time.Now().UTC(),
		TotalCoins: len(tickers),
		Prices:     make(map[string]float64, len(tickers)),
	}

	rising := 0
	for _, t := range tickers {
		summary.Prices[t.Market] = t.TradePrice
		summary.TotalVolume += t.Volume24H
		if t.SignedChangeRate > 0 {
			rising++
		}
	}
	summary.RisingRatio = float64(rising) / float64(len(tickers))

	switch {
	case summary.RisingRatio > 0.6:
		summary.MarketTrend = models.MarketBullish
	case summary.RisingRatio < 0.4:
		summary.MarketTrend = models.MarketBearish
	default:
		summary.MarketTrend = models.MarketNeutral
	}
	return summary, nil
}

// HealthCheck verifies the exchange API is reachable.
func (c *Collector) HealthCheck(ctx context.Context) error {
	_, err := c.client.GetTickers(ctx, []string{"KRW-BTC"})
	if err != nil {
		return fmt.Errorf("exchange unreachable: %w", err)
	}
	return nil
}

// sanitize drops rows with non-positive prices or negative volume.
func sanitize(candles []models.Candle) []models.Candle {
	out := candles[:0]
	for _, cd := range candles {
		if cd.Open <= 0 || cd.High <= 0 || cd.Low <= 0 || cd.Close <= 0 || cd.Volume < 0 {
			continue
		}
		out = append(out, cd)
	}
	return out
}
