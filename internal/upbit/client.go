package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/metrics"
	platformhttp "github.com/coinbot-kr/coinbot/internal/platform/http"
	"github.com/coinbot-kr/coinbot/models"
)

const baseURL = "https://api.upbit.com/v1"

// countRequest feeds the exchange request counter once per logical API
// call, after retries have resolved.
func countRequest(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ExchangeRequests.WithLabelValues(endpoint, outcome).Inc()
}

// Client talks to the Upbit REST API. Public endpoints need no keys;
// private endpoints require both.
type Client struct {
	http      *platformhttp.Client
	accessKey string
	secretKey string
	logger    zerolog.Logger
}

// NewClient creates an Upbit API client with rate limiting and retries.
func NewClient(accessKey, secretKey string) *Client {
	return &Client{
		http: platformhttp.NewClient(platformhttp.ClientOptions{
			Timeout:        10 * time.Second,
			RequestsPerSec: 10,
			Burst:          10,
		}),
		accessKey: accessKey,
		secretKey: secretKey,
		logger:    log.With().Str("component", "upbit").Logger(),
	}
}

// HasKeys reports whether private endpoints are usable.
func (c *Client) HasKeys() bool {
	return c.accessKey != "" && c.secretKey != ""
}

type candleResponse struct {
	Market            string  `json:"market"`
	CandleDateTimeUTC string  `json:"candle_date_time_utc"`
	OpeningPrice      float64 `json:"opening_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	TradePrice        float64 `json:"trade_price"`
	CandleAccVolume   float64 `json:"candle_acc_trade_volume"`
}

// GetOHLCV fetches up to count minute candles for a market, oldest first.
func (c *Client) GetOHLCV(ctx context.Context, market, timeframe string, count int) ([]models.Candle, error) {
	if count <= 0 || count > 200 {
		count = 200
	}
	unit := models.TimeframeMinutes(timeframe)

	endpoint := fmt.Sprintf("%s/candles/minutes/%d?market=%s&count=%d",
		baseURL, unit, url.QueryEscape(market), count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var raw []candleResponse
	err = c.http.DoJSON(ctx, req, &raw)
	countRequest("candles", err)
	if err != nil {
		return nil, fmt.Errorf("fetching candles %s/%s: %w", market, timeframe, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty candle data for %s", market)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, v := range raw {
		ts, err := time.Parse("2006-01-02T15:04:05", v.CandleDateTimeUTC)
		if err != nil {
			continue
		}
		candles = append(candles, models.Candle{
			Market:    v.Market,
			Timestamp: ts.UTC(),
			Open:      v.OpeningPrice,
			High:      v.HighPrice,
			Low:       v.LowPrice,
			Close:     v.TradePrice,
			Volume:    v.CandleAccVolume,
			Timeframe: timeframe,
		})
	}

	// API returns newest first
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	c.logger.Debug().Str("market", market).Str("timeframe", timeframe).
		Int("count", len(candles)).Msg("fetched candles")
	return candles, nil
}

type tickerResponse struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	TradeTimestamp   int64   `json:"trade_timestamp"`
	AccTradePrice24H float64 `json:"acc_trade_price_24h"`
	SignedChangeRate float64 `json:"signed_change_rate"`
}

// TickerInfo is the bulk ticker snapshot of one market.
type TickerInfo struct {
	Market           string
	TradePrice       float64
	Volume24H        float64
	SignedChangeRate float64
	Timestamp        time.Time
}

// GetTickers fetches current tickers for all given markets in one call.
func (c *Client) GetTickers(ctx context.Context, markets []string) ([]TickerInfo, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("no markets requested")
	}
	endpoint := baseURL + "/ticker?markets=" + url.QueryEscape(strings.Join(markets, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var raw []tickerResponse
	err = c.http.DoJSON(ctx, req, &raw)
	countRequest("ticker", err)
	if err != nil {
		return nil, fmt.Errorf("fetching tickers: %w", err)
	}

	out := make([]TickerInfo, 0, len(raw))
	for _, v := range raw {
		out = append(out, TickerInfo{
			Market:           v.Market,
			TradePrice:       v.TradePrice,
			Volume24H:        v.AccTradePrice24H,
			SignedChangeRate: v.SignedChangeRate,
			Timestamp:        time.UnixMilli(v.TradeTimestamp).UTC(),
		})
	}
	return out, nil
}

type orderbookResponse struct {
	Market         string `json:"market"`
	Timestamp      int64  `json:"timestamp"`
	OrderbookUnits []struct {
		AskPrice float64 `json:"ask_price"`
		BidPrice float64 `json:"bid_price"`
		AskSize  float64 `json:"ask_size"`
		BidSize  float64 `json:"bid_size"`
	} `json:"orderbook_units"`
}

// GetOrderbook fetches the top of book for one market.
func (c *Client) GetOrderbook(ctx context.Context, market string) (*models.Orderbook, error) {
	endpoint := baseURL + "/orderbook?markets=" + url.QueryEscape(market)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var raw []orderbookResponse
	err = c.http.DoJSON(ctx, req, &raw)
	countRequest("orderbook", err)
	if err != nil {
		return nil, fmt.Errorf("fetching orderbook %s: %w", market, err)
	}
	if len(raw) == 0 || len(raw[0].OrderbookUnits) == 0 {
		return nil, fmt.Errorf("empty orderbook for %s", market)
	}

	top := raw[0].OrderbookUnits[0]
	ob := &models.Orderbook{
		Market:    raw[0].Market,
		Timestamp: time.UnixMilli(raw[0].Timestamp).UTC(),
		BidPrice:  top.BidPrice,
		AskPrice:  top.AskPrice,
		BidSize:   top.BidSize,
		AskSize:   top.AskSize,
	}
	if top.BidPrice > 0 {
		ob.Spread = (top.AskPrice - top.BidPrice) / top.BidPrice
	}
	return ob, nil
}
