package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/upbit"
	"github.com/coinbot-kr/coinbot/models"
)

// LiveExecutor places real orders on the exchange.
type LiveExecutor struct {
	client *upbit.Client
	market models.MarketData
	logger zerolog.Logger
}

// NewLiveExecutor creates an executor bound to the exchange account.
func NewLiveExecutor(client *upbit.Client, market models.MarketData) *LiveExecutor {
	return &LiveExecutor{
		client: client,
		market: market,
		logger: log.With().Str("component", "executor").Str("mode", "live").Logger(),
	}
}

func (e *LiveExecutor) Mode() string { return "live" }

// BuyMarket spends krwAmount on a market buy. The fill quantity is
// estimated from the current price since market buys settle by amount.
func (e *LiveExecutor) BuyMarket(ctx context.Context, market string, krwAmount float64) (*models.Order, error) {
	price, err := e.currentPrice(ctx, market)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.BuyMarketOrder(ctx, market, krwAmount)
	if err != nil {
		return nil, fmt.Errorf("market buy %s: %w", market, err)
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:      uuid.NewString(),
		Market:       market,
		Side:         models.ActionBuy,
		Price:        price,
		Quantity:     krwAmount / price,
		TotalAmount:  krwAmount,
		Status:       models.OrderFilled,
		CreatedAt:    now,
		FilledAt:     &now,
		ExchangeUUID: resp.UUID,
	}
	if v, err := strconv.ParseFloat(resp.ExecutedVolume, 64); err == nil && v > 0 {
		order.Quantity = v
	}
	return order, nil
}

// SellMarket sells the given quantity at market.
func (e *LiveExecutor) SellMarket(ctx context.Context, market string, quantity float64) (*models.Order, error) {
	price, err := e.currentPrice(ctx, market)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.SellMarketOrder(ctx, market, quantity)
	if err != nil {
		return nil, fmt.Errorf("market sell %s: %w", market, err)
	}

	now := time.Now().UTC()
	fee, _ := strconv.ParseFloat(resp.PaidFee, 64)
	return &models.Order{
		OrderID:      uuid.NewString(),
		Market:       market,
		Side:         models.ActionSell,
		Price:        price,
		Quantity:     quantity,
		TotalAmount:  quantity*price - fee,
		Status:       models.OrderFilled,
		CreatedAt:    now,
		FilledAt:     &now,
		ExchangeUUID: resp.UUID,
	}, nil
}

func (e *LiveExecutor) AvailableKRW(ctx context.Context) (float64, error) {
	balances, err := e.client.GetBalances(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Currency == "KRW" {
			return b.Amount, nil
		}
	}
	return 0, nil
}

func (e *LiveExecutor) Balances(ctx context.Context) ([]models.Balance, error) {
	return e.client.GetBalances(ctx)
}

func (e *LiveExecutor) currentPrice(ctx context.Context, market string) (float64, error) {
	prices, err := e.market.GetCurrentPrices(ctx, []string{market})
	if err != nil {
		return 0, fmt.Errorf("price lookup %s: %w", market, err)
	}
	price, ok := prices[market]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no price for %s", market)
	}
	return price, nil
}

// PaperExecutor simulates fills against live prices without touching the
// exchange account. Safe mode runs on this.
type PaperExecutor struct {
	market  models.MarketData
	feeRate float64
	logger  zerolog.Logger

	mu       sync.Mutex
	krw      float64
	holdings map[string]float64 // market -> quantity
}

// NewPaperExecutor creates a simulated account seeded with startKRW.
func NewPaperExecutor(market models.MarketData, startKRW, feeRate float64) *PaperExecutor {
	return &PaperExecutor{
		market:   market,
		feeRate:  feeRate,
		logger:   log.With().Str("component", "executor").Str("mode", "paper").Logger(),
		krw:      startKRW,
		holdings: make(map[string]float64),
	}
}

func (e *PaperExecutor) Mode() string { return "paper" }

func (e *PaperExecutor) BuyMarket(ctx context.Context, market string, krwAmount float64) (*models.Order, error) {
	price, err := e.currentPrice(ctx, market)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.krw < krwAmount {
		return nil, fmt.Errorf("insufficient paper KRW: %.0f < %.0f", e.krw, krwAmount)
	}

	quantity := krwAmount * (1 - e.feeRate) / price
	e.krw -= krwAmount
	e.holdings[market] += quantity

	now := time.Now().UTC()
	e.logger.Info().Str("market", market).Float64("amount", krwAmount).
		Float64("quantity", quantity).Msg("paper buy filled")
	return &models.Order{
		OrderID:     uuid.NewString(),
		Market:      market,
		Side:        models.ActionBuy,
		Price:       price,
		Quantity:    quantity,
		TotalAmount: krwAmount,
		Status:      models.OrderFilled,
		CreatedAt:   now,
		FilledAt:    &now,
	}, nil
}

func (e *PaperExecutor) SellMarket(ctx context.Context, market string, quantity float64) (*models.Order, error) {
	price, err := e.currentPrice(ctx, market)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	held := e.holdings[market]
	if held < quantity {
		quantity = held
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("no paper holdings in %s", market)
	}

	proceeds := quantity * price * (1 - e.feeRate)
	e.krw += proceeds
	e.holdings[market] -= quantity
	if e.holdings[market] <= 1e-9 {
		delete(e.holdings, market)
	}

	now := time.Now().UTC()
	e.logger.Info().Str("market", market).Float64("quantity", quantity).
		Float64("proceeds", proceeds).Msg("paper sell filled")
	return &models.Order{
		OrderID:     uuid.NewString(),
		Market:      market,
		Side:        models.ActionSell,
		Price:       price,
		Quantity:    quantity,
		TotalAmount: proceeds,
		Status:      models.OrderFilled,
		CreatedAt:   now,
		FilledAt:    &now,
	}, nil
}

func (e *PaperExecutor) AvailableKRW(ctx context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.krw, nil
}

func (e *PaperExecutor) Balances(ctx context.Context) ([]models.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := []models.Balance{{Currency: "KRW", Amount: e.krw}}
	for market, qty := range e.holdings {
		out = append(out, models.Balance{
			Currency: strings.TrimPrefix(market, "KRW-"),
			Amount:   qty,
		})
	}
	return out, nil
}

func (e *PaperExecutor) currentPrice(ctx context.Context, market string) (float64, error) {
	prices, err := e.market.GetCurrentPrices(ctx, []string{market})
	if err != nil {
		return 0, fmt.Errorf("price lookup %s: %w", market, err)
	}
	price, ok := prices[market]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no price for %s", market)
	}
	return price, nil
}
