package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinbot-kr/coinbot/models"
)

func TestPaperBuyDeductsFeeAndBalance(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"KRW-BTC": 100_000}}
	exec := NewPaperExecutor(market, 1_000_000, 0.0005)
	ctx := context.Background()

	order, err := exec.BuyMarket(ctx, "KRW-BTC", 100_000)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, order.Status)
	assert.InDelta(t, 0.9995, order.Quantity, 1e-9)

	krw, err := exec.AvailableKRW(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 900_000, krw, 1e-6)
}

func TestPaperBuyInsufficientFunds(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"KRW-BTC": 100_000}}
	exec := NewPaperExecutor(market, 50_000, 0.0005)

	_, err := exec.BuyMarket(context.Background(), "KRW-BTC", 100_000)
	require.Error(t, err)

	krw, _ := exec.AvailableKRW(context.Background())
	assert.Equal(t, 50_000.0, krw, "failed buy must not touch the balance")
}

func TestPaperSellClampsToHolding(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"KRW-ETH": 5_000_000}}
	exec := NewPaperExecutor(market, 1_000_000, 0.0005)
	ctx := context.Background()

	buy, err := exec.BuyMarket(ctx, "KRW-ETH", 500_000)
	require.NoError(t, err)

	// asking for more than held settles the whole holding
	sell, err := exec.SellMarket(ctx, "KRW-ETH", buy.Quantity*2)
	require.NoError(t, err)
	assert.InDelta(t, buy.Quantity, sell.Quantity, 1e-9)

	balances, err := exec.Balances(ctx)
	require.NoError(t, err)
	for _, b := range balances {
		assert.Equal(t, "KRW", b.Currency, "coin holding should be emptied after full sell")
	}
}

func TestPaperSellWithoutHolding(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"KRW-XRP": 700}}
	exec := NewPaperExecutor(market, 1_000_000, 0.0005)

	_, err := exec.SellMarket(context.Background(), "KRW-XRP", 10)
	assert.Error(t, err)
}

func TestPaperRoundTripLosesOnlyFees(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"KRW-BTC": 100_000}}
	exec := NewPaperExecutor(market, 1_000_000, 0.0005)
	ctx := context.Background()

	buy, err := exec.BuyMarket(ctx, "KRW-BTC", 200_000)
	require.NoError(t, err)
	_, err = exec.SellMarket(ctx, "KRW-BTC", buy.Quantity)
	require.NoError(t, err)

	krw, err := exec.AvailableKRW(ctx)
	require.NoError(t, err)
	assert.Less(t, krw, 1_000_000.0)
	assert.Greater(t, krw, 999_500.0, "flat-price round trip should only cost the two fees")
}
