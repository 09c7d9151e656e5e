package calculate

import (
	"testing"
	"time"

	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/models"
)

func generateTestCandles(count int, generator func(i int) models.Candle) []models.Candle {
	candles := make([]models.Candle, count)
	for i := 0; i < count; i++ {
		candles[i] = generator(i)
	}
	return candles
}

func risingCandles(count int) []models.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return generateTestCandles(count, func(i int) models.Candle {
		price := 100.0 + float64(i)
		return models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    100,
		}
	})
}

func fallingCandles(count int) []models.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return generateTestCandles(count, func(i int) models.Candle {
		price := 200.0 - float64(i)
		return models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price - 0.5,
			Volume:    100,
		}
	})
}

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name    string
		candles []models.Candle
		period  int
		check   func(t *testing.T, rsi float64)
	}{
		{
			name:    "uptrend pushes RSI high",
			candles: risingCandles(50),
			period:  14,
			check: func(t *testing.T, rsi float64) {
				if rsi < 70 {
					t.Errorf("RSI = %.2f, want > 70 for steady uptrend", rsi)
				}
			},
		},
		{
			name:    "downtrend pushes RSI low",
			candles: fallingCandles(50),
			period:  14,
			check: func(t *testing.T, rsi float64) {
				if rsi > 30 {
					t.Errorf("RSI = %.2f, want < 30 for steady downtrend", rsi)
				}
			},
		},
		{
			name:    "insufficient data returns neutral",
			candles: risingCandles(5),
			period:  14,
			check: func(t *testing.T, rsi float64) {
				if rsi != 50.0 {
					t.Errorf("RSI = %.2f, want 50.0 default", rsi)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, calculateRSI(tt.candles, tt.period))
		})
	}
}

func TestCalculateMACDTrendSign(t *testing.T) {
	up := risingCandles(60)
	macd, _, _ := calculateMACD(up, 12, 26, 9)
	if macd <= 0 {
		t.Errorf("MACD = %.4f, want > 0 in uptrend", macd)
	}

	down := fallingCandles(60)
	macd, _, _ = calculateMACD(down, 12, 26, 9)
	if macd >= 0 {
		t.Errorf("MACD = %.4f, want < 0 in downtrend", macd)
	}
}

func TestCalculateMACDInsufficientData(t *testing.T) {
	macd, signal, hist := calculateMACD(risingCandles(10), 12, 26, 9)
	if macd != 0 || signal != 0 || hist != 0 {
		t.Errorf("MACD with short series = (%.2f, %.2f, %.2f), want zeros", macd, signal, hist)
	}
}

func TestCalculateBollingerBands(t *testing.T) {
	flat := generateTestCandles(30, func(i int) models.Candle {
		return models.Candle{Open: 100, High: 100, Low: 100, Close: 100, Volume: 10}
	})
	upper, middle, lower := calculateBollingerBands(flat, 20, 2.0)
	if upper != 100 || middle != 100 || lower != 100 {
		t.Errorf("flat series bands = (%.2f, %.2f, %.2f), want all 100", upper, middle, lower)
	}

	varied := risingCandles(30)
	upper, middle, lower = calculateBollingerBands(varied, 20, 2.0)
	if !(lower < middle && middle < upper) {
		t.Errorf("bands not ordered: lower %.2f middle %.2f upper %.2f", lower, middle, upper)
	}
}

func TestCalculateStochasticRange(t *testing.T) {
	for _, candles := range [][]models.Candle{risingCandles(40), fallingCandles(40)} {
		k, d := calculateStochastic(candles, 14, 3)
		if k < 0 || k > 100 || d < 0 || d > 100 {
			t.Errorf("stochastic out of range: k=%.2f d=%.2f", k, d)
		}
	}

	k, _ := calculateStochastic(risingCandles(40), 14, 3)
	if k < 80 {
		t.Errorf("uptrend %%K = %.2f, want near upper bound", k)
	}
}

func TestCalculateEMAFromPrices(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	ema := calculateEMAFromPrices(prices, 5)
	sma := calculateSMAFromPrices(prices, 5)
	// EMA should sit above SMA-of-initial-window and below the last price
	if ema <= prices[4] || ema > prices[len(prices)-1] {
		t.Errorf("EMA = %.2f, want in (%.2f, %.2f]", ema, prices[4], prices[len(prices)-1])
	}
	if sma != 8 {
		t.Errorf("SMA = %.2f, want 8 (mean of last 5)", sma)
	}
}

func TestCalculateAllIndicators(t *testing.T) {
	cfg := &config.AnalysisConfig{
		RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
		SMAShort: 5, SMALong: 20, EMAShort: 5, EMALong: 20,
		BBPeriod: 20, BBStdDev: 2.0, StochKPeriod: 14, StochDPeriod: 3,
		VolumePeriod: 20,
	}

	ind := CalculateAllIndicators(risingCandles(100), cfg)

	if ind.RSI <= 50 {
		t.Errorf("RSI = %.2f, want > 50 in uptrend", ind.RSI)
	}
	if ind.SMAShort <= ind.SMALong {
		t.Errorf("SMAShort %.2f <= SMALong %.2f, want short above long in uptrend",
			ind.SMAShort, ind.SMALong)
	}
	if ind.BBUpper <= ind.BBLower {
		t.Errorf("BBUpper %.2f <= BBLower %.2f", ind.BBUpper, ind.BBLower)
	}
	if ind.VolumeSMA != 100 {
		t.Errorf("VolumeSMA = %.2f, want 100", ind.VolumeSMA)
	}
}
