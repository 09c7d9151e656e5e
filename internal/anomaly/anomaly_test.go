package anomaly

import (
	"strings"
	"testing"
	"time"

	"github.com/coinbot-kr/coinbot/models"
)

func buildCandles(count int, build func(i int) models.Candle) []models.Candle {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, count)
	for i := 0; i < count; i++ {
		c := build(i)
		c.Market = "KRW-BTC"
		c.Timestamp = base.Add(time.Duration(i) * time.Minute)
		out[i] = c
	}
	return out
}

// calm candles oscillate around 100 with a steady 2-point range.
func calmCandle(i int) models.Candle {
	close := 100.0
	if i%2 == 1 {
		close = 100.5
	}
	return models.Candle{
		Open:   close,
		High:   close + 1,
		Low:    close - 1,
		Close:  close,
		Volume: 100,
	}
}

func TestDetectShortSeries(t *testing.T) {
	candles := buildCandles(10, calmCandle)
	if d := Detect(candles); d.Detected {
		t.Errorf("Detect() on 10 candles = %+v, want none", d)
	}
}

func TestDetectFlatSeries(t *testing.T) {
	candles := buildCandles(30, func(i int) models.Candle {
		return models.Candle{Open: 100, High: 100, Low: 100, Close: 100, Volume: 100}
	})
	if d := Detect(candles); d.Detected {
		t.Errorf("Detect() on zero-range candles = %+v, want none", d)
	}
}

func TestDetectCalmMarket(t *testing.T) {
	candles := buildCandles(30, calmCandle)
	if d := Detect(candles); d.Detected {
		t.Errorf("Detect() on calm candles = %+v, want none", d)
	}
}

func TestDetectPriceSpike(t *testing.T) {
	candles := buildCandles(30, calmCandle)
	last := len(candles) - 1
	candles[last].Close = 110
	candles[last].High = 111
	candles[last].Low = 100 // overlaps the previous close, no gap

	d := Detect(candles)
	if !d.Detected {
		t.Fatal("Detect() missed a 10% one-candle move")
	}
	if !strings.Contains(d.Type, TypePriceSpike) {
		t.Errorf("Type = %q, want %s", d.Type, TypePriceSpike)
	}
	if d.Score < 0.9 {
		t.Errorf("Score = %.2f, want near 1 for a large spike", d.Score)
	}
}

func TestDetectVolumeSpike(t *testing.T) {
	candles := buildCandles(30, calmCandle)
	candles[len(candles)-1].Volume = 500

	d := Detect(candles)
	if !d.Detected {
		t.Fatal("Detect() missed a 5x volume spike")
	}
	if d.Type != TypeVolumeSpike {
		t.Errorf("Type = %q, want %s", d.Type, TypeVolumeSpike)
	}
	if d.Score < 0.99 {
		t.Errorf("Score = %.2f, want 1 at 5x the average", d.Score)
	}
}

func TestDetectVolatilityBreakout(t *testing.T) {
	candles := buildCandles(60, func(i int) models.Candle {
		spread := 0.5
		if i >= 50 {
			spread = 10 // range explodes in the last 10 candles
		}
		return models.Candle{
			Open:   100,
			High:   100 + spread,
			Low:    100 - spread,
			Close:  100,
			Volume: 100,
		}
	})

	d := Detect(candles)
	if !d.Detected {
		t.Fatal("Detect() missed a volatility regime change")
	}
	if d.Type != TypeVolatilityBreakout {
		t.Errorf("Type = %q, want %s", d.Type, TypeVolatilityBreakout)
	}
}

func TestDetectCombinedAnomaliesBoostScore(t *testing.T) {
	candles := buildCandles(30, calmCandle)
	last := len(candles) - 1
	candles[last].Close = 110
	candles[last].High = 111
	candles[last].Low = 109 // gaps clear of the previous close
	candles[last].Volume = 500

	d := Detect(candles)
	if !d.Detected {
		t.Fatal("Detect() missed combined anomalies")
	}
	if !strings.Contains(d.Type, TypePriceSpike) || !strings.Contains(d.Type, TypeVolumeSpike) {
		t.Errorf("Type = %q, want price and volume spike combined", d.Type)
	}
	if d.Score != 1 {
		t.Errorf("Score = %.2f, want saturated at 1", d.Score)
	}
}
