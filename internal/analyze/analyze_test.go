package analyze

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

func testConfigs() (*config.AnalysisConfig, *config.TradingConfig) {
	return &config.AnalysisConfig{
			RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
			SMAShort: 5, SMALong: 20, EMAShort: 5, EMALong: 20,
			BBPeriod: 20, BBStdDev: 2.0, StochKPeriod: 14, StochDPeriod: 3,
			VolumePeriod: 20, MinScore: 75, MinConfidence: 0.6,
		}, &config.TradingConfig{
			StopLossRatio:   0.08,
			TakeProfitRatio: 0.20,
		}
}

func TestScoreRSI(t *testing.T) {
	tests := []struct {
		rsi  float64
		want float64
	}{
		{rsi: 25, want: 25},
		{rsi: 35, want: 25},
		{rsi: 40, want: 20},
		{rsi: 50, want: 10},
		{rsi: 65, want: 5},
		{rsi: 80, want: 0},
		{rsi: 15, want: 0},
	}

	for _, tt := range tests {
		if got := scoreRSI(tt.rsi); got != tt.want {
			t.Errorf("scoreRSI(%.0f) = %.0f, want %.0f", tt.rsi, got, tt.want)
		}
	}
}

func TestScoreMACD(t *testing.T) {
	tests := []struct {
		name string
		ind  models.TechnicalIndicators
		want float64
	}{
		{
			name: "golden cross with positive histogram",
			ind:  models.TechnicalIndicators{MACD: 2, MACDSignal: 1, MACDHist: 1},
			want: 25,
		},
		{
			name: "golden cross only",
			ind:  models.TechnicalIndicators{MACD: 2, MACDSignal: 1, MACDHist: -0.5},
			want: 15,
		},
		{
			name: "dead cross",
			ind:  models.TechnicalIndicators{MACD: 1, MACDSignal: 2, MACDHist: -1},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreMACD(tt.ind); got != tt.want {
				t.Errorf("scoreMACD() = %.0f, want %.0f", got, tt.want)
			}
		})
	}
}

func TestDetermineTrend(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		ind   models.TechnicalIndicators
		want  string
	}{
		{
			name:  "all bullish",
			price: 110,
			ind: models.TechnicalIndicators{
				SMAShort: 105, SMALong: 100,
				MACD: 2, MACDSignal: 1, MACDHist: 1,
				BBMiddle: 100,
			},
			want: models.TrendUp,
		},
		{
			name:  "all bearish",
			price: 90,
			ind: models.TechnicalIndicators{
				SMAShort: 95, SMALong: 100,
				MACD: -2, MACDSignal: -1, MACDHist: -1,
				BBMiddle: 100,
			},
			want: models.TrendDown,
		},
		{
			name:  "mixed reads sideways",
			price: 100,
			ind: models.TechnicalIndicators{
				SMAShort: 105, SMALong: 95, // no stack either way
				MACD: 2, MACDSignal: 1, MACDHist: -1, // disagrees
				BBMiddle: 100, // at midline
			},
			want: models.TrendSideways,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := determineTrend(tt.price, tt.ind); got != tt.want {
				t.Errorf("determineTrend() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	analysisCfg, tradingCfg := testConfigs()
	a := New(analysisCfg, tradingCfg)

	candles := generateTestCandles(10, func(i int) models.Candle {
		return models.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	})

	if _, err := a.Analyze(candles, "KRW-BTC", "1m"); err == nil {
		t.Error("Analyze() with 10 candles succeeded, want error")
	}
}

func TestAnalyzeScoreBounds(t *testing.T) {
	analysisCfg, tradingCfg := testConfigs()
	a := New(analysisCfg, tradingCfg)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := generateTestCandles(100, func(i int) models.Candle {
		price := 100.0 + float64(i)*0.5
		return models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price + 1, Low: price - 1, Close: price + 0.3,
			Volume: 100 + float64(i),
		}
	})

	result, err := a.Analyze(candles, "KRW-BTC", "1m")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.TotalScore < 0 || result.TotalScore > 100 {
		t.Errorf("TotalScore = %.2f, want within [0, 100]", result.TotalScore)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		t.Errorf("Confidence = %.2f, want within [0, 1]", result.Confidence)
	}
	if result.SignalStrength < 0 || result.SignalStrength > 1 {
		t.Errorf("SignalStrength = %.2f, want within [0, 1]", result.SignalStrength)
	}
}

func TestRecommendRequiresScoreAndConfidence(t *testing.T) {
	analysisCfg, tradingCfg := testConfigs()
	a := New(analysisCfg, tradingCfg)

	result := &models.AnalysisResult{
		TotalScore:     80,
		Confidence:     0.5, // below floor
		SignalStrength: 0.9,
		TrendDirection: models.TrendUp,
	}
	a.recommend(result, 100)
	if result.RecommendedAction != models.ActionHold {
		t.Errorf("low confidence action = %s, want HOLD", result.RecommendedAction)
	}

	result = &models.AnalysisResult{
		TotalScore:     80,
		Confidence:     0.7,
		SignalStrength: 0.9,
		TrendDirection: models.TrendUp,
	}
	a.recommend(result, 100)
	if result.RecommendedAction != models.ActionBuy {
		t.Errorf("qualified signal action = %s, want BUY", result.RecommendedAction)
	}
	if result.StopLoss != 100*(1-tradingCfg.StopLossRatio) {
		t.Errorf("StopLoss = %.2f, want %.2f", result.StopLoss, 100*(1-tradingCfg.StopLossRatio))
	}
	if result.TakeProfit != 100*(1+tradingCfg.TakeProfitRatio) {
		t.Errorf("TakeProfit = %.2f, want %.2f", result.TakeProfit, 100*(1+tradingCfg.TakeProfitRatio))
	}
}

func TestSummarizeDominantAction(t *testing.T) {
	analysisCfg, tradingCfg := testConfigs()
	a := New(analysisCfg, tradingCfg)

	results := map[string]*models.AnalysisResult{
		"1m": {TotalScore: 80, RecommendedAction: models.ActionBuy},
		"3m": {TotalScore: 70, RecommendedAction: models.ActionBuy},
		"5m": {TotalScore: 40, RecommendedAction: models.ActionHold},
	}

	summary := a.Summarize("KRW-BTC", results)
	if summary.DominantAction != models.ActionBuy {
		t.Errorf("DominantAction = %s, want BUY", summary.DominantAction)
	}
	if summary.MaxScore != 80 {
		t.Errorf("MaxScore = %.0f, want 80", summary.MaxScore)
	}
	wantAvg := (80.0 + 70.0 + 40.0) / 3
	if summary.AvgScore != wantAvg {
		t.Errorf("AvgScore = %.2f, want %.2f", summary.AvgScore, wantAvg)
	}
}
