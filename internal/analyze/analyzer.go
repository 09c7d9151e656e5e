package analyze

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/calculate"
	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/models"
)

// Analyzer turns candle series into scored analysis results with a
// BUY/SELL/HOLD recommendation.
type Analyzer struct {
	analysis *config.AnalysisConfig
	trading  *config.TradingConfig
	logger   zerolog.Logger
}

// New creates an Analyzer with the given settings.
func New(analysis *config.AnalysisConfig, trading *config.TradingConfig) *Analyzer {
	return &Analyzer{
		analysis: analysis,
		trading:  trading,
		logger:   log.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze evaluates one market on one timeframe.
func (a *Analyzer) Analyze(candles []models.Candle, market, timeframe string) (*models.AnalysisResult, error) {
	if len(candles) < 30 {
		return nil, fmt.Errorf("insufficient candles for %s/%s: %d", market, timeframe, len(candles))
	}

	indicators := calculate.CalculateAllIndicators(candles, a.analysis)
	currentPrice := candles[len(candles)-1].Close

	result := &models.AnalysisResult{
		Market:     market,
		Timeframe:  timeframe,
		Timestamp:  time.Now().UTC(),
		Indicators: indicators,
	}

	result.RSIScore = scoreRSI(indicators.RSI)
	result.MACDScore = scoreMACD(indicators)
	result.VolumeScore = scoreVolume(candles, indicators.VolumeSMA)
	result.MomentumScore = scoreMomentum(candles, indicators)
	result.VolatilityScore = scoreVolatility(candles)
	result.TotalScore = clamp(result.RSIScore+result.MACDScore+result.VolumeScore+
		result.MomentumScore+result.VolatilityScore, 0, 100)

	result.TrendDirection = determineTrend(currentPrice, indicators)
	result.SignalStrength = signalStrength(candles, indicators)
	result.Confidence = confidence(candles, indicators)

	a.recommend(result, currentPrice)

	a.logger.Debug().Str("market", market).Str("timeframe", timeframe).
		Float64("score", result.TotalScore).Float64("confidence", result.Confidence).
		Str("action", result.RecommendedAction).Msg("analysis complete")
	return result, nil
}

// recommend fills the recommendation fields. A signal requires both the
// score threshold and a 0.6 confidence floor, plus signal strength >= 0.5
// in the trend direction.
func (a *Analyzer) recommend(result *models.AnalysisResult, currentPrice float64) {
	result.RecommendedAction = models.ActionHold

	if result.TotalScore < a.analysis.MinScore || result.Confidence < 0.6 {
		return
	}
	if result.SignalStrength < 0.5 {
		return
	}

	switch result.TrendDirection {
	case models.TrendUp:
		result.RecommendedAction = models.ActionBuy
		result.EntryPrice = currentPrice
		result.StopLoss = currentPrice * (1 - a.trading.StopLossRatio)
		result.TakeProfit = currentPrice * (1 + a.trading.TakeProfitRatio)
	case models.TrendDown:
		result.RecommendedAction = models.ActionSell
		result.EntryPrice = currentPrice
		result.StopLoss = currentPrice * (1 + a.trading.StopLossRatio)
		result.TakeProfit = currentPrice * (1 - a.trading.TakeProfitRatio)
	}
}

// BatchAnalyze runs Analyze across the timeframes of one market. Failed
// timeframes are skipped.
func (a *Analyzer) BatchAnalyze(data map[string][]models.Candle, market string) map[string]*models.AnalysisResult {
	results := make(map[string]*models.AnalysisResult, len(data))
	for timeframe, candles := range data {
		result, err := a.Analyze(candles, market, timeframe)
		if err != nil {
			a.logger.Warn().Err(err).Str("market", market).Str("timeframe", timeframe).
				Msg("timeframe analysis failed")
			continue
		}
		results[timeframe] = result
	}
	return results
}

// Summary condenses multi-timeframe results into average score and a
// dominant action.
type Summary struct {
	Market         string  `json:"market"`
	AvgScore       float64 `json:"avg_score"`
	MaxScore       float64 `json:"max_score"`
	DominantAction string  `json:"dominant_action"`
	Timeframes     int     `json:"timeframes"`
}

// Summarize aggregates per-timeframe results for a market.
func (a *Analyzer) Summarize(market string, results map[string]*models.AnalysisResult) *Summary {
	if len(results) == 0 {
		return &Summary{Market: market, DominantAction: models.ActionHold}
	}

	s := &Summary{Market: market, Timeframes: len(results)}
	actions := map[string]int{}
	for _, r := range results {
		s.AvgScore += r.TotalScore
		if r.TotalScore > s.MaxScore {
			s.MaxScore = r.TotalScore
		}
		actions[r.RecommendedAction]++
	}
	s.AvgScore /= float64(len(results))

	s.DominantAction = models.ActionHold
	best := 0
	for action, n := range actions {
		if n > best || (n == best && action != models.ActionHold && s.DominantAction == models.ActionHold) {
			best = n
			s.DominantAction = action
		}
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
