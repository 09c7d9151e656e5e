package analyze

import (
	"math"

	"github.com/coinbot-kr/coinbot/models"
)

// scoreRSI awards up to 25 points, favoring the pullback buy zone.
func scoreRSI(rsi float64) float64 {
	switch {
	case rsi >= 20 && rsi <= 35:
		return 25
	case rsi > 35 && rsi <= 45:
		return 20
	case rsi > 45 && rsi <= 55:
		return 10
	case rsi > 55 && rsi <= 70:
		return 5
	default:
		return 0
	}
}

// scoreMACD awards up to 25 points: 15 for a golden cross, 10 for a
// positive histogram.
func scoreMACD(ind models.TechnicalIndicators) float64 {
	score := 0.0
	if ind.MACD > ind.MACDSignal {
		score += 15
	}
	if ind.MACDHist > 0 {
		score += 10
	}
	return math.Min(score, 25)
}

// scoreVolume awards up to 20 points by recent volume vs its average.
func scoreVolume(candles []models.Candle, volumeSMA float64) float64 {
	if volumeSMA <= 0 {
		return 0
	}

	n := 5
	if len(candles) < n {
		n = len(candles)
	}
	var recent float64
	for i := len(candles) - n; i < len(candles); i++ {
		recent += candles[i].Volume
	}
	ratio := (recent / float64(n)) / volumeSMA

	switch {
	case ratio >= 2.0:
		return 20
	case ratio >= 1.5:
		return 15
	case ratio >= 1.2:
		return 10
	case ratio >= 0.8:
		return 5
	default:
		return 0
	}
}

// scoreMomentum awards up to 15 points for a bullish MA stack and recent
// price advance.
func scoreMomentum(candles []models.Candle, ind models.TechnicalIndicators) float64 {
	score := 0.0
	currentPrice := candles[len(candles)-1].Close

	if currentPrice > ind.SMAShort && ind.SMAShort > ind.SMALong {
		score += 10
	} else if currentPrice > ind.SMAShort {
		score += 5
	}

	if len(candles) >= 5 {
		prev := candles[len(candles)-5].Close
		if prev > 0 {
			change := (currentPrice - prev) / prev
			if change > 0.02 {
				score += 5
			} else if change > 0 {
				score += 2
			}
		}
	}
	return math.Min(score, 15)
}

// scoreVolatility awards up to 15 points, preferring moderate volatility
// over both dead and violent markets.
func scoreVolatility(candles []models.Candle) float64 {
	vol := recentVolatility(candles, 10) * 100

	switch {
	case vol >= 1.0 && vol <= 3.0:
		return 15
	case vol > 3.0 && vol <= 5.0:
		return 10
	case vol >= 0.5 && vol < 1.0:
		return 5
	default:
		return 0
	}
}

// recentVolatility is the standard deviation of returns over the last n bars.
func recentVolatility(candles []models.Candle, n int) float64 {
	returns := candleReturns(candles)
	if len(returns) == 0 {
		return 0
	}
	if len(returns) > n {
		returns = returns[len(returns)-n:]
	}
	return stddev(returns)
}

func candleReturns(candles []models.Candle) []float64 {
	var returns []float64
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close > 0 {
			returns = append(returns, (candles[i].Close-candles[i-1].Close)/candles[i-1].Close)
		}
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}
