package analyze

import (
	"math"

	"github.com/coinbot-kr/coinbot/models"
)

// determineTrend votes across moving averages, MACD and the Bollinger
// midline; majority wins, ties are sideways.
func determineTrend(currentPrice float64, ind models.TechnicalIndicators) string {
	var conditions []string

	switch {
	case currentPrice > ind.SMAShort && ind.SMAShort > ind.SMALong:
		conditions = append(conditions, models.TrendUp)
	case currentPrice < ind.SMAShort && ind.SMAShort < ind.SMALong:
		conditions = append(conditions, models.TrendDown)
	default:
		conditions = append(conditions, models.TrendSideways)
	}

	switch {
	case ind.MACD > ind.MACDSignal && ind.MACDHist > 0:
		conditions = append(conditions, models.TrendUp)
	case ind.MACD < ind.MACDSignal && ind.MACDHist < 0:
		conditions = append(conditions, models.TrendDown)
	default:
		conditions = append(conditions, models.TrendSideways)
	}

	switch {
	case currentPrice > ind.BBMiddle:
		conditions = append(conditions, models.TrendUp)
	case currentPrice < ind.BBMiddle:
		conditions = append(conditions, models.TrendDown)
	default:
		conditions = append(conditions, models.TrendSideways)
	}

	up, down := 0, 0
	for _, c := range conditions {
		switch c {
		case models.TrendUp:
			up++
		case models.TrendDown:
			down++
		}
	}

	switch {
	case up > down:
		return models.TrendUp
	case down > up:
		return models.TrendDown
	default:
		return models.TrendSideways
	}
}

// signalStrength blends RSI displacement, MACD histogram size and volume
// surge into a 0.0-1.0 value.
func signalStrength(candles []models.Candle, ind models.TechnicalIndicators) float64 {
	var factors []float64

	factors = append(factors, math.Abs(ind.RSI-50)/50)

	macdStrength := math.Abs(ind.MACDHist) / (math.Abs(ind.MACD) + 0.001)
	factors = append(factors, math.Min(macdStrength, 1.0))

	var total, recent float64
	for _, c := range candles {
		total += c.Volume
	}
	n := 5
	if len(candles) < n {
		n = len(candles)
	}
	for i := len(candles) - n; i < len(candles); i++ {
		recent += candles[i].Volume
	}
	if total > 0 && len(candles) > 0 {
		avgAll := total / float64(len(candles))
		avgRecent := recent / float64(n)
		factors = append(factors, math.Min(avgRecent/avgAll/2, 1.0))
	}

	return mean(factors)
}

// confidence blends data sufficiency, indicator consistency and market
// stability into a 0.0-1.0 value.
func confidence(candles []models.Candle, ind models.TechnicalIndicators) float64 {
	var factors []float64

	factors = append(factors, math.Min(float64(len(candles))/100, 1.0))
	factors = append(factors, trendConsistency(ind))

	vol := stddev(candleReturns(candles))
	factors = append(factors, math.Max(0, 1-(vol*10)))

	return mean(factors)
}

// trendConsistency checks whether RSI and MACD agree on direction.
func trendConsistency(ind models.TechnicalIndicators) float64 {
	var trends []string

	switch {
	case ind.RSI < 40:
		trends = append(trends, models.TrendUp)
	case ind.RSI > 60:
		trends = append(trends, models.TrendDown)
	default:
		trends = append(trends, "NEUTRAL")
	}

	if ind.MACD > ind.MACDSignal {
		trends = append(trends, models.TrendUp)
	} else {
		trends = append(trends, models.TrendDown)
	}

	up, down := 0, 0
	for _, t := range trends {
		switch t {
		case models.TrendUp:
			up++
		case models.TrendDown:
			down++
		}
	}
	if up != down {
		return 0.8
	}
	return 0.4
}
