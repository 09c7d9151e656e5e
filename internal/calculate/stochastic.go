package calculate

import "github.com/coinbot-kr/coinbot/models"

func calculateStochastic(candles []models.Candle, kPeriod, dPeriod int) (float64, float64) {
	if len(candles) < kPeriod {
		return 50.0, 50.0 // Default values if not enough data
	}

	k := stochasticK(candles, len(candles)-1, kPeriod)

	// %D is the simple moving average of the last dPeriod %K values
	count := dPeriod
	if count > len(candles)-kPeriod+1 {
		count = len(candles) - kPeriod + 1
	}
	if count < 1 {
		count = 1
	}

	var kSum float64
	for i := 0; i < count; i++ {
		kSum += stochasticK(candles, len(candles)-1-i, kPeriod)
	}
	d := kSum / float64(count)

	return k, d
}

// stochasticK computes %K at candle index end over a kPeriod lookback.
func stochasticK(candles []models.Candle, end, kPeriod int) float64 {
	start := end - kPeriod + 1
	if start < 0 {
		start = 0
	}

	highest := candles[start].High
	lowest := candles[start].Low
	for i := start + 1; i <= end; i++ {
		if candles[i].High > highest {
			highest = candles[i].High
		}
		if candles[i].Low < lowest {
			lowest = candles[i].Low
		}
	}

	if highest-lowest <= 0 {
		return 50.0 // If no range, default to middle
	}
	return ((candles[end].Close - lowest) / (highest - lowest)) * 100
}
