package models

// TimeframeMinutes maps a timeframe label to its candle unit in minutes.
// Unknown labels fall back to 1 minute.
func TimeframeMinutes(timeframe string) int {
	switch timeframe {
	case "1m":
		return 1
	case "3m":
		return 3
	case "5m":
		return 5
	case "15m":
		return 15
	case "30m":
		return 30
	case "1h":
		return 60
	case "4h":
		return 240
	case "1d":
		return 24 * 60
	default:
		return 1
	}
}

// CandlesPerDay returns how many candles of the given timeframe fit in a day.
func CandlesPerDay(timeframe string) int {
	return 24 * 60 / TimeframeMinutes(timeframe)
}
