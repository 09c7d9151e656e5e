package anomaly

import (
	"fmt"
	"math"

	"github.com/coinbot-kr/coinbot/models"
)

// Anomaly types, roughly ordered by how often they fire on KRW markets.
const (
	TypePriceSpike         = "PRICE_SPIKE"
	TypeVolumeSpike        = "VOLUME_SPIKE"
	TypePriceGap           = "PRICE_GAP"
	TypeVolatilityBreakout = "VOLATILITY_BREAKOUT"
)

// Detection describes unusual behavior in the most recent candle of a
// series. Score is 0 to 1; combined anomalies push it toward 1.
type Detection struct {
	Detected bool    `json:"detected"`
	Type     string  `json:"type,omitempty"`
	Score    float64 `json:"score"`
	Detail   string  `json:"detail,omitempty"`
}

// Detect inspects the latest candle against its recent baseline. It needs
// at least 20 candles; shorter series never flag.
func Detect(candles []models.Candle) Detection {
	if len(candles) < 20 {
		return Detection{}
	}

	current := candles[len(candles)-1]
	previous := candles[len(candles)-2]

	atr10 := atr(candles, 10)
	atr50 := atr(candles, min(50, len(candles)-1))
	if atr10 <= 0 || atr50 <= 0 {
		return Detection{}
	}

	var d Detection

	// Price spike relative to the recent true range.
	priceMove := math.Abs(current.Close-previous.Close) / atr10
	if priceMove > 3.0 {
		d = Detection{
			Detected: true,
			Type:     TypePriceSpike,
			Score:    math.Min(priceMove/3.0, 1.0),
			Detail:   fmt.Sprintf("price moved %.1fx the recent range", priceMove),
		}
	}

	// Volume spike against the trailing 10-candle average.
	if avg := averageVolume(candles, 10); avg > 0 {
		volumeRatio := current.Volume / avg
		if volumeRatio > 3.0 {
			if d.Detected {
				d.Score = math.Min(d.Score+0.2, 1.0)
				d.Type += "+" + TypeVolumeSpike
			} else {
				d = Detection{
					Detected: true,
					Type:     TypeVolumeSpike,
					Score:    math.Min(volumeRatio/5.0, 1.0),
					Detail:   fmt.Sprintf("volume %.1fx the trailing average", volumeRatio),
				}
			}
		}
	}

	// Gap between the previous close and the current candle's range.
	var gap float64
	switch {
	case current.Low > previous.Close:
		gap = current.Low - previous.Close
	case current.High < previous.Close:
		gap = previous.Close - current.High
	}
	if gapRatio := gap / atr10; gapRatio > 1.0 {
		if d.Detected {
			d.Score = math.Min(d.Score+0.15, 1.0)
			d.Type += "+" + TypePriceGap
		} else {
			d = Detection{
				Detected: true,
				Type:     TypePriceGap,
				Score:    math.Min(gapRatio/2.0, 1.0),
				Detail:   fmt.Sprintf("price gapped %.1fx the recent range", gapRatio),
			}
		}
	}

	// Short-term volatility expanding well past its baseline.
	if volRatio := atr10 / atr50; volRatio > 2.5 {
		if d.Detected {
			d.Score = math.Min(d.Score+0.1, 1.0)
		} else {
			d = Detection{
				Detected: true,
				Type:     TypeVolatilityBreakout,
				Score:    math.Min(volRatio/4.0, 1.0),
				Detail:   fmt.Sprintf("volatility %.1fx the baseline", volRatio),
			}
		}
	}

	return d
}

// atr is the average true range over the last period candles.
func atr(candles []models.Candle, period int) float64 {
	if period < 1 || len(candles) < period+1 {
		return 0
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr := candles[i].High - candles[i].Low
		tr = math.Max(tr, math.Abs(candles[i].High-prevClose))
		tr = math.Max(tr, math.Abs(candles[i].Low-prevClose))
		sum += tr
	}
	return sum / float64(period)
}

// averageVolume is the mean volume of the period candles preceding the
// current one.
func averageVolume(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	var sum float64
	for i := len(candles) - period - 1; i < len(candles)-1; i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}
