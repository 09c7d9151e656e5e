package calculate

import (
	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/models"
)

// CalculateAllIndicators computes the full indicator set for a candle series.
func CalculateAllIndicators(candles []models.Candle, cfg *config.AnalysisConfig) models.TechnicalIndicators {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	macd, signal, hist := calculateMACD(candles, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	bbUpper, bbMiddle, bbLower := calculateBollingerBands(candles, cfg.BBPeriod, cfg.BBStdDev)
	stochK, stochD := calculateStochastic(candles, cfg.StochKPeriod, cfg.StochDPeriod)

	return models.TechnicalIndicators{
		RSI:        calculateRSI(candles, cfg.RSIPeriod),
		MACD:       macd,
		MACDSignal: signal,
		MACDHist:   hist,
		SMAShort:   calculateSMAFromPrices(closes, cfg.SMAShort),
		SMALong:    calculateSMAFromPrices(closes, cfg.SMALong),
		EMAShort:   calculateEMAFromPrices(closes, cfg.EMAShort),
		EMALong:    calculateEMAFromPrices(closes, cfg.EMALong),
		BBUpper:    bbUpper,
		BBMiddle:   bbMiddle,
		BBLower:    bbLower,
		VolumeSMA:  calculateSMAFromPrices(volumes, cfg.VolumePeriod),
		StochK:     stochK,
		StochD:     stochD,
	}
}
