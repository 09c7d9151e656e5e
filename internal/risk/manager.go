package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/models"
)

// Hard limits independent of configuration.
const (
	maxTotalExposure       = 0.95 // of daily start capital
	maxSinglePosition      = 0.40
	maxVolatilityThreshold = 0.15 // daily volatility cap for new entries
	maxSpreadRatio         = 0.02
	minSignalConfidence    = 0.7
)

// Correlated market families for concentration checks.
var marketFamilies = map[string][]string{
	"BTC": {"KRW-BTC", "KRW-BCH", "KRW-BSV"},
	"ETH": {"KRW-ETH", "KRW-ETC", "KRW-EOS"},
}

// EventRecorder persists risk events. Optional; nil drops them.
type EventRecorder func(eventType, severity, description string)

// Manager enforces trading limits, computes portfolio risk metrics and
// drives the emergency circuit breaker.
type Manager struct {
	cfg    *config.TradingConfig
	market models.MarketData
	logger zerolog.Logger

	mu                sync.RWMutex
	dailyStartCapital float64
	currentCapital    float64
	emergencyMode     bool
	manualOverride    bool
	alerts            []models.RiskAlert
	profitHistory     []float64 // per-trade profit ratios, for drawdown

	recordEvent EventRecorder
}

// NewManager creates a Manager. market is used for volatility and spread
// lookups on signal validation.
func NewManager(cfg *config.TradingConfig, market models.MarketData, recorder EventRecorder) *Manager {
	return &Manager{
		cfg:               cfg,
		market:            market,
		logger:            log.With().Str("component", "risk").Logger(),
		dailyStartCapital: cfg.InitialCapital,
		currentCapital:    cfg.InitialCapital,
		recordEvent:       recorder,
	}
}

// SetCapital updates the current total capital estimate.
func (m *Manager) SetCapital(current float64) {
	m.mu.Lock()
	m.currentCapital = current
	m.mu.Unlock()
}

// RecordTrade appends a closed trade's profit ratio to the drawdown series.
func (m *Manager) RecordTrade(profitRatio float64) {
	m.mu.Lock()
	m.profitHistory = append(m.profitHistory, profitRatio)
	m.mu.Unlock()
}

// ValidateSignal runs the full gauntlet on a buy signal. Non-buy signals
// pass through. Returns pass plus a reason.
func (m *Manager) ValidateSignal(ctx context.Context, signal *models.StrategySignal, positions map[string]*models.Position) (bool, string) {
	if signal.Action != models.ActionBuy {
		return true, "not a buy signal"
	}

	m.mu.RLock()
	emergency := m.emergencyMode
	startCapital := m.dailyStartCapital
	m.mu.RUnlock()

	if emergency {
		return false, "emergency mode active, new entries suspended"
	}

	dailyPnLRatio := m.dailyPnLRatio()
	if dailyPnLRatio <= -m.cfg.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit breached: %.2f%%", dailyPnLRatio*100)
	}

	if len(positions) >= m.cfg.MaxPositions {
		return false, fmt.Sprintf("max positions reached: %d", len(positions))
	}

	exposure := currentExposure(positions)
	positionSize := startCapital * m.cfg.MaxCapitalPerCoin
	if startCapital > 0 && (exposure+positionSize)/startCapital > maxTotalExposure {
		return false, fmt.Sprintf("total exposure limit exceeded: %.0f KRW", exposure+positionSize)
	}

	if vol := m.volatilityRisk(ctx, signal.Market); vol > maxVolatilityThreshold {
		return false, fmt.Sprintf("volatility too high: %.2f%%", vol*100)
	}

	if reason := concentrationCheck(signal.Market, positions); reason != "" {
		return false, reason
	}

	if signal.Confidence < minSignalConfidence {
		return false, fmt.Sprintf("confidence too low: %.2f", signal.Confidence)
	}

	if spread := m.spreadRisk(ctx, signal.Market); spread > maxSpreadRatio {
		return false, fmt.Sprintf("spread too wide: %.2f%%", spread*100)
	}

	return true, "risk checks passed"
}

func (m *Manager) dailyPnLRatio() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dailyStartCapital <= 0 {
		return 0
	}
	return (m.currentCapital - m.dailyStartCapital) / m.dailyStartCapital
}

func currentExposure(positions map[string]*models.Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.CurrentValue
	}
	return total
}

// volatilityRisk estimates daily volatility from hourly candles.
func (m *Manager) volatilityRisk(ctx context.Context, market string) float64 {
	candles, err := m.market.GetOHLCV(ctx, market, "1h", 24)
	if err != nil || len(candles) < 10 {
		return 0.05 // default when data is thin
	}

	var returns []float64
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close > 0 {
			returns = append(returns, (candles[i].Close-candles[i-1].Close)/candles[i-1].Close)
		}
	}
	return stddev(returns) * math.Sqrt(24)
}

func (m *Manager) spreadRisk(ctx context.Context, market string) float64 {
	ob, err := m.market.GetOrderbook(ctx, market)
	if err != nil || ob == nil {
		return 0.01 // default
	}
	mid := (ob.BidPrice + ob.AskPrice) / 2
	if mid <= 0 {
		return 0.01
	}
	return (ob.AskPrice - ob.BidPrice) / mid
}

// concentrationCheck rejects duplicate markets and over-weighted correlated
// families.
func concentrationCheck(market string, positions map[string]*models.Position) string {
	for _, p := range positions {
		if p.Market == market {
			return fmt.Sprintf("already holding %s", market)
		}
	}

	for family, members := range marketFamilies {
		if !contains(members, market) {
			continue
		}
		held := 0
		for _, p := range positions {
			if contains(members, p.Market) {
				held++
			}
		}
		if held >= 2 {
			return fmt.Sprintf("%s family concentration risk", family)
		}
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// CheckPositionRisks scans open positions for loss and holding-time alerts.
func (m *Manager) CheckPositionRisks(positions map[string]*models.Position) []models.RiskAlert {
	now := time.Now().UTC()
	var alerts []models.RiskAlert

	for _, p := range positions {
		switch {
		case p.UnrealizedPnLRatio <= -m.cfg.MaxPositionLoss:
			alerts = append(alerts, models.RiskAlert{
				AlertID:        "pos_loss_" + shortID(p.PositionID),
				AlertType:      "POSITION_LOSS",
				Severity:       "HIGH",
				Message:        "position loss limit exceeded",
				Market:         p.Market,
				CurrentValue:   p.UnrealizedPnLRatio,
				Threshold:      -m.cfg.MaxPositionLoss,
				Recommendation: "close immediately",
				Timestamp:      now,
			})
		case p.UnrealizedPnLRatio <= -0.15:
			alerts = append(alerts, models.RiskAlert{
				AlertID:        "rapid_loss_" + shortID(p.PositionID),
				AlertType:      "POSITION_LOSS",
				Severity:       "MEDIUM",
				Message:        "rapid loss on position",
				Market:         p.Market,
				CurrentValue:   p.UnrealizedPnLRatio,
				Threshold:      -0.15,
				Recommendation: "consider stop loss",
				Timestamp:      now,
			})
		}

		if hours := p.HoldingHours(now); hours >= 24 && p.UnrealizedPnLRatio < -0.05 {
			alerts = append(alerts, models.RiskAlert{
				AlertID:        "long_hold_" + shortID(p.PositionID),
				AlertType:      "TIME_RISK",
				Severity:       "MEDIUM",
				Message:        "prolonged holding at a loss",
				Market:         p.Market,
				CurrentValue:   hours,
				Threshold:      24,
				Recommendation: "review for exit",
				Timestamp:      now,
			})
		}
	}

	m.mu.Lock()
	m.alerts = alerts
	m.mu.Unlock()
	return alerts
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// CalculateRiskMetrics builds the full portfolio risk snapshot.
func (m *Manager) CalculateRiskMetrics(ctx context.Context, positions map[string]*models.Position) models.RiskMetrics {
	m.mu.RLock()
	startCapital := m.dailyStartCapital
	m.mu.RUnlock()

	dailyPnLRatio := m.dailyPnLRatio()
	maxDrawdown := m.maxDrawdown()
	exposure := currentExposure(positions)

	exposureRatio := 0.0
	largestRatio := 0.0
	if startCapital > 0 {
		exposureRatio = exposure / startCapital
		var largest float64
		for _, p := range positions {
			if p.CurrentValue > largest {
				largest = p.CurrentValue
			}
		}
		largestRatio = largest / startCapital
	}

	var volSum float64
	for _, p := range positions {
		volSum += m.volatilityRisk(ctx, p.Market)
	}
	avgVolatility := 0.0
	if len(positions) > 0 {
		avgVolatility = volSum / float64(len(positions))
	}

	concentration := herfindahlConcentration(positions)

	score := overallRiskScore(dailyPnLRatio, maxDrawdown, exposureRatio,
		largestRatio, avgVolatility, concentration)

	return models.RiskMetrics{
		DailyPnL:             startCapital * dailyPnLRatio,
		DailyPnLRatio:        dailyPnLRatio,
		MaxDrawdown:          maxDrawdown,
		CurrentExposure:      exposure,
		PositionCount:        len(positions),
		LargestPositionRatio: largestRatio,
		VolatilityRisk:       avgVolatility,
		ConcentrationRisk:    concentration,
		OverallRiskScore:     score,
		RiskLevel:            riskLevel(score),
	}
}

// maxDrawdown walks the cumulative profit series for its deepest fall.
func (m *Manager) maxDrawdown() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.profitHistory) == 0 {
		return 0
	}

	var cumulative, peak, maxDD float64
	peak = m.profitHistory[0]
	for _, r := range m.profitHistory {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// herfindahlConcentration normalizes the Herfindahl index of position
// weights to 0-1.
func herfindahlConcentration(positions map[string]*models.Position) float64 {
	if len(positions) == 0 {
		return 0
	}

	var total float64
	for _, p := range positions {
		total += p.CurrentValue
	}
	if total <= 0 {
		return 0
	}

	var hhi float64
	for _, p := range positions {
		w := p.CurrentValue / total
		hhi += w * w
	}

	n := float64(len(positions))
	minHHI := 1 / n
	if 1-minHHI <= 0 {
		return 0
	}
	normalized := (hhi - minHHI) / (1 - minHHI)
	return math.Min(math.Max(normalized, 0), 1)
}

// overallRiskScore weights the six risk components into a 0-100 score.
// Daily loss and drawdown carry the most weight.
func overallRiskScore(dailyPnLRatio, maxDrawdown, exposureRatio, largestRatio, volatility, concentration float64) float64 {
	dailyLossScore := 0.0
	if dailyPnLRatio < 0 {
		dailyLossScore = math.Min(math.Abs(dailyPnLRatio)*1000, 100)
	}

	scores := []float64{
		dailyLossScore,
		math.Min(maxDrawdown*500, 100),
		math.Min(exposureRatio*100, 100),
		math.Min(largestRatio*200, 100),
		math.Min(volatility*500, 100),
		concentration * 100,
	}
	weights := []float64{0.3, 0.25, 0.15, 0.1, 0.1, 0.1}

	var overall float64
	for i, s := range scores {
		overall += s * weights[i]
	}
	return math.Min(math.Max(overall, 0), 100)
}

func riskLevel(score float64) string {
	switch {
	case score >= 80:
		return models.RiskCritical
	case score >= 60:
		return models.RiskHigh
	case score >= 40:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// ShouldEnterEmergencyMode checks the circuit-breaker conditions.
func (m *Manager) ShouldEnterEmergencyMode(metrics models.RiskMetrics) bool {
	m.mu.RLock()
	alertCount := len(m.alerts)
	m.mu.RUnlock()

	return metrics.DailyPnLRatio <= -m.cfg.MaxDailyLoss ||
		metrics.OverallRiskScore >= 90 ||
		metrics.MaxDrawdown >= 0.25 ||
		alertCount >= 5
}

// EnterEmergencyMode trips the circuit breaker.
func (m *Manager) EnterEmergencyMode(reason string) {
	m.mu.Lock()
	already := m.emergencyMode
	m.emergencyMode = true
	m.mu.Unlock()

	if already {
		return
	}
	m.logger.Error().Str("reason", reason).Msg("emergency mode entered")
	if m.recordEvent != nil {
		m.recordEvent("EMERGENCY_ENTER", "CRITICAL", reason)
	}
}

// ExitEmergencyMode releases the circuit breaker.
func (m *Manager) ExitEmergencyMode(reason string) {
	m.mu.Lock()
	was := m.emergencyMode
	m.emergencyMode = false
	m.mu.Unlock()

	if !was {
		return
	}
	m.logger.Info().Str("reason", reason).Msg("emergency mode exited")
	if m.recordEvent != nil {
		m.recordEvent("EMERGENCY_EXIT", "INFO", reason)
	}
}

// EmergencyMode reports the circuit breaker state.
func (m *Manager) EmergencyMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyMode
}

// AdjustPositionSize scales the base position size by risk level, signal
// confidence, volatility and the day's PnL, clamped to the order bounds.
func (m *Manager) AdjustPositionSize(signal *models.StrategySignal, metrics models.RiskMetrics) float64 {
	m.mu.RLock()
	startCapital := m.dailyStartCapital
	m.mu.RUnlock()

	baseSize := startCapital * m.cfg.MaxCapitalPerCoin

	riskMultiplier := map[string]float64{
		models.RiskLow:      1.0,
		models.RiskMedium:   0.8,
		models.RiskHigh:     0.5,
		models.RiskCritical: 0.2,
	}[metrics.RiskLevel]
	if riskMultiplier == 0 {
		riskMultiplier = 0.5
	}

	volatilityMultiplier := math.Max(0.3, 1-metrics.VolatilityRisk*2)

	dailyLossMultiplier := 1.0
	if metrics.DailyPnLRatio < -0.02 {
		dailyLossMultiplier = 0.5
	} else if metrics.DailyPnLRatio < 0 {
		dailyLossMultiplier = 0.8
	}

	adjusted := baseSize * riskMultiplier * signal.Confidence * volatilityMultiplier * dailyLossMultiplier

	maxSize := startCapital * maxSinglePosition
	final := math.Max(m.cfg.MinOrderAmount, math.Min(adjusted, maxSize))

	m.logger.Info().Float64("base", baseSize).Float64("final", final).
		Float64("risk_multiplier", riskMultiplier).Float64("confidence", signal.Confidence).
		Msg("position size adjusted")
	return final
}

// ShouldForceClose decides whether a position must be closed now,
// returning the reason.
func (m *Manager) ShouldForceClose(ctx context.Context, p *models.Position, metrics models.RiskMetrics) (string, bool) {
	if m.EmergencyMode() {
		return "emergency mode, closing all positions", true
	}

	if p.UnrealizedPnLRatio <= -m.cfg.MaxPositionLoss {
		return fmt.Sprintf("position loss limit exceeded (%.2f%%)", p.UnrealizedPnLRatio*100), true
	}

	if p.UnrealizedPnLRatio <= -0.20 {
		return fmt.Sprintf("extreme loss (%.2f%%)", p.UnrealizedPnLRatio*100), true
	}

	if vol := m.volatilityRisk(ctx, p.Market); vol > 0.15 && p.UnrealizedPnLRatio <= -0.10 {
		return fmt.Sprintf("high volatility with loss (%.2f%% vol, %.2f%% loss)",
			vol*100, p.UnrealizedPnLRatio*100), true
	}

	if metrics.DailyPnLRatio <= -m.cfg.MaxDailyLoss*0.8 && p.UnrealizedPnLRatio <= -0.08 {
		return fmt.Sprintf("near daily limit, shedding losing position (%.2f%%)",
			p.UnrealizedPnLRatio*100), true
	}

	return "", false
}

// ResetDaily reinitializes the daily capital baseline and clears alerts.
// Emergency mode lifts unless manually held.
func (m *Manager) ResetDaily(startCapital float64) {
	m.mu.Lock()
	m.dailyStartCapital = startCapital
	m.currentCapital = startCapital
	m.alerts = nil
	override := m.manualOverride
	m.mu.Unlock()

	if m.EmergencyMode() && !override {
		m.ExitEmergencyMode("daily reset")
	}
	m.logger.Info().Float64("capital", startCapital).Msg("daily risk limits reset")
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	meanVal := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - meanVal) * (v - meanVal)
	}
	return math.Sqrt(variance / float64(len(values)))
}
