package strategy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/models"
)

// Engine holds the live strategy set, generates signals from analysis
// results and adapts strategies from trade outcomes.
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]*Strategy
	templates  map[string]template

	marketCondition  string
	marketVolatility float64

	logger zerolog.Logger
}

// NewEngine creates an Engine seeded with one strategy per template.
func NewEngine() *Engine {
	e := &Engine{
		strategies:      make(map[string]*Strategy),
		templates:       strategyTemplates(),
		marketCondition: "NEUTRAL",
		logger:          log.With().Str("component", "strategy").Logger(),
	}
	e.createInitialStrategies()
	return e
}

func (e *Engine) createInitialStrategies() {
	now := time.Now().UTC()
	for strategyType, tpl := range e.templates {
		s := &Strategy{
			ID:        uuid.NewString(),
			Name:      "base_" + strategyType,
			Type:      strategyType,
			Entry:     tpl.entry,
			Exit:      tpl.exit,
			CreatedAt: now,
			LastUsed:  now,
			IsActive:  true,
		}
		e.strategies[s.ID] = s
	}
	e.logger.Info().Int("count", len(e.strategies)).Msg("initial strategies created")
}

// combined is the weighted merge of multi-timeframe analysis results.
type combined struct {
	avgScore       float64
	avgConfidence  float64
	dominantTrend  string
	dominantAction string
	rsi            float64
	macd           float64
	macdSignal     float64
	macdHist       float64
	consistent     bool
}

// timeframe weights favor the shortest bars
var timeframeWeights = map[string]float64{
	"1m": 0.5,
	"3m": 0.3,
	"5m": 0.2,
}

func combineResults(results map[string]*models.AnalysisResult) *combined {
	if len(results) == 0 {
		return nil
	}

	var totalWeight float64
	c := &combined{}
	trendVotes := map[string]int{}
	actionVotes := map[string]int{}
	trendSet := map[string]bool{}

	for timeframe, r := range results {
		weight, ok := timeframeWeights[timeframe]
		if !ok {
			weight = 0.1
		}

		c.avgScore += r.TotalScore * weight
		c.avgConfidence += r.Confidence * weight
		c.rsi += r.Indicators.RSI * weight
		c.macd += r.Indicators.MACD * weight
		c.macdSignal += r.Indicators.MACDSignal * weight
		c.macdHist += r.Indicators.MACDHist * weight
		totalWeight += weight

		trendVotes[r.TrendDirection]++
		actionVotes[r.RecommendedAction]++
		trendSet[r.TrendDirection] = true
	}

	if totalWeight > 0 {
		c.avgScore /= totalWeight
		c.avgConfidence /= totalWeight
		c.rsi /= totalWeight
		c.macd /= totalWeight
		c.macdSignal /= totalWeight
		c.macdHist /= totalWeight
	}

	c.dominantTrend = majority(trendVotes, models.TrendSideways)
	c.dominantAction = majority(actionVotes, models.ActionHold)
	c.consistent = len(trendSet) == 1
	return c
}

func majority(votes map[string]int, fallback string) string {
	best, bestN := fallback, 0
	for k, n := range votes {
		if n > bestN {
			best, bestN = k, n
		}
	}
	return best
}

// GenerateSignals evaluates every active strategy against the combined
// multi-timeframe analysis of one market. Signals come back ordered by
// strategy performance score.
func (e *Engine) GenerateSignals(results map[string]*models.AnalysisResult, market string, currentPrice float64) []models.StrategySignal {
	c := combineResults(results)
	if c == nil || currentPrice <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	type scored struct {
		signal models.StrategySignal
		score  float64
	}
	var candidates []scored

	for _, s := range e.strategies {
		if !s.IsActive {
			continue
		}
		if !e.checkEntry(s, c) {
			continue
		}
		s.LastUsed = time.Now().UTC()
		candidates = append(candidates, scored{
			signal: e.buildSignal(s, c, market, currentPrice),
			score:  s.PerformanceScore,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	signals := make([]models.StrategySignal, 0, len(candidates))
	for _, cand := range candidates {
		signals = append(signals, cand.signal)
	}

	if len(signals) > 0 {
		e.logger.Debug().Str("market", market).Int("signals", len(signals)).
			Float64("score", c.avgScore).Msg("signals generated")
	}
	return signals
}

func (e *Engine) checkEntry(s *Strategy, c *combined) bool {
	if c.avgScore < s.Entry.MinScore {
		return false
	}
	minConfidence := s.Entry.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.4
	}
	if c.avgConfidence < minConfidence {
		return false
	}
	return e.checkTypeConditions(s, c)
}

func (e *Engine) checkTypeConditions(s *Strategy, c *combined) bool {
	switch s.Type {
	case TypeMomentum:
		inRange := c.rsi >= s.Entry.RSILow && c.rsi <= s.Entry.RSIHigh
		return inRange && c.dominantTrend == models.TrendUp
	case TypeTrend:
		return c.avgConfidence >= s.Entry.TrendStrength &&
			c.consistent &&
			c.dominantTrend == models.TrendUp
	case TypeMeanReversion:
		extreme := c.rsi <= 30 || c.rsi >= 70
		return extreme && c.dominantTrend != models.TrendSideways
	case TypeScalping:
		return c.avgScore >= s.Entry.MinScore && c.avgConfidence >= 0.8
	default:
		return true
	}
}

func (e *Engine) buildSignal(s *Strategy, c *combined, market string, currentPrice float64) models.StrategySignal {
	action := c.dominantAction
	if action == models.ActionHold && c.dominantTrend == models.TrendUp {
		action = models.ActionBuy
	}

	return models.StrategySignal{
		StrategyID:     s.ID,
		Market:         market,
		Action:         action,
		Confidence:     c.avgConfidence,
		EntryPrice:     currentPrice,
		StopLoss:       currentPrice * (1 - s.Exit.StopLoss),
		TakeProfit:     currentPrice * (1 + s.Exit.ProfitTarget),
		TimeLimitHours: s.Exit.TimeLimitHours,
		Timeframe:      "combined",
		Reasoning: fmt.Sprintf("%s strategy: score %.1f, confidence %.2f, trend %s",
			s.Type, c.avgScore, c.avgConfidence, c.dominantTrend),
		Timestamp: time.Now().UTC(),
	}
}

// Get returns a strategy by id.
func (e *Engine) Get(id string) (*Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[id]
	return s, ok
}

// UpdatePerformance records a completed trade against its strategy and
// adapts the strategy's parameters.
func (e *Engine) UpdatePerformance(strategyID string, trade *models.TradeResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.strategies[strategyID]
	if !ok {
		e.logger.Warn().Str("strategy_id", strategyID).Msg("unknown strategy for trade result")
		return
	}

	s.TotalTrades++
	s.LastUsed = time.Now().UTC()
	s.TotalProfit += trade.ProfitRatio

	if trade.ProfitRatio > 0 {
		s.WinningTrades++
		s.SuccessStreak++
		s.FailureStreak = 0
	} else {
		s.SuccessStreak = 0
		s.FailureStreak++
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	s.AvgProfit = s.TotalProfit / float64(s.TotalTrades)
	if trade.ProfitRatio < s.MaxDrawdown {
		s.MaxDrawdown = trade.ProfitRatio
	}

	s.PerformanceScore = performanceScore(s)
	e.adapt(s)

	e.logger.Info().Str("strategy", s.Name).
		Float64("win_rate", s.WinRate).Float64("avg_profit", s.AvgProfit).
		Float64("performance", s.PerformanceScore).Msg("strategy performance updated")
}

// performanceScore combines win rate, average profit, sample size, streaks
// and drawdown into a 0-2 score.
func performanceScore(s *Strategy) float64 {
	if s.TotalTrades == 0 {
		return 0
	}

	base := s.WinRate * (1 + s.AvgProfit)

	tradeWeight := float64(s.TotalTrades) / 20
	if tradeWeight > 1 {
		tradeWeight = 1
	}

	streakFactor := 1.0
	if s.SuccessStreak >= 3 {
		streakFactor = 1.1
	} else if s.FailureStreak >= 3 {
		streakFactor = 0.9
	}

	drawdownPenalty := 1 + s.MaxDrawdown // drawdown is negative
	if drawdownPenalty < 0 {
		drawdownPenalty = 0
	}

	score := base * tradeWeight * streakFactor * drawdownPenalty
	if score < 0 {
		return 0
	}
	if score > 2 {
		return 2
	}
	return score
}

// adapt tightens parameters on failure streaks, loosens on success streaks,
// and deactivates persistent losers.
func (e *Engine) adapt(s *Strategy) {
	s.AdaptationCount++

	if s.FailureStreak >= 3 {
		s.Entry.MinScore = minFloat(95, s.Entry.MinScore+5)
		s.Exit.StopLoss = minFloat(0.12, s.Exit.StopLoss+0.01)
		e.logger.Info().Str("strategy", s.Name).Msg("conservative adjustment applied")
	} else if s.SuccessStreak >= 5 {
		s.Entry.MinScore = maxFloat(65, s.Entry.MinScore-3)
		s.Exit.ProfitTarget = minFloat(0.25, s.Exit.ProfitTarget+0.02)
		e.logger.Info().Str("strategy", s.Name).Msg("aggressive adjustment applied")
	}

	if s.TotalTrades >= 10 && s.PerformanceScore < 0.3 && s.FailureStreak >= 5 {
		s.IsActive = false
		e.logger.Warn().Str("strategy", s.Name).Msg("strategy deactivated for poor performance")
	}
}

// AnalyzeMarketConditions classifies the market and records the state used
// by dynamic strategy creation.
func (e *Engine) AnalyzeMarketConditions(volatility, risingRatio float64, volumeSurge bool) MarketConditions {
	mc := MarketConditions{
		Volatility:  volatility,
		RisingRatio: risingRatio,
		VolumeSurge: volumeSurge,
	}

	switch {
	case volatility > 0.05:
		mc.Condition = "HIGH_VOLATILITY"
	case risingRatio > 0.7:
		mc.Condition = "BULLISH"
	case risingRatio < 0.3:
		mc.Condition = "BEARISH"
	default:
		mc.Condition = "NEUTRAL"
	}

	e.mu.Lock()
	e.marketCondition = mc.Condition
	e.marketVolatility = volatility
	e.mu.Unlock()

	return mc
}

// CreateDynamicStrategy builds a new strategy tuned to current conditions.
func (e *Engine) CreateDynamicStrategy(mc MarketConditions) *Strategy {
	var strategyType string
	switch {
	case mc.Volatility > 0.05 && mc.VolumeSurge:
		strategyType = TypeScalping
	case mc.TrendStrength > 0.7 && mc.RisingRatio > 0.6:
		strategyType = TypeTrend
	case mc.Volatility > 0.03:
		strategyType = TypeMomentum
	default:
		strategyType = TypeMeanReversion
	}

	tpl := e.templates[strategyType]
	entry, exit := tpl.entry, tpl.exit

	// High volatility: stricter entries, faster exits
	if mc.Volatility > 0.04 {
		entry.MinScore += 5
		exit.ProfitTarget *= 0.8
		exit.StopLoss *= 0.8
	}
	// Strong trend: looser entries, larger targets
	if mc.TrendStrength > 0.8 {
		entry.MinScore = maxFloat(70, entry.MinScore-5)
		exit.ProfitTarget *= 1.2
	}

	now := time.Now().UTC()
	s := &Strategy{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("dynamic_%s_%s", strategyType, now.Format("1504")),
		Type:      strategyType,
		Entry:     entry,
		Exit:      exit,
		CreatedAt: now,
		LastUsed:  now,
		IsActive:  true,
	}

	e.mu.Lock()
	e.strategies[s.ID] = s
	e.mu.Unlock()

	e.logger.Info().Str("strategy", s.Name).Float64("volatility", mc.Volatility).
		Msg("dynamic strategy created")
	return s
}

// ShouldCreateNewStrategy checks whether the active set needs reinforcement.
func (e *Engine) ShouldCreateNewStrategy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var active []*Strategy
	for _, s := range e.strategies {
		if s.IsActive {
			active = append(active, s)
		}
	}

	if len(active) < 2 {
		return true
	}

	allPoor := true
	anyHotStreak := false
	for _, s := range active {
		if s.PerformanceScore >= 0.5 {
			allPoor = false
		}
		if s.SuccessStreak >= 5 {
			anyHotStreak = true
		}
	}

	return allPoor ||
		e.marketVolatility > 0.04 ||
		(len(active) < 4 && anyHotStreak)
}

// BestStrategies returns the top active strategies by performance score.
func (e *Engine) BestStrategies(count int) []*Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var active []*Strategy
	for _, s := range e.strategies {
		if s.IsActive {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].PerformanceScore > active[j].PerformanceScore
	})

	if len(active) > count {
		active = active[:count]
	}
	return active
}

// CleanupPoorStrategies removes stale losers while keeping at least two
// strategies alive.
func (e *Engine) CleanupPoorStrategies() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	var toRemove []string
	for id, s := range e.strategies {
		hoursUnused := now.Sub(s.LastUsed).Hours()
		stale := hoursUnused > 24 && s.TotalTrades >= 5 && s.PerformanceScore < 0.2
		losing := s.FailureStreak >= 5 && s.TotalTrades >= 5
		if stale || losing {
			toRemove = append(toRemove, id)
		}
	}

	if len(e.strategies)-len(toRemove) < 2 {
		return 0
	}

	for _, id := range toRemove {
		e.logger.Info().Str("strategy", e.strategies[id].Name).Msg("poor strategy removed")
		delete(e.strategies, id)
	}
	return len(toRemove)
}

// Count returns total and active strategy counts.
func (e *Engine) Count() (total, active int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.strategies {
		total++
		if s.IsActive {
			active++
		}
	}
	return total, active
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
