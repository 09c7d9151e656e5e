package performance

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/models"
)

const (
	riskFreeRate = 0.02 // annual
	daysPerYear  = 365  // crypto trades every day
)

// Metrics is the full performance snapshot over the tracked trades.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	DailyReturnMean  float64 `json:"daily_return_mean"`
	DailyReturnStd   float64 `json:"daily_return_std"`

	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	DrawdownDuration int     `json:"max_drawdown_duration_days"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	ProfitFactor  float64 `json:"profit_factor"`

	AvgHoldingHours float64 `json:"avg_holding_hours"`
	VaR95           float64 `json:"var_95"`
	CVaR95          float64 `json:"cvar_95"`
}

// StrategyComparison ranks one strategy's share of the track record.
type StrategyComparison struct {
	StrategyID string  `json:"strategy_id"`
	Metrics    Metrics `json:"metrics"`
	Ranking    int     `json:"ranking"`
}

// MonthlyPerformance is one calendar month of results.
type MonthlyPerformance struct {
	Year    int     `json:"year"`
	Month   int     `json:"month"`
	Return  float64 `json:"return"`
	Trades  int     `json:"trades"`
	WinRate float64 `json:"win_rate"`
}

// TargetProgress tracks the capital goal.
type TargetProgress struct {
	InitialCapital float64 `json:"initial_capital"`
	TargetCapital  float64 `json:"target_capital"`
	CurrentValue   float64 `json:"current_value"`
	Progress       float64 `json:"progress"`
	DaysToTarget   int     `json:"days_to_target"` // -1 when not estimable
}

// Tracker accumulates closed trades and derives performance statistics.
type Tracker struct {
	initialCapital float64
	targetCapital  float64
	logger         zerolog.Logger

	mu     sync.RWMutex
	trades []models.TradeResult
}

// NewTracker creates a tracker. targetCapital may be zero to disable
// goal tracking.
func NewTracker(initialCapital, targetCapital float64) *Tracker {
	return &Tracker{
		initialCapital: initialCapital,
		targetCapital:  targetCapital,
		logger:         log.With().Str("component", "performance").Logger(),
	}
}

// AddTrade appends one closed trade.
func (t *Tracker) AddTrade(trade models.TradeResult) {
	t.mu.Lock()
	t.trades = append(t.trades, trade)
	t.mu.Unlock()
}

// LoadTrades replaces the track record, e.g. on restart from storage.
func (t *Tracker) LoadTrades(trades []models.TradeResult) {
	sorted := make([]models.TradeResult, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	t.mu.Lock()
	t.trades = sorted
	t.mu.Unlock()
}

// TradeCount returns the number of tracked trades.
func (t *Tracker) TradeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.trades)
}

// Calculate derives the full metric set from the tracked trades.
func (t *Tracker) Calculate() Metrics {
	t.mu.RLock()
	trades := make([]models.TradeResult, len(t.trades))
	copy(trades, t.trades)
	t.mu.RUnlock()

	return calculateMetrics(trades, t.initialCapital)
}

func calculateMetrics(trades []models.TradeResult, initialCapital float64) Metrics {
	var m Metrics
	if len(trades) == 0 || initialCapital <= 0 {
		return m
	}

	var grossWin, grossLoss, holdingHours float64
	for _, tr := range trades {
		m.TotalTrades++
		holdingHours += tr.DurationHours
		if tr.ProfitRatio > 0 {
			m.WinningTrades++
			m.AvgWin += tr.ProfitRatio
			grossWin += tr.ProfitAmount
		} else {
			m.LosingTrades++
			m.AvgLoss += tr.ProfitRatio
			grossLoss += -tr.ProfitAmount
		}
	}
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWin /= float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss /= float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}
	m.AvgHoldingHours = holdingHours / float64(m.TotalTrades)

	equity := dailyEquity(trades, initialCapital)
	if len(equity) == 0 {
		return m
	}

	m.TotalReturn = (equity[len(equity)-1] - initialCapital) / initialCapital
	days := len(equity)
	if days > 0 && 1+m.TotalReturn > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, float64(daysPerYear)/float64(days)) - 1
	}

	returns := dailyReturns(equity)
	if len(returns) > 0 {
		m.DailyReturnMean = mean(returns)
		m.DailyReturnStd = stddev(returns)
		m.Volatility = m.DailyReturnStd * math.Sqrt(daysPerYear)

		if m.Volatility > 0 {
			m.SharpeRatio = (m.AnnualizedReturn - riskFreeRate) / m.Volatility
		}

		var negatives []float64
		for _, r := range returns {
			if r < 0 {
				negatives = append(negatives, r)
			}
		}
		if downside := stddev(negatives) * math.Sqrt(daysPerYear); downside > 0 {
			m.SortinoRatio = (m.AnnualizedReturn - riskFreeRate) / downside
		}

		m.VaR95 = quantile(returns, 0.05)
		m.CVaR95 = tailMean(returns, m.VaR95)
	}

	m.MaxDrawdown, m.DrawdownDuration = drawdownStats(equity)
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = math.Abs(m.AnnualizedReturn / m.MaxDrawdown)
	}
	return m
}

// CompareStrategies computes per-strategy metrics ranked by Sharpe ratio.
func (t *Tracker) CompareStrategies() []StrategyComparison {
	t.mu.RLock()
	byStrategy := make(map[string][]models.TradeResult)
	for _, tr := range t.trades {
		byStrategy[tr.StrategyID] = append(byStrategy[tr.StrategyID], tr)
	}
	t.mu.RUnlock()

	var out []StrategyComparison
	for id, trades := range byStrategy {
		if len(trades) < 2 {
			continue
		}
		out = append(out, StrategyComparison{
			StrategyID: id,
			Metrics:    calculateMetrics(trades, t.initialCapital),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Metrics.SharpeRatio > out[j].Metrics.SharpeRatio
	})
	for i := range out {
		out[i].Ranking = i + 1
	}
	return out
}

// MonthlyBreakdown groups results by calendar month of exit.
func (t *Tracker) MonthlyBreakdown() []MonthlyPerformance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type bucket struct {
		profit float64
		trades int
		wins   int
	}
	buckets := make(map[string]*bucket)
	keys := make([]string, 0)

	for _, tr := range t.trades {
		key := tr.ExitTime.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			keys = append(keys, key)
		}
		b.profit += tr.ProfitAmount
		b.trades++
		if tr.ProfitRatio > 0 {
			b.wins++
		}
	}
	sort.Strings(keys)

	out := make([]MonthlyPerformance, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		ts, _ := time.Parse("2006-01", key)
		mp := MonthlyPerformance{
			Year:   ts.Year(),
			Month:  int(ts.Month()),
			Trades: b.trades,
		}
		if t.initialCapital > 0 {
			mp.Return = b.profit / t.initialCapital
		}
		if b.trades > 0 {
			mp.WinRate = float64(b.wins) / float64(b.trades)
		}
		out = append(out, mp)
	}
	return out
}

// Progress reports how far the capital goal is and a compound-growth
// estimate of the days remaining.
func (t *Tracker) Progress() TargetProgress {
	m := t.Calculate()
	current := t.initialCapital * (1 + m.TotalReturn)

	p := TargetProgress{
		InitialCapital: t.initialCapital,
		TargetCapital:  t.targetCapital,
		CurrentValue:   current,
		DaysToTarget:   -1,
	}
	if t.targetCapital <= t.initialCapital {
		return p
	}

	p.Progress = (current - t.initialCapital) / (t.targetCapital - t.initialCapital)
	if current >= t.targetCapital {
		p.DaysToTarget = 0
		return p
	}
	if m.DailyReturnMean > 0 {
		days := math.Log(t.targetCapital/current) / math.Log(1+m.DailyReturnMean)
		if days > 0 && days <= 3650 {
			p.DaysToTarget = int(days)
		}
	}
	return p
}

// dailyEquity builds the end-of-day portfolio value series from realized
// trade profits.
func dailyEquity(trades []models.TradeResult, initialCapital float64) []float64 {
	if len(trades) == 0 {
		return nil
	}

	sorted := make([]models.TradeResult, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	day := func(ts time.Time) time.Time {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}

	start := day(sorted[0].ExitTime)
	end := day(sorted[len(sorted)-1].ExitTime)

	profitByDay := make(map[time.Time]float64)
	for _, tr := range sorted {
		profitByDay[day(tr.ExitTime)] += tr.ProfitAmount
	}

	var equity []float64
	value := initialCapital
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		value += profitByDay[d]
		equity = append(equity, value)
	}
	return equity
}

func dailyReturns(equity []float64) []float64 {
	var out []float64
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			out = append(out, (equity[i]-equity[i-1])/equity[i-1])
		}
	}
	return out
}

// drawdownStats returns the deepest peak-to-trough fall (negative) and
// the longest run of days spent below a prior peak.
func drawdownStats(equity []float64) (maxDD float64, maxDuration int) {
	if len(equity) == 0 {
		return 0, 0
	}

	peak := equity[0]
	duration := 0
	for _, v := range equity {
		if v >= peak {
			peak = v
			duration = 0
			continue
		}
		duration++
		if duration > maxDuration {
			maxDuration = duration
		}
		if peak > 0 {
			if dd := (v - peak) / peak; dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD, maxDuration
}

func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// tailMean averages the returns at or below the cutoff.
func tailMean(values []float64, cutoff float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if v <= cutoff {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
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
