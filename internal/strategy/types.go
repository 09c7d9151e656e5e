package strategy

import "time"

// Strategy types.
const (
	TypeMomentum      = "MOMENTUM"
	TypeTrend         = "TREND"
	TypeMeanReversion = "MEAN_REVERSION"
	TypeScalping      = "SCALPING"
)

// EntryConditions gates signal generation. Fields apply per strategy type;
// unused ones stay zero and are omitted from persistence.
type EntryConditions struct {
	MinScore          float64 `json:"min_score"`
	MinConfidence     float64 `json:"min_confidence,omitempty"`
	RSILow            float64 `json:"rsi_low,omitempty"`
	RSIHigh           float64 `json:"rsi_high,omitempty"`
	VolumeSurge       bool    `json:"volume_surge,omitempty"`
	TrendAlignment    bool    `json:"trend_alignment,omitempty"`
	MomentumThreshold float64 `json:"momentum_threshold,omitempty"`
	TrendStrength     float64 `json:"trend_strength,omitempty"`
	MAAlignment       bool    `json:"ma_alignment,omitempty"`
	RSIExtreme        bool    `json:"rsi_extreme,omitempty"`
	SpreadCheck       bool    `json:"spread_check,omitempty"`
}

// ExitConditions drive position closing for trades opened by the strategy.
type ExitConditions struct {
	ProfitTarget   float64 `json:"profit_target"`
	StopLoss       float64 `json:"stop_loss"`
	TimeLimitHours float64 `json:"time_limit_hours"`
	RSIOverbought  float64 `json:"rsi_overbought,omitempty"`
	TrendBreak     bool    `json:"trend_break,omitempty"`
	RSINormalize   bool    `json:"rsi_normalize,omitempty"`
	MomentumFade   bool    `json:"momentum_fade,omitempty"`
}

// Strategy is one tunable trading strategy with its running performance.
type Strategy struct {
	ID   string `json:"strategy_id"`
	Name string `json:"name"`
	Type string `json:"strategy_type"`

	Entry EntryConditions `json:"entry_conditions"`
	Exit  ExitConditions  `json:"exit_conditions"`

	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	TotalProfit      float64 `json:"total_profit"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	AvgProfit        float64 `json:"avg_profit"`
	PerformanceScore float64 `json:"performance_score"`

	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	IsActive  bool      `json:"is_active"`

	AdaptationCount int `json:"adaptation_count"`
	SuccessStreak   int `json:"success_streak"`
	FailureStreak   int `json:"failure_streak"`
}

// MarketConditions summarizes the market for dynamic strategy selection.
type MarketConditions struct {
	Volatility    float64 `json:"volatility"`
	TrendStrength float64 `json:"trend_strength"`
	VolumeSurge   bool    `json:"volume_surge"`
	RisingRatio   float64 `json:"rising_ratio"`
	Condition     string  `json:"condition"` // HIGH_VOLATILITY, BULLISH, BEARISH, NEUTRAL
}
