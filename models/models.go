package models

import (
	"time"
)

// Candle represents a single OHLCV bar from the exchange.
type Candle struct {
	Market    string    `json:"market"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timeframe string    `json:"timeframe"`
}

// Ticker is the current trade price of a market.
type Ticker struct {
	Market     string    `json:"market"`
	TradePrice float64   `json:"trade_price"`
	Timestamp  time.Time `json:"timestamp"`
}

// Orderbook holds the best bid/ask of a market.
type Orderbook struct {
	Market    string    `json:"market"`
	Timestamp time.Time `json:"timestamp"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	BidSize   float64   `json:"bid_size"`
	AskSize   float64   `json:"ask_size"`
	Spread    float64   `json:"spread"`
}

// Balance is a single currency balance on the exchange account.
type Balance struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
	Locked   float64 `json:"locked"`
}

// TechnicalIndicators holds all calculated technical indicators for one bar series.
type TechnicalIndicators struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	SMAShort   float64 `json:"sma_short"`
	SMALong    float64 `json:"sma_long"`
	EMAShort   float64 `json:"ema_short"`
	EMALong    float64 `json:"ema_long"`
	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	VolumeSMA  float64 `json:"volume_sma"`
	StochK     float64 `json:"stoch_k"`
	StochD     float64 `json:"stoch_d"`
}

// Trend direction values used across analysis and strategies.
const (
	TrendUp       = "UP"
	TrendDown     = "DOWN"
	TrendSideways = "SIDEWAYS"
)

// Trade actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// AnalysisResult is the outcome of analyzing one market on one timeframe.
type AnalysisResult struct {
	Market    string    `json:"market"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`

	Indicators TechnicalIndicators `json:"indicators"`

	// Score system, 0-100 total.
	RSIScore        float64 `json:"rsi_score"`
	MACDScore       float64 `json:"macd_score"`
	VolumeScore     float64 `json:"volume_score"`
	MomentumScore   float64 `json:"momentum_score"`
	VolatilityScore float64 `json:"volatility_score"`
	TotalScore      float64 `json:"total_score"`

	TrendDirection string  `json:"trend_direction"`
	SignalStrength float64 `json:"signal_strength"` // 0.0 - 1.0
	Confidence     float64 `json:"confidence"`      // 0.0 - 1.0

	RecommendedAction string  `json:"recommended_action"`
	EntryPrice        float64 `json:"entry_price,omitempty"`
	StopLoss          float64 `json:"stop_loss,omitempty"`
	TakeProfit        float64 `json:"take_profit,omitempty"`
}

// StrategySignal is an actionable signal emitted by one strategy.
type StrategySignal struct {
	StrategyID     string    `json:"strategy_id"`
	Market         string    `json:"market"`
	Action         string    `json:"action"`
	Confidence     float64   `json:"confidence"`
	EntryPrice     float64   `json:"entry_price"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	TimeLimitHours float64   `json:"time_limit_hours,omitempty"` // 0 for no holding limit
	Timeframe      string    `json:"timeframe"`
	Reasoning      string    `json:"reasoning"`
	Timestamp      time.Time `json:"timestamp"`
}

// Order statuses.
const (
	OrderPending   = "PENDING"
	OrderFilled    = "FILLED"
	OrderCancelled = "CANCELLED"
	OrderFailed    = "FAILED"
)

// Order is a single exchange order, live or simulated.
type Order struct {
	OrderID      string     `json:"order_id"`
	Market       string     `json:"market"`
	Side         string     `json:"side"` // BUY, SELL
	Price        float64    `json:"price"`
	Quantity     float64    `json:"quantity"`
	TotalAmount  float64    `json:"total_amount"`
	Status       string     `json:"status"`
	StrategyID   string     `json:"strategy_id"`
	CreatedAt    time.Time  `json:"created_at"`
	FilledAt     *time.Time `json:"filled_at,omitempty"`
	ExchangeUUID string     `json:"exchange_uuid,omitempty"`
}

// Position is an open holding created from a filled buy order.
type Position struct {
	PositionID    string  `json:"position_id"`
	Market        string  `json:"market"`
	StrategyID    string  `json:"strategy_id"`
	EntryPrice    float64 `json:"entry_price"`
	Quantity      float64 `json:"quantity"`
	TotalInvested float64 `json:"total_invested"`

	CurrentPrice       float64 `json:"current_price"`
	CurrentValue       float64 `json:"current_value"`
	UnrealizedPnL      float64 `json:"unrealized_pnl"`
	UnrealizedPnLRatio float64 `json:"unrealized_pnl_ratio"`

	StopLoss       float64 `json:"stop_loss"`
	TakeProfit     float64 `json:"take_profit"`
	TimeLimitHours float64 `json:"time_limit_hours,omitempty"`

	EntryTime   time.Time `json:"entry_time"`
	LastUpdated time.Time `json:"last_updated"`

	StrategyName string `json:"strategy_name"`
	Reasoning    string `json:"reasoning"`
}

// HoldingHours returns how long the position has been open.
func (p *Position) HoldingHours(now time.Time) float64 {
	return now.Sub(p.EntryTime).Hours()
}

// TradeResult records a completed buy/sell round trip.
type TradeResult struct {
	PositionID     string    `json:"position_id"`
	Market         string    `json:"market"`
	StrategyID     string    `json:"strategy_id"`
	EntryTime      time.Time `json:"entry_time"`
	ExitTime       time.Time `json:"exit_time"`
	DurationHours  float64   `json:"duration_hours"`
	EntryPrice     float64   `json:"entry_price"`
	ExitPrice      float64   `json:"exit_price"`
	Quantity       float64   `json:"quantity"`
	InvestedAmount float64   `json:"invested_amount"`
	ReceivedAmount float64   `json:"received_amount"`
	ProfitAmount   float64   `json:"profit_amount"`
	ProfitRatio    float64   `json:"profit_ratio"`
	ExitReason     string    `json:"exit_reason"`
	Reasoning      string    `json:"reasoning"`
}

// Risk levels, ordered from calm to critical.
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// RiskMetrics is a point-in-time snapshot of portfolio risk.
type RiskMetrics struct {
	DailyPnL             float64 `json:"daily_pnl"`
	DailyPnLRatio        float64 `json:"daily_pnl_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	CurrentExposure      float64 `json:"current_exposure"`
	PositionCount        int     `json:"position_count"`
	LargestPositionRatio float64 `json:"largest_position_ratio"`
	VolatilityRisk       float64 `json:"volatility_risk"`
	ConcentrationRisk    float64 `json:"concentration_risk"`
	OverallRiskScore     float64 `json:"overall_risk_score"` // 0-100
	RiskLevel            string  `json:"risk_level"`
}

// RiskAlert flags a threshold breach on a position or the portfolio.
type RiskAlert struct {
	AlertID        string    `json:"alert_id"`
	AlertType      string    `json:"alert_type"` // POSITION_LOSS, TIME_RISK, EMERGENCY, ...
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Market         string    `json:"market"`
	CurrentValue   float64   `json:"current_value"`
	Threshold      float64   `json:"threshold"`
	Recommendation string    `json:"recommendation"`
	Timestamp      time.Time `json:"timestamp"`
}

// Market trend labels for the whole watched universe.
const (
	MarketBullish = "BULLISH"
	MarketBearish = "BEARISH"
	MarketNeutral = "NEUTRAL"
)

// MarketSummary aggregates the state of all watched markets.
type MarketSummary struct {
	Timestamp   time.Time          `json:"timestamp"`
	TotalCoins  int                `json:"total_coins"`
	Prices      map[string]float64 `json:"prices"`
	TotalVolume float64            `json:"total_volume"`
	RisingRatio float64            `json:"rising_ratio"`
	MarketTrend string             `json:"market_trend"`
}

// PortfolioSummary is the trader's view of all open positions.
type PortfolioSummary struct {
	TotalPositions          int        `json:"total_positions"`
	TotalInvested           float64    `json:"total_invested"`
	TotalCurrentValue       float64    `json:"total_current_value"`
	TotalUnrealizedPnL      float64    `json:"total_unrealized_pnl"`
	TotalUnrealizedPnLRatio float64    `json:"total_unrealized_pnl_ratio"`
	AvailableCapital        float64    `json:"available_capital"`
	DailyTradeCount         int        `json:"daily_trade_count"`
	DailyLoss               float64    `json:"daily_loss"`
	Positions               []Position `json:"positions"`
	LastUpdated             time.Time  `json:"last_updated"`
}
