package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AnalysisCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinbot_analysis_cycles_total",
			Help: "Total number of completed analysis cycles.",
		},
	)

	AnalysisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_analysis_errors_total",
			Help: "Analysis failures per market.",
		},
		[]string{"market"},
	)

	SignalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_signals_generated_total",
			Help: "Strategy signals generated (by strategy type and action).",
		},
		[]string{"strategy", "action"},
	)

	OrdersExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_orders_executed_total",
			Help: "Orders filled (by side).",
		},
		[]string{"side"},
	)

	SignalsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinbot_signals_rejected_total",
			Help: "Signals blocked by risk checks.",
		},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coinbot_positions_open",
			Help: "Current number of open positions.",
		},
	)

	PortfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coinbot_portfolio_value_krw",
			Help: "Current portfolio value including open positions, in KRW.",
		},
	)

	DailyPnLRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coinbot_daily_pnl_ratio",
			Help: "Cumulative realized profit ratio for the current day.",
		},
	)

	RiskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coinbot_risk_score",
			Help: "Overall portfolio risk score, 0-100.",
		},
	)

	EmergencyMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coinbot_emergency_mode",
			Help: "1 while the emergency circuit breaker is tripped.",
		},
	)

	AnomaliesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_anomalies_detected_total",
			Help: "Market anomalies that blocked new entries (by market and type).",
		},
		[]string{"market", "type"},
	)

	ExchangeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_exchange_requests_total",
			Help: "Exchange API requests (by endpoint and outcome).",
		},
		[]string{"endpoint", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		AnalysisCycles,
		AnalysisErrors,
		SignalsGenerated,
		OrdersExecuted,
		SignalsRejected,
		PositionsOpen,
		PortfolioValue,
		DailyPnLRatio,
		RiskScore,
		EmergencyMode,
		AnomaliesDetected,
		ExchangeRequests,
	)
}
