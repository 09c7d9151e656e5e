package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// TradingConfig holds capital and position management settings.
type TradingConfig struct {
	InitialCapital    float64 // KRW
	TargetCapital     float64 // KRW, used for goal progress reporting
	MaxPositions      int
	MaxCapitalPerCoin float64 // ratio of capital per position
	MaxDailyLoss      float64 // daily loss cap, ratio
	MaxPositionLoss   float64 // per-position loss cap, ratio
	StopLossRatio     float64
	TakeProfitRatio   float64
	AnalysisIntervalS int // seconds between analysis cycles
	MinOrderAmount    float64
	MaxDailyTrades    int
	TradeCooldownS    int // per-market seconds between trades
	UpbitFeeRate      float64
}

// AnalysisConfig holds indicator and signal settings.
type AnalysisConfig struct {
	TargetMarkets []string
	Timeframes    []string
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	SMAShort      int
	SMALong       int
	EMAShort      int
	EMALong       int
	BBPeriod      int
	BBStdDev      float64
	StochKPeriod  int
	StochDPeriod  int
	VolumePeriod  int
	MinScore      float64 // 0-100 signal threshold
	MinConfidence float64 // 0.0-1.0
	CandleCount   int
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	Path            string
	BackupIntervalH int
	RetentionDays   int
}

// NotificationConfig holds telegram settings.
type NotificationConfig struct {
	Enabled     bool
	BotToken    string
	ChatID      int64
	TradeAlerts bool
	ErrorAlerts bool
	DailyReport bool
}

// DashboardConfig holds web dashboard settings.
type DashboardConfig struct {
	Host           string
	Port           int
	RefreshSeconds int
}

// Config is the full application configuration.
type Config struct {
	Environment string // development, production
	LogLevel    string
	LogFile     string

	UpbitAccessKey string
	UpbitSecretKey string

	StrategyFile string

	Trading      TradingConfig
	Analysis     AnalysisConfig
	Database     DatabaseConfig
	Notification NotificationConfig
	Dashboard    DashboardConfig
}

// Load initializes configuration from environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		LogFile:     getEnvWithDefault("LOG_FILE", "logs/coinbot.log"),

		UpbitAccessKey: os.Getenv("UPBIT_ACCESS_KEY"),
		UpbitSecretKey: os.Getenv("UPBIT_SECRET_KEY"),

		StrategyFile: getEnvWithDefault("STRATEGY_FILE", "data/strategies.json"),

		Trading: TradingConfig{
			InitialCapital:    getEnvFloatWithDefault("INITIAL_CAPITAL", 1_000_000),
			TargetCapital:     getEnvFloatWithDefault("TARGET_CAPITAL", 3_000_000),
			MaxPositions:      getEnvIntWithDefault("MAX_POSITIONS", 5),
			MaxCapitalPerCoin: getEnvFloatWithDefault("MAX_CAPITAL_PER_COIN", 0.2),
			MaxDailyLoss:      getEnvFloatWithDefault("MAX_DAILY_LOSS", 0.08),
			MaxPositionLoss:   getEnvFloatWithDefault("MAX_POSITION_LOSS", 0.03),
			StopLossRatio:     getEnvFloatWithDefault("STOP_LOSS_RATIO", 0.08),
			TakeProfitRatio:   getEnvFloatWithDefault("TAKE_PROFIT_RATIO", 0.20),
			AnalysisIntervalS: getEnvIntWithDefault("ANALYSIS_INTERVAL", 120),
			MinOrderAmount:    getEnvFloatWithDefault("MIN_ORDER_AMOUNT", 5_000),
			MaxDailyTrades:    getEnvIntWithDefault("MAX_DAILY_TRADES", 20),
			TradeCooldownS:    getEnvIntWithDefault("TRADE_COOLDOWN", 180),
			UpbitFeeRate:      getEnvFloatWithDefault("UPBIT_FEE_RATE", 0.0005),
		},

		Analysis: AnalysisConfig{
			TargetMarkets: splitCSV(getEnvWithDefault("TARGET_MARKETS",
				"KRW-BTC,KRW-ETH,KRW-XRP,KRW-ADA,KRW-DOGE")),
			Timeframes:    splitCSV(getEnvWithDefault("TIMEFRAMES", "1m,3m,5m")),
			RSIPeriod:     getEnvIntWithDefault("RSI_PERIOD", 14),
			RSIOversold:   getEnvFloatWithDefault("RSI_OVERSOLD", 30),
			RSIOverbought: getEnvFloatWithDefault("RSI_OVERBOUGHT", 70),
			MACDFast:      getEnvIntWithDefault("MACD_FAST_PERIOD", 12),
			MACDSlow:      getEnvIntWithDefault("MACD_SLOW_PERIOD", 26),
			MACDSignal:    getEnvIntWithDefault("MACD_SIGNAL_PERIOD", 9),
			SMAShort:      getEnvIntWithDefault("SMA_SHORT_PERIOD", 5),
			SMALong:       getEnvIntWithDefault("SMA_LONG_PERIOD", 20),
			EMAShort:      getEnvIntWithDefault("EMA_SHORT_PERIOD", 5),
			EMALong:       getEnvIntWithDefault("EMA_LONG_PERIOD", 20),
			BBPeriod:      getEnvIntWithDefault("BB_PERIOD", 20),
			BBStdDev:      getEnvFloatWithDefault("BB_STD_DEV", 2.0),
			StochKPeriod:  getEnvIntWithDefault("STOCH_K_PERIOD", 14),
			StochDPeriod:  getEnvIntWithDefault("STOCH_D_PERIOD", 3),
			VolumePeriod:  getEnvIntWithDefault("VOLUME_PERIOD", 20),
			MinScore:      getEnvFloatWithDefault("MIN_SCORE", 75),
			MinConfidence: getEnvFloatWithDefault("MIN_CONFIDENCE", 0.6),
			CandleCount:   getEnvIntWithDefault("CANDLE_COUNT", 100),
		},

		Database: DatabaseConfig{
			Path:            getEnvWithDefault("DATABASE_PATH", "data/coinbot.db"),
			BackupIntervalH: getEnvIntWithDefault("DB_BACKUP_INTERVAL_HOURS", 24),
			RetentionDays:   getEnvIntWithDefault("DB_RETENTION_DAYS", 90),
		},

		Notification: NotificationConfig{
			Enabled:     getEnvBoolWithDefault("TELEGRAM_ENABLED", true),
			BotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:      getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0),
			TradeAlerts: getEnvBoolWithDefault("TELEGRAM_TRADE_ALERTS", true),
			ErrorAlerts: getEnvBoolWithDefault("TELEGRAM_ERROR_ALERTS", true),
			DailyReport: getEnvBoolWithDefault("TELEGRAM_DAILY_REPORT", true),
		},

		Dashboard: DashboardConfig{
			Host:           getEnvWithDefault("DASHBOARD_HOST", "0.0.0.0"),
			Port:           getEnvIntWithDefault("DASHBOARD_PORT", 8080),
			RefreshSeconds: getEnvIntWithDefault("DASHBOARD_REFRESH", 30),
		},
	}

	cfg.applyEnvironmentProfile()

	return cfg, nil
}

// applyEnvironmentProfile tightens or relaxes settings per deployment
// environment. Production caps losses harder and demands stronger signals,
// development cycles faster.
func (c *Config) applyEnvironmentProfile() {
	switch c.Environment {
	case "production":
		if c.Trading.MaxDailyLoss > 0.05 {
			c.Trading.MaxDailyLoss = 0.05
		}
		if c.Trading.StopLossRatio > 0.06 {
			c.Trading.StopLossRatio = 0.06
		}
		if c.Analysis.MinScore < 80 {
			c.Analysis.MinScore = 80
		}
	case "development":
		if c.Trading.AnalysisIntervalS > 60 {
			c.Trading.AnalysisIntervalS = 60
		}
	}
}

// Validate checks configuration consistency. API keys are required unless
// requireKeys is false (safe and check modes run without them).
func (c *Config) Validate(requireKeys bool) error {
	if requireKeys {
		if c.UpbitAccessKey == "" || c.UpbitSecretKey == "" {
			return fmt.Errorf("UPBIT_ACCESS_KEY and UPBIT_SECRET_KEY are required for live trading")
		}
	}
	if c.Trading.InitialCapital < c.Trading.MinOrderAmount {
		return fmt.Errorf("initial capital %.0f below minimum order amount %.0f",
			c.Trading.InitialCapital, c.Trading.MinOrderAmount)
	}
	if c.Trading.MaxPositions <= 0 {
		return fmt.Errorf("max positions must be positive, got %d", c.Trading.MaxPositions)
	}
	if c.Trading.MaxCapitalPerCoin <= 0 || c.Trading.MaxCapitalPerCoin > 1 {
		return fmt.Errorf("max capital per coin must be in (0, 1], got %.2f", c.Trading.MaxCapitalPerCoin)
	}
	if c.Trading.StopLossRatio <= 0 || c.Trading.TakeProfitRatio <= 0 {
		return fmt.Errorf("stop loss and take profit ratios must be positive")
	}
	if len(c.Analysis.TargetMarkets) == 0 {
		return fmt.Errorf("at least one target market is required")
	}
	for _, m := range c.Analysis.TargetMarkets {
		if !strings.HasPrefix(m, "KRW-") {
			return fmt.Errorf("target market %q is not a KRW market", m)
		}
	}
	if c.Analysis.MinScore < 0 || c.Analysis.MinScore > 100 {
		return fmt.Errorf("min score must be in [0, 100], got %.1f", c.Analysis.MinScore)
	}
	return nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
