package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/analyze"
	"github.com/coinbot-kr/coinbot/internal/anomaly"
	"github.com/coinbot-kr/coinbot/internal/collector"
	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/internal/database"
	"github.com/coinbot-kr/coinbot/internal/metrics"
	"github.com/coinbot-kr/coinbot/internal/notify"
	"github.com/coinbot-kr/coinbot/internal/performance"
	"github.com/coinbot-kr/coinbot/internal/risk"
	"github.com/coinbot-kr/coinbot/internal/strategy"
	"github.com/coinbot-kr/coinbot/internal/trader"
	"github.com/coinbot-kr/coinbot/internal/upbit"
	"github.com/coinbot-kr/coinbot/models"
)

// Run modes accepted by New.
const (
	ModeLive  = "live"
	ModeSafe  = "safe"
	ModeCheck = "check"
	ModeOnce  = "once"
)

// Upbit KRW markets settle on Korean time, so the daily reset does too.
var kst = time.FixedZone("KST", 9*60*60)

// Bot wires the pipeline together and drives the trading loop.
// Collector, analyzer, strategy engine, risk manager and trader are
// required; the store, notifier and performance tracker degrade to
// no-ops when unavailable.
type Bot struct {
	cfg    *config.Config
	mode   string
	logger zerolog.Logger

	client    *upbit.Client
	collector *collector.Collector
	analyzer  *analyze.Analyzer
	engine    *strategy.Engine
	risk      *risk.Manager
	trader    *trader.Trader

	store    *database.DB // nil when the database could not be opened
	notifier models.Notifier
	tracker  *performance.Tracker

	mu         sync.Mutex
	paused     bool
	startedAt  time.Time
	cycleCount int
	lastReset  time.Time // KST day boundary of the last daily reset
	lastBackup time.Time
}

// New builds the bot for the given run mode. Live mode requires API keys;
// safe and once run against a simulated account.
func New(cfg *config.Config, mode string) (*Bot, error) {
	switch mode {
	case ModeLive, ModeSafe, ModeCheck, ModeOnce:
	default:
		return nil, fmt.Errorf("unknown run mode %q", mode)
	}

	b := &Bot{
		cfg:    cfg,
		mode:   mode,
		logger: log.With().Str("component", "bot").Str("mode", mode).Logger(),
	}

	b.client = upbit.NewClient(cfg.UpbitAccessKey, cfg.UpbitSecretKey)
	if mode == ModeLive && !b.client.HasKeys() {
		return nil, fmt.Errorf("live mode requires UPBIT_ACCESS_KEY and UPBIT_SECRET_KEY")
	}

	b.collector = collector.New(b.client)
	b.analyzer = analyze.New(&cfg.Analysis, &cfg.Trading)

	b.engine = strategy.NewEngine()
	if _, err := os.Stat(cfg.StrategyFile); err == nil {
		if err := b.engine.LoadFromFile(cfg.StrategyFile); err != nil {
			b.logger.Warn().Err(err).Str("file", cfg.StrategyFile).
				Msg("could not restore strategies, starting fresh")
		}
	}

	store, err := database.New(cfg.Database.Path)
	if err != nil {
		b.logger.Warn().Err(err).Msg("database unavailable, trade history will not persist")
	} else {
		b.store = store
	}

	var recorder risk.EventRecorder
	if b.store != nil {
		recorder = func(eventType, severity, description string) {
			if err := b.store.SaveRiskEvent(eventType, severity, description); err != nil {
				b.logger.Error().Err(err).Msg("saving risk event")
			}
		}
	}
	b.risk = risk.NewManager(&cfg.Trading, b.collector, recorder)

	var exec models.OrderExecutor
	if mode == ModeLive {
		exec = trader.NewLiveExecutor(b.client, b.collector)
	} else {
		exec = trader.NewPaperExecutor(b.collector, cfg.Trading.InitialCapital, cfg.Trading.UpbitFeeRate)
	}
	positionsFile := filepath.Join(filepath.Dir(cfg.Database.Path), "positions.json")
	b.trader = trader.New(&cfg.Trading, b.collector, exec, positionsFile)
	b.trader.OnTradeClosed(b.handleTradeClosed)

	b.tracker = performance.NewTracker(cfg.Trading.InitialCapital, cfg.Trading.TargetCapital)
	if b.store != nil {
		if trades, err := b.store.GetTrades(time.Time{}, time.Time{}, 0); err != nil {
			b.logger.Warn().Err(err).Msg("could not load trade history")
		} else {
			b.tracker.LoadTrades(trades)
		}
	}

	if cfg.Notification.Enabled {
		b.notifier = notify.NewTelegram(cfg.Notification.BotToken, cfg.Notification.ChatID)
	} else {
		b.notifier = notify.NewTelegram("", 0)
	}

	b.lastReset = kstDay(time.Now())
	return b, nil
}

// Run executes the configured mode until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.mode == ModeCheck {
		return b.runCheck(ctx)
	}

	b.mu.Lock()
	b.startedAt = time.Now().UTC()
	b.mu.Unlock()

	b.logger.Info().
		Strs("markets", b.cfg.Analysis.TargetMarkets).
		Int("interval_s", b.cfg.Trading.AnalysisIntervalS).
		Msg("bot starting")
	if err := b.notifier.NotifyStatus(ctx, fmt.Sprintf(
		"🤖 <b>coinbot started</b>\nmode: %s\nmarkets: %d\ncapital: %.0f KRW\ninterval: %ds",
		b.mode, len(b.cfg.Analysis.TargetMarkets),
		b.cfg.Trading.InitialCapital, b.cfg.Trading.AnalysisIntervalS)); err != nil {
		b.logger.Debug().Err(err).Msg("startup notification")
	}

	stream := upbit.NewTickerStream(b.cfg.Analysis.TargetMarkets, b.collector.PushTick)
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn().Err(err).Msg("ticker stream stopped, falling back to REST prices")
		}
	}()
	defer stream.Close()

	if b.mode == ModeOnce {
		b.runCycle(ctx)
		return b.shutdown(ctx)
	}

	interval := time.Duration(b.cfg.Trading.AnalysisIntervalS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return b.shutdown(context.Background())
		case <-ticker.C:
			b.dailyResetIfNeeded(ctx)
			if b.Paused() {
				b.logger.Debug().Msg("paused, skipping cycle")
				continue
			}
			b.runCycle(ctx)
		}
	}
}

// runCheck verifies connectivity and configuration without trading.
func (b *Bot) runCheck(ctx context.Context) error {
	b.logger.Info().Msg("running environment check")

	if err := b.collector.HealthCheck(ctx); err != nil {
		return fmt.Errorf("exchange check: %w", err)
	}
	b.logger.Info().Msg("exchange reachable")

	if b.client.HasKeys() {
		if _, err := b.collector.GetBalances(ctx); err != nil {
			return fmt.Errorf("authenticated request failed: %w", err)
		}
		b.logger.Info().Msg("api keys valid")
	} else {
		b.logger.Warn().Msg("no api keys configured, live mode unavailable")
	}

	if b.store == nil {
		b.logger.Warn().Msg("database unavailable")
	} else {
		b.logger.Info().Str("path", b.cfg.Database.Path).Msg("database ok")
	}
	b.logger.Info().Bool("telegram", b.notifier.Enabled()).Msg("environment check passed")
	return nil
}

func (b *Bot) runCycle(ctx context.Context) {
	b.mu.Lock()
	b.cycleCount++
	cycle := b.cycleCount
	b.mu.Unlock()

	b.logger.Debug().Int("cycle", cycle).Msg("cycle start")

	if err := b.trader.UpdatePositions(ctx); err != nil {
		b.logger.Error().Err(err).Msg("updating positions")
		b.notifyError(ctx, "trader", err)
	}
	if closed := b.trader.CheckExitConditions(ctx); closed > 0 {
		b.logger.Info().Int("closed", closed).Msg("exit conditions fired")
	}

	positions := b.trader.Positions()
	if b.store != nil {
		for _, p := range positions {
			if err := b.store.SavePosition(p); err != nil {
				b.logger.Debug().Err(err).Str("market", p.Market).Msg("persisting position")
			}
		}
	}

	// Risk ratios are computed against the live account, not the
	// configured starting capital.
	if summary := b.trader.PortfolioSummary(ctx); summary != nil {
		b.risk.SetCapital(summary.TotalCurrentValue + summary.AvailableCapital)
	}
	if alerts := b.risk.CheckPositionRisks(positions); len(alerts) > 0 {
		b.logger.Warn().Int("alerts", len(alerts)).Msg("position risk alerts")
	}

	riskMetrics := b.risk.CalculateRiskMetrics(ctx, positions)
	b.publishRiskMetrics(riskMetrics, len(positions))

	if !b.risk.EmergencyMode() && b.risk.ShouldEnterEmergencyMode(riskMetrics) {
		b.risk.EnterEmergencyMode(fmt.Sprintf(
			"risk score %.0f, daily pnl %.2f%%",
			riskMetrics.OverallRiskScore, riskMetrics.DailyPnLRatio*100))
		closed, total := b.trader.CloseAllPositions(ctx, trader.ExitEmergency)
		b.logger.Error().Int("closed", closed).Int("total", total).
			Msg("emergency mode entered, positions liquidated")
		b.notifyText(ctx, fmt.Sprintf(
			"🚨 <b>EMERGENCY MODE</b>\nrisk score: %.0f\ndaily PnL: %+.2f%%\nclosed %d/%d positions",
			riskMetrics.OverallRiskScore, riskMetrics.DailyPnLRatio*100, closed, total))
	}

	for _, p := range positions {
		if reason, force := b.risk.ShouldForceClose(ctx, p, riskMetrics); force {
			if _, err := b.trader.ClosePosition(ctx, p.Market, trader.ExitRisk, reason); err != nil {
				b.logger.Error().Err(err).Str("market", p.Market).Msg("forced close failed")
			}
		}
	}

	volumeSurge := false
	if !b.risk.EmergencyMode() {
		volumeSurge = b.analyzeAndTrade(ctx, riskMetrics)
	}

	b.reviewStrategies(ctx, riskMetrics, volumeSurge, cycle)

	if summary := b.trader.PortfolioSummary(ctx); summary != nil {
		metrics.PortfolioValue.Set(summary.TotalCurrentValue + summary.AvailableCapital)
		if err := b.notifier.NotifyPortfolio(ctx, summary); err != nil {
			b.logger.Debug().Err(err).Msg("portfolio notification")
		}
	}

	metrics.AnalysisCycles.Inc()
	b.logger.Info().Int("cycle", cycle).Int("positions", len(b.trader.Positions())).
		Str("risk", riskMetrics.RiskLevel).Msg("cycle done")
}

// analyzeAndTrade runs the per-market pipeline and reports whether any
// market showed a volume surge this cycle.
func (b *Bot) analyzeAndTrade(ctx context.Context, riskMetrics models.RiskMetrics) bool {
	volumeSurge := false

	for _, market := range b.cfg.Analysis.TargetMarkets {
		if ctx.Err() != nil {
			return volumeSurge
		}

		data, err := b.collector.GetMultiTimeframe(
			ctx, market, b.cfg.Analysis.Timeframes, b.cfg.Analysis.CandleCount)
		if err != nil {
			metrics.AnalysisErrors.WithLabelValues(market).Inc()
			b.logger.Warn().Err(err).Str("market", market).Msg("candle fetch failed")
			continue
		}

		results := b.analyzer.BatchAnalyze(data, market)
		if len(results) == 0 {
			metrics.AnalysisErrors.WithLabelValues(market).Inc()
			continue
		}
		for _, r := range results {
			if r.VolumeScore >= 15 {
				volumeSurge = true
			}
		}

		primary := b.cfg.Analysis.Timeframes[0]
		if det := anomaly.Detect(data[primary]); det.Detected && det.Score >= 0.7 {
			metrics.AnomaliesDetected.WithLabelValues(market, det.Type).Inc()
			b.logger.Warn().Str("market", market).Str("type", det.Type).
				Float64("score", det.Score).Str("detail", det.Detail).
				Msg("market anomaly, holding off new entries")
			continue
		}

		prices, err := b.collector.GetCurrentPrices(ctx, []string{market})
		if err != nil || prices[market] <= 0 {
			b.logger.Warn().Err(err).Str("market", market).Msg("price lookup failed")
			continue
		}

		signals := b.engine.GenerateSignals(results, market, prices[market])
		for i := range signals {
			sig := &signals[i]
			metrics.SignalsGenerated.WithLabelValues(sig.StrategyID, sig.Action).Inc()

			ok, reason := b.risk.ValidateSignal(ctx, sig, b.trader.Positions())
			if !ok {
				metrics.SignalsRejected.Inc()
				b.logger.Debug().Str("market", market).Str("reason", reason).Msg("signal rejected")
				continue
			}

			amount := b.risk.AdjustPositionSize(sig, riskMetrics)
			executed, err := b.trader.ExecuteSignal(ctx, sig, amount)
			if err != nil {
				b.logger.Error().Err(err).Str("market", market).Msg("order failed")
				b.notifyError(ctx, "trader", err)
				continue
			}
			if executed && sig.Action == models.ActionBuy {
				metrics.OrdersExecuted.WithLabelValues("buy").Inc()
				if b.cfg.Notification.TradeAlerts {
					b.notifyText(ctx, fmt.Sprintf(
						"🟢 <b>%s</b> bought\namount: %.0f KRW\nstrategy: %s\nconfidence: %.0f%%",
						market, amount, sig.StrategyID, sig.Confidence*100))
				}
			}
		}
	}
	return volumeSurge
}

// reviewStrategies keeps the strategy pool adapted to market conditions.
func (b *Bot) reviewStrategies(ctx context.Context, riskMetrics models.RiskMetrics, volumeSurge bool, cycle int) {
	summary, err := b.collector.GetMarketSummary(ctx, b.cfg.Analysis.TargetMarkets)
	if err != nil {
		b.logger.Warn().Err(err).Msg("market summary failed")
		return
	}

	mc := b.engine.AnalyzeMarketConditions(riskMetrics.VolatilityRisk, summary.RisingRatio, volumeSurge)
	if b.engine.ShouldCreateNewStrategy() {
		s := b.engine.CreateDynamicStrategy(mc)
		b.logger.Info().Str("strategy", s.Name).Str("condition", mc.Condition).
			Msg("dynamic strategy created")
	}

	// Pruning is cheap but noisy, so only every 20th cycle.
	if cycle%20 == 0 {
		if removed := b.engine.CleanupPoorStrategies(); removed > 0 {
			b.logger.Info().Int("removed", removed).Msg("poor strategies pruned")
		}
	}
}

// handleTradeClosed fans a completed round trip out to learning,
// persistence and notification. Registered with the trader at startup.
func (b *Bot) handleTradeClosed(trade *models.TradeResult) {
	b.engine.UpdatePerformance(trade.StrategyID, trade)
	b.risk.RecordTrade(trade.ProfitRatio)
	b.tracker.AddTrade(*trade)
	metrics.OrdersExecuted.WithLabelValues("sell").Inc()

	if b.store != nil {
		if err := b.store.SaveTrade(trade); err != nil {
			b.logger.Error().Err(err).Str("position", trade.PositionID).Msg("persisting trade")
		}
		if err := b.store.ClosePosition(trade.PositionID); err != nil {
			b.logger.Debug().Err(err).Msg("closing stored position")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if b.cfg.Notification.TradeAlerts {
		if err := b.notifier.NotifyTrade(ctx, trade); err != nil {
			b.logger.Debug().Err(err).Msg("trade notification")
		}
	}
}

// dailyResetIfNeeded rolls daily counters at midnight KST and emits the
// daily report, database backup and retention purge.
func (b *Bot) dailyResetIfNeeded(ctx context.Context) {
	today := kstDay(time.Now())
	b.mu.Lock()
	if !today.After(b.lastReset) {
		b.mu.Unlock()
		return
	}
	previous := b.lastReset
	b.lastReset = today
	b.mu.Unlock()

	trades, loss := b.trader.DailyStats()
	b.logger.Info().Int("trades", trades).Float64("daily_loss", loss).
		Msg("daily reset at midnight KST")

	currentCapital := b.cfg.Trading.InitialCapital
	var portfolioValue float64
	if summary := b.trader.PortfolioSummary(ctx); summary != nil {
		portfolioValue = summary.TotalCurrentValue + summary.AvailableCapital
		currentCapital = portfolioValue
	}

	if b.store != nil {
		wins := 0
		if stats, err := b.store.GetTradeStats(previous); err == nil {
			wins = stats.WinCount
		}
		dailyPnL := loss * b.cfg.Trading.InitialCapital
		if err := b.store.SaveDailyPerformance(previous, portfolioValue, dailyPnL, loss, trades, wins); err != nil {
			b.logger.Error().Err(err).Msg("saving daily performance")
		}
		b.maintainStore(today)
	}

	if b.cfg.Notification.DailyReport {
		m := b.tracker.Calculate()
		b.notifyText(ctx, fmt.Sprintf(
			"📊 <b>daily report</b>\ntrades: %d\ndaily PnL: %+.2f%%\ntotal return: %+.2f%%\nwin rate: %.0f%%\nportfolio: %.0f KRW",
			trades, loss*100, m.TotalReturn*100, m.WinRate*100, portfolioValue))
	}

	if b.tracker.TradeCount() > 0 {
		dir := filepath.Join(filepath.Dir(b.cfg.Database.Path), "charts")
		if path, err := b.tracker.RenderEquityChart(dir); err != nil {
			b.logger.Error().Err(err).Msg("rendering equity chart")
		} else {
			b.logger.Info().Str("path", path).Msg("equity chart rendered")
		}
	}

	b.trader.ResetDaily()
	b.risk.ResetDaily(currentCapital)
	metrics.DailyPnLRatio.Set(0)

	if err := b.engine.SaveToFile(b.cfg.StrategyFile); err != nil {
		b.logger.Error().Err(err).Msg("saving strategies")
	}
}

// maintainStore runs the backup and retention purge on their own clocks.
func (b *Bot) maintainStore(now time.Time) {
	backupEvery := time.Duration(b.cfg.Database.BackupIntervalH) * time.Hour
	if backupEvery > 0 && now.Sub(b.lastBackup) >= backupEvery {
		dir := filepath.Join(filepath.Dir(b.cfg.Database.Path), "backups")
		if path, err := b.store.Backup(dir); err != nil {
			b.logger.Error().Err(err).Msg("database backup failed")
		} else {
			b.lastBackup = now
			b.logger.Info().Str("path", path).Msg("database backed up")
		}
	}

	if b.cfg.Database.RetentionDays > 0 {
		keep := time.Duration(b.cfg.Database.RetentionDays) * 24 * time.Hour
		if deleted, err := b.store.PurgeOldTrades(keep); err != nil {
			b.logger.Error().Err(err).Msg("trade purge failed")
		} else if deleted > 0 {
			b.logger.Info().Int64("deleted", deleted).Msg("old trades purged")
		}
	}
}

func (b *Bot) shutdown(ctx context.Context) error {
	b.logger.Info().Msg("shutting down")

	if err := b.engine.SaveToFile(b.cfg.StrategyFile); err != nil {
		b.logger.Error().Err(err).Msg("saving strategies on shutdown")
	}
	b.notifyText(ctx, "🛑 <b>coinbot stopped</b>")
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			b.logger.Error().Err(err).Msg("closing database")
		}
	}
	b.logger.Info().Msg("shutdown complete")
	return nil
}

func (b *Bot) publishRiskMetrics(m models.RiskMetrics, positionCount int) {
	metrics.RiskScore.Set(m.OverallRiskScore)
	metrics.PositionsOpen.Set(float64(positionCount))
	metrics.DailyPnLRatio.Set(m.DailyPnLRatio)
	if b.risk.EmergencyMode() {
		metrics.EmergencyMode.Set(1)
	} else {
		metrics.EmergencyMode.Set(0)
	}
}

func (b *Bot) notifyText(ctx context.Context, text string) {
	if err := b.notifier.NotifyText(ctx, text); err != nil {
		b.logger.Debug().Err(err).Msg("notification failed")
	}
}

func (b *Bot) notifyError(ctx context.Context, component string, err error) {
	if !b.cfg.Notification.ErrorAlerts {
		return
	}
	if nerr := b.notifier.NotifyError(ctx, component, err); nerr != nil {
		b.logger.Debug().Err(nerr).Msg("error notification failed")
	}
}

// Pause stops signal generation and order placement. Position monitoring
// and exits keep running.
func (b *Bot) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
	b.logger.Info().Msg("trading paused")
}

// Resume re-enables trading after Pause.
func (b *Bot) Resume() {
	b.mu.Lock()
	b.paused = false
	b.mu.Unlock()
	b.logger.Info().Msg("trading resumed")
}

// Paused reports whether trading is currently paused.
func (b *Bot) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Status is a point-in-time snapshot for the dashboard and status API.
type Status struct {
	Mode             string    `json:"mode"`
	Paused           bool      `json:"paused"`
	EmergencyMode    bool      `json:"emergency_mode"`
	StartedAt        time.Time `json:"started_at"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	CycleCount       int       `json:"cycle_count"`
	OpenPositions    int       `json:"open_positions"`
	DailyTradeCount  int       `json:"daily_trade_count"`
	DailyLossRatio   float64   `json:"daily_loss_ratio"`
	TotalStrategies  int       `json:"total_strategies"`
	ActiveStrategies int       `json:"active_strategies"`
}

// Status returns the current bot state.
func (b *Bot) Status() Status {
	b.mu.Lock()
	startedAt := b.startedAt
	cycles := b.cycleCount
	paused := b.paused
	b.mu.Unlock()

	trades, loss := b.trader.DailyStats()
	total, active := b.engine.Count()

	s := Status{
		Mode:             b.mode,
		Paused:           paused,
		EmergencyMode:    b.risk.EmergencyMode(),
		StartedAt:        startedAt,
		CycleCount:       cycles,
		OpenPositions:    len(b.trader.Positions()),
		DailyTradeCount:  trades,
		DailyLossRatio:   loss,
		TotalStrategies:  total,
		ActiveStrategies: active,
	}
	if !startedAt.IsZero() {
		s.UptimeSeconds = time.Since(startedAt).Seconds()
	}
	return s
}

// Trader exposes the execution layer to the dashboard.
func (b *Bot) Trader() *trader.Trader { return b.trader }

// Tracker exposes performance analytics to the dashboard.
func (b *Bot) Tracker() *performance.Tracker { return b.tracker }

// Store returns the trade store, or nil when persistence is disabled.
func (b *Bot) Store() *database.DB { return b.store }

func kstDay(t time.Time) time.Time {
	k := t.In(kst)
	return time.Date(k.Year(), k.Month(), k.Day(), 0, 0, 0, 0, kst)
}
