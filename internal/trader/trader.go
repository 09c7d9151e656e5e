package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/models"
)

// Exit reasons attached to closed trades.
const (
	ExitStopLoss   = "STOP_LOSS"
	ExitTakeProfit = "TAKE_PROFIT"
	ExitTimeLimit  = "TIME_LIMIT"
	ExitTimeBased  = "TIME_BASED"
	ExitForceTime  = "FORCE_TIME"
	ExitEmergency  = "EMERGENCY"
	ExitSignal     = "STRATEGY_SIGNAL"
	ExitRisk       = "RISK_FORCED"
	ExitShutdown   = "EMERGENCY_CLOSE"
)

const minCoinBalance = 1e-6

// TradeCallback receives each completed round trip, for performance
// tracking and strategy feedback.
type TradeCallback func(*models.TradeResult)

// Trader turns validated signals into orders and manages open positions.
type Trader struct {
	cfg    *config.TradingConfig
	market models.MarketData
	exec   models.OrderExecutor
	logger zerolog.Logger

	mu              sync.RWMutex
	positions       map[string]*models.Position
	orderHistory    []models.Order
	dailyTradeCount int
	dailyLoss       float64 // cumulative profit ratio for the day
	lastTradeTime   map[string]time.Time

	positionsFile string
	onTrade       TradeCallback
	now           func() time.Time
}

// New creates a Trader. positionsFile may be empty to disable persistence.
func New(cfg *config.TradingConfig, market models.MarketData, exec models.OrderExecutor, positionsFile string) *Trader {
	t := &Trader{
		cfg:           cfg,
		market:        market,
		exec:          exec,
		logger:        log.With().Str("component", "trader").Str("mode", exec.Mode()).Logger(),
		positions:     make(map[string]*models.Position),
		lastTradeTime: make(map[string]time.Time),
		positionsFile: positionsFile,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if err := t.loadPositions(); err != nil {
		t.logger.Warn().Err(err).Msg("position restore failed, starting empty")
	}
	return t
}

// OnTradeClosed registers the callback invoked after each closed trade.
func (t *Trader) OnTradeClosed(fn TradeCallback) {
	t.mu.Lock()
	t.onTrade = fn
	t.mu.Unlock()
}

// ExecuteSignal acts on a strategy signal. krwAmount is the risk-adjusted
// position size for buys and is ignored for sells. Returns whether an
// order was placed.
func (t *Trader) ExecuteSignal(ctx context.Context, signal *models.StrategySignal, krwAmount float64) (bool, error) {
	if ok, reason := t.validateConditions(signal, krwAmount); !ok {
		t.logger.Debug().Str("market", signal.Market).Str("reason", reason).
			Msg("signal skipped")
		return false, nil
	}

	switch signal.Action {
	case models.ActionBuy:
		return t.executeBuy(ctx, signal, krwAmount)
	case models.ActionSell:
		return t.executeSell(ctx, signal)
	default:
		return false, nil
	}
}

func (t *Trader) validateConditions(signal *models.StrategySignal, krwAmount float64) (bool, string) {
	if signal.Confidence < 0.6 {
		return false, fmt.Sprintf("confidence %.2f below floor", signal.Confidence)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.dailyTradeCount >= t.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade cap reached: %d", t.dailyTradeCount)
	}

	cooldown := time.Duration(t.cfg.TradeCooldownS) * time.Second
	if last, ok := t.lastTradeTime[signal.Market]; ok && t.now().Sub(last) < cooldown {
		return false, "trade cooldown active"
	}

	if t.dailyLoss <= -t.cfg.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit hit: %.2f%%", t.dailyLoss*100)
	}

	if signal.Action == models.ActionBuy {
		if len(t.positions) >= t.cfg.MaxPositions {
			return false, fmt.Sprintf("max positions: %d", len(t.positions))
		}
		for _, p := range t.positions {
			if p.Market == signal.Market {
				return false, "already holding " + signal.Market
			}
		}
		if krwAmount < t.cfg.MinOrderAmount {
			return false, fmt.Sprintf("amount %.0f below minimum order", krwAmount)
		}
	}
	return true, ""
}

func (t *Trader) executeBuy(ctx context.Context, signal *models.StrategySignal, krwAmount float64) (bool, error) {
	available, err := t.exec.AvailableKRW(ctx)
	if err != nil {
		return false, fmt.Errorf("balance check: %w", err)
	}
	if available < krwAmount {
		t.logger.Warn().Float64("available", available).Float64("needed", krwAmount).
			Msg("insufficient KRW")
		return false, nil
	}

	order, err := t.exec.BuyMarket(ctx, signal.Market, krwAmount)
	if err != nil {
		t.recordOrder(models.Order{
			OrderID:    uuid.NewString(),
			Market:     signal.Market,
			Side:       models.ActionBuy,
			Status:     models.OrderFailed,
			StrategyID: signal.StrategyID,
			CreatedAt:  t.now(),
		})
		return false, fmt.Errorf("buy %s: %w", signal.Market, err)
	}
	order.StrategyID = signal.StrategyID

	now := t.now()
	position := &models.Position{
		PositionID:     uuid.NewString(),
		Market:         signal.Market,
		StrategyID:     signal.StrategyID,
		EntryPrice:     order.Price,
		Quantity:       order.Quantity,
		TotalInvested:  order.TotalAmount,
		CurrentPrice:   order.Price,
		CurrentValue:   order.TotalAmount,
		StopLoss:       signal.StopLoss,
		TakeProfit:     signal.TakeProfit,
		TimeLimitHours: signal.TimeLimitHours,
		EntryTime:      now,
		LastUpdated:    now,
		StrategyName:   signal.StrategyID,
		Reasoning:      signal.Reasoning,
	}

	t.mu.Lock()
	t.recordOrderLocked(*order)
	t.positions[position.PositionID] = position
	t.dailyTradeCount++
	t.lastTradeTime[signal.Market] = now
	t.mu.Unlock()

	t.savePositions()
	t.logger.Info().Str("market", signal.Market).Float64("amount", krwAmount).
		Float64("quantity", order.Quantity).Str("strategy", signal.StrategyID).
		Msg("buy filled")
	return true, nil
}

func (t *Trader) executeSell(ctx context.Context, signal *models.StrategySignal) (bool, error) {
	position := t.PositionByMarket(signal.Market)
	if position == nil {
		t.logger.Warn().Str("market", signal.Market).Msg("no position to sell")
		return false, nil
	}
	return t.closePosition(ctx, position, ExitSignal, signal.Reasoning)
}

// ClosePosition closes the position in the given market for an external
// reason, typically a risk-manager force close.
func (t *Trader) ClosePosition(ctx context.Context, market, reason, detail string) (bool, error) {
	position := t.PositionByMarket(market)
	if position == nil {
		return false, nil
	}
	return t.closePosition(ctx, position, reason, detail)
}

func (t *Trader) closePosition(ctx context.Context, position *models.Position, reason, detail string) (bool, error) {
	currency := strings.TrimPrefix(position.Market, "KRW-")
	quantity := position.Quantity

	balances, err := t.exec.Balances(ctx)
	if err == nil {
		actual := 0.0
		for _, b := range balances {
			if b.Currency == currency {
				actual = b.Amount
				break
			}
		}
		if actual <= minCoinBalance {
			t.logger.Warn().Str("market", position.Market).
				Msg("no exchange balance, dropping stale position")
			t.removePosition(position.PositionID)
			return false, nil
		}
		quantity = actual
	}

	order, err := t.exec.SellMarket(ctx, position.Market, quantity)
	if err != nil {
		t.recordOrder(models.Order{
			OrderID:    uuid.NewString(),
			Market:     position.Market,
			Side:       models.ActionSell,
			Status:     models.OrderFailed,
			StrategyID: position.StrategyID,
			CreatedAt:  t.now(),
		})
		return false, fmt.Errorf("sell %s: %w", position.Market, err)
	}
	order.StrategyID = position.StrategyID

	profitAmount := order.TotalAmount - position.TotalInvested
	profitRatio := 0.0
	if position.TotalInvested > 0 {
		profitRatio = profitAmount / position.TotalInvested
	}

	now := t.now()
	t.mu.Lock()
	t.recordOrderLocked(*order)
	t.dailyTradeCount++
	t.dailyLoss += profitRatio
	t.lastTradeTime[position.Market] = now
	onTrade := t.onTrade
	t.mu.Unlock()

	t.removePosition(position.PositionID)

	result := &models.TradeResult{
		PositionID:     position.PositionID,
		Market:         position.Market,
		StrategyID:     position.StrategyID,
		EntryTime:      position.EntryTime,
		ExitTime:       now,
		DurationHours:  now.Sub(position.EntryTime).Hours(),
		EntryPrice:     position.EntryPrice,
		ExitPrice:      order.Price,
		Quantity:       order.Quantity,
		InvestedAmount: position.TotalInvested,
		ReceivedAmount: order.TotalAmount,
		ProfitAmount:   profitAmount,
		ProfitRatio:    profitRatio,
		ExitReason:     reason,
		Reasoning:      position.Reasoning,
	}

	t.logger.Info().Str("market", position.Market).Str("reason", reason).
		Str("detail", detail).Float64("profit_ratio", profitRatio).
		Float64("profit", profitAmount).Msg("position closed")

	if onTrade != nil {
		onTrade(result)
	}
	return true, nil
}

// UpdatePositions refreshes current prices and unrealized PnL on all
// open positions.
func (t *Trader) UpdatePositions(ctx context.Context) error {
	markets := t.openMarkets()
	if len(markets) == 0 {
		return nil
	}

	prices, err := t.market.GetCurrentPrices(ctx, markets)
	if err != nil {
		return fmt.Errorf("refreshing prices: %w", err)
	}

	now := t.now()
	t.mu.Lock()
	for _, p := range t.positions {
		price, ok := prices[p.Market]
		if !ok || price <= 0 {
			continue
		}
		p.CurrentPrice = price
		p.CurrentValue = p.Quantity * price
		p.UnrealizedPnL = p.CurrentValue - p.TotalInvested
		if p.TotalInvested > 0 {
			p.UnrealizedPnLRatio = p.UnrealizedPnL / p.TotalInvested
		}
		p.LastUpdated = now
	}
	t.mu.Unlock()

	t.savePositions()
	return nil
}

// CheckExitConditions closes every position whose exit rule fires.
// Returns the number of positions closed.
func (t *Trader) CheckExitConditions(ctx context.Context) int {
	type exit struct {
		position *models.Position
		reason   string
		detail   string
	}

	now := t.now()
	var exits []exit

	t.mu.RLock()
	for _, p := range t.positions {
		if reason, detail, ok := exitRule(p, now); ok {
			exits = append(exits, exit{position: p, reason: reason, detail: detail})
		}
	}
	t.mu.RUnlock()

	closed := 0
	for _, e := range exits {
		ok, err := t.closePosition(ctx, e.position, e.reason, e.detail)
		if err != nil {
			t.logger.Error().Err(err).Str("market", e.position.Market).
				Msg("exit close failed")
			continue
		}
		if ok {
			closed++
		}
	}
	return closed
}

// exitRule decides whether a position must close now.
func exitRule(p *models.Position, now time.Time) (reason, detail string, ok bool) {
	if p.StopLoss > 0 && p.CurrentPrice <= p.StopLoss {
		return ExitStopLoss,
			fmt.Sprintf("%.0f <= %.0f", p.CurrentPrice, p.StopLoss), true
	}
	if p.TakeProfit > 0 && p.CurrentPrice >= p.TakeProfit {
		return ExitTakeProfit,
			fmt.Sprintf("%.0f >= %.0f", p.CurrentPrice, p.TakeProfit), true
	}

	hours := p.HoldingHours(now)
	if p.TimeLimitHours > 0 && hours >= p.TimeLimitHours {
		return ExitTimeLimit,
			fmt.Sprintf("%.1fh past the %.0fh strategy limit", hours, p.TimeLimitHours), true
	}
	if hours >= 72 {
		return ExitForceTime, fmt.Sprintf("%.1fh held", hours), true
	}
	if hours >= 24 && p.UnrealizedPnLRatio < -0.02 {
		return ExitTimeBased,
			fmt.Sprintf("%.1fh at %.2f%%", hours, p.UnrealizedPnLRatio*100), true
	}
	if p.UnrealizedPnLRatio <= -0.10 {
		return ExitEmergency,
			fmt.Sprintf("%.2f%% drop", p.UnrealizedPnLRatio*100), true
	}
	return "", "", false
}

// CloseAllPositions liquidates everything, e.g. on emergency or shutdown.
func (t *Trader) CloseAllPositions(ctx context.Context, reason string) (closed, total int) {
	t.mu.RLock()
	positions := make([]*models.Position, 0, len(t.positions))
	for _, p := range t.positions {
		positions = append(positions, p)
	}
	t.mu.RUnlock()

	total = len(positions)
	for _, p := range positions {
		ok, err := t.closePosition(ctx, p, reason, "close all")
		if err != nil {
			t.logger.Error().Err(err).Str("market", p.Market).Msg("emergency close failed")
			continue
		}
		if ok {
			closed++
		}
	}
	if total > 0 {
		t.logger.Warn().Int("closed", closed).Int("total", total).
			Str("reason", reason).Msg("close all positions finished")
	}
	return closed, total
}

// SyncBalances reconciles tracked positions with actual exchange
// balances. Stale positions are dropped and quantity drift corrected.
func (t *Trader) SyncBalances(ctx context.Context) error {
	balances, err := t.exec.Balances(ctx)
	if err != nil {
		return fmt.Errorf("fetching balances: %w", err)
	}

	byCurrency := make(map[string]float64, len(balances))
	for _, b := range balances {
		byCurrency[b.Currency] = b.Amount
	}

	var stale []string
	t.mu.Lock()
	for id, p := range t.positions {
		currency := strings.TrimPrefix(p.Market, "KRW-")
		actual := byCurrency[currency]
		if actual <= minCoinBalance {
			stale = append(stale, id)
			continue
		}
		if diff := p.Quantity - actual; diff > minCoinBalance || diff < -minCoinBalance {
			t.logger.Info().Str("market", p.Market).
				Float64("tracked", p.Quantity).Float64("actual", actual).
				Msg("quantity drift corrected")
			p.Quantity = actual
			p.CurrentValue = p.CurrentPrice * actual
		}
	}
	t.mu.Unlock()

	for _, id := range stale {
		t.removePosition(id)
	}
	if len(stale) > 0 {
		t.logger.Warn().Int("removed", len(stale)).Msg("stale positions dropped in sync")
	}
	return nil
}

// Positions returns a snapshot of open positions keyed by id.
func (t *Trader) Positions() map[string]*models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]*models.Position, len(t.positions))
	for id, p := range t.positions {
		copied := *p
		out[id] = &copied
	}
	return out
}

// PositionByMarket returns the open position in a market, or nil.
func (t *Trader) PositionByMarket(market string) *models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.positions {
		if p.Market == market {
			copied := *p
			return &copied
		}
	}
	return nil
}

// PortfolioSummary aggregates open positions plus available capital.
func (t *Trader) PortfolioSummary(ctx context.Context) *models.PortfolioSummary {
	available, err := t.exec.AvailableKRW(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("available KRW lookup failed")
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := &models.PortfolioSummary{
		TotalPositions:   len(t.positions),
		AvailableCapital: available,
		DailyTradeCount:  t.dailyTradeCount,
		DailyLoss:        t.dailyLoss,
		Positions:        make([]models.Position, 0, len(t.positions)),
		LastUpdated:      t.now(),
	}

	for _, p := range t.positions {
		summary.TotalInvested += p.TotalInvested
		summary.TotalCurrentValue += p.CurrentValue
		summary.Positions = append(summary.Positions, *p)
	}
	summary.TotalUnrealizedPnL = summary.TotalCurrentValue - summary.TotalInvested
	if summary.TotalInvested > 0 {
		summary.TotalUnrealizedPnLRatio = summary.TotalUnrealizedPnL / summary.TotalInvested
	}
	return summary
}

// OrderHistory returns up to limit most recent orders, newest last.
func (t *Trader) OrderHistory(limit int) []models.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.orderHistory)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]models.Order, n)
	copy(out, t.orderHistory[len(t.orderHistory)-n:])
	return out
}

// DailyStats reports today's trade count and cumulative profit ratio.
func (t *Trader) DailyStats() (trades int, loss float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dailyTradeCount, t.dailyLoss
}

// ResetDaily clears the daily counters and cooldowns.
func (t *Trader) ResetDaily() {
	t.mu.Lock()
	t.dailyTradeCount = 0
	t.dailyLoss = 0
	t.lastTradeTime = make(map[string]time.Time)
	t.mu.Unlock()
	t.logger.Info().Msg("daily trade limits reset")
}

func (t *Trader) openMarkets() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	markets := make([]string, 0, len(t.positions))
	for _, p := range t.positions {
		markets = append(markets, p.Market)
	}
	return markets
}

func (t *Trader) recordOrder(order models.Order) {
	t.mu.Lock()
	t.recordOrderLocked(order)
	t.mu.Unlock()
}

func (t *Trader) recordOrderLocked(order models.Order) {
	t.orderHistory = append(t.orderHistory, order)
	if len(t.orderHistory) > 1000 {
		t.orderHistory = t.orderHistory[len(t.orderHistory)-1000:]
	}
}

func (t *Trader) removePosition(id string) {
	t.mu.Lock()
	p, ok := t.positions[id]
	if ok {
		delete(t.positions, id)
	}
	t.mu.Unlock()

	if ok {
		t.logger.Info().Str("market", p.Market).Msg("position removed")
		t.savePositions()
	}
}

type positionSnapshot struct {
	Positions   map[string]*models.Position `json:"positions"`
	LastUpdated time.Time                   `json:"last_updated"`
}

func (t *Trader) savePositions() {
	if t.positionsFile == "" {
		return
	}

	t.mu.RLock()
	snapshot := positionSnapshot{
		Positions:   make(map[string]*models.Position, len(t.positions)),
		LastUpdated: t.now(),
	}
	for id, p := range t.positions {
		copied := *p
		snapshot.Positions[id] = &copied
	}
	t.mu.RUnlock()

	if dir := filepath.Dir(t.positionsFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.logger.Error().Err(err).Msg("creating positions dir failed")
			return
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.logger.Error().Err(err).Msg("marshaling positions failed")
		return
	}
	if err := os.WriteFile(t.positionsFile, data, 0o644); err != nil {
		t.logger.Error().Err(err).Msg("writing positions failed")
	}
}

func (t *Trader) loadPositions() error {
	if t.positionsFile == "" {
		return nil
	}

	data, err := os.ReadFile(t.positionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snapshot positionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parsing positions file: %w", err)
	}

	t.mu.Lock()
	for id, p := range snapshot.Positions {
		t.positions[id] = p
	}
	count := len(t.positions)
	t.mu.Unlock()

	if count > 0 {
		t.logger.Info().Int("count", count).Msg("positions restored")
	}
	return nil
}
