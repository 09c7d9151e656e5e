package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/models"
)

// fakeNotifier records every text alert, for asserting on cycle behavior.
type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

var _ models.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) NotifyTrade(ctx context.Context, trade *models.TradeResult) error {
	return nil
}

func (f *fakeNotifier) NotifyError(ctx context.Context, component string, err error) error {
	return nil
}

func (f *fakeNotifier) NotifyText(ctx context.Context, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) NotifyPortfolio(ctx context.Context, summary *models.PortfolioSummary) error {
	return nil
}

func (f *fakeNotifier) NotifyStatus(ctx context.Context, text string) error {
	return f.NotifyText(ctx, text)
}

func (f *fakeNotifier) Enabled() bool { return true }

func (f *fakeNotifier) sawText(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, txt := range f.texts {
		if strings.Contains(txt, substr) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment:  "development",
		StrategyFile: filepath.Join(dir, "strategies.json"),
		Trading: config.TradingConfig{
			InitialCapital:    1_000_000,
			TargetCapital:     3_000_000,
			MaxPositions:      5,
			MaxCapitalPerCoin: 0.2,
			MaxDailyLoss:      0.08,
			MaxPositionLoss:   0.03,
			StopLossRatio:     0.08,
			TakeProfitRatio:   0.20,
			AnalysisIntervalS: 120,
			MinOrderAmount:    5_000,
			MaxDailyTrades:    20,
			TradeCooldownS:    180,
			UpbitFeeRate:      0.0005,
		},
		Analysis: config.AnalysisConfig{
			TargetMarkets: []string{"KRW-BTC", "KRW-ETH"},
			Timeframes:    []string{"1m", "5m"},
			CandleCount:   100,
			MinScore:      75,
			MinConfidence: 0.6,
		},
		Database: config.DatabaseConfig{
			Path:            filepath.Join(dir, "coinbot.db"),
			BackupIntervalH: 24,
			RetentionDays:   365,
		},
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New(testConfig(t), "turbo"); err == nil {
		t.Fatal("New() with unknown mode, want error")
	}
}

func TestNewLiveRequiresKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.UpbitAccessKey = ""
	cfg.UpbitSecretKey = ""
	if _, err := New(cfg, ModeLive); err == nil {
		t.Fatal("New(live) without api keys, want error")
	}
}

func TestNewSafeModeBuildsComponents(t *testing.T) {
	b, err := New(testConfig(t), ModeSafe)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if b.store != nil {
			b.store.Close()
		}
	})

	if b.trader == nil || b.risk == nil || b.engine == nil || b.analyzer == nil {
		t.Fatal("required components missing after New()")
	}
	if b.store == nil {
		t.Error("store = nil, want sqlite store in temp dir")
	}
	if b.notifier.Enabled() {
		t.Error("notifier enabled without credentials")
	}
	if b.tracker.TradeCount() != 0 {
		t.Errorf("tracker preloaded %d trades, want 0", b.tracker.TradeCount())
	}
}

func TestPauseResume(t *testing.T) {
	b, err := New(testConfig(t), ModeSafe)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.store.Close() })

	if b.Paused() {
		t.Fatal("new bot starts paused")
	}
	b.Pause()
	if !b.Paused() {
		t.Error("Paused() = false after Pause()")
	}
	b.Resume()
	if b.Paused() {
		t.Error("Paused() = true after Resume()")
	}
}

func TestStatusSnapshot(t *testing.T) {
	b, err := New(testConfig(t), ModeSafe)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.store.Close() })

	s := b.Status()
	if s.Mode != ModeSafe {
		t.Errorf("Status().Mode = %q, want %q", s.Mode, ModeSafe)
	}
	if s.OpenPositions != 0 || s.CycleCount != 0 {
		t.Errorf("fresh bot status = %+v, want zero positions and cycles", s)
	}
	if s.TotalStrategies == 0 {
		t.Error("Status().TotalStrategies = 0, want seeded strategies")
	}
	if s.UptimeSeconds != 0 {
		t.Errorf("UptimeSeconds = %v before Run(), want 0", s.UptimeSeconds)
	}
}

func TestHandleTradeClosedFansOut(t *testing.T) {
	b, err := New(testConfig(t), ModeSafe)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.store.Close() })

	exit := time.Now().UTC()
	trade := &models.TradeResult{
		PositionID:     "pos1",
		Market:         "KRW-BTC",
		StrategyID:     "base_MOMENTUM",
		EntryTime:      exit.Add(-2 * time.Hour),
		ExitTime:       exit,
		DurationHours:  2,
		EntryPrice:     100_000,
		ExitPrice:      105_000,
		Quantity:       1,
		InvestedAmount: 100_000,
		ReceivedAmount: 105_000,
		ProfitAmount:   5_000,
		ProfitRatio:    0.05,
		ExitReason:     "TAKE_PROFIT",
	}
	b.handleTradeClosed(trade)

	if b.tracker.TradeCount() != 1 {
		t.Errorf("tracker has %d trades, want 1", b.tracker.TradeCount())
	}
	stored, err := b.store.GetTrades(time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("GetTrades() error = %v", err)
	}
	if len(stored) != 1 || stored[0].PositionID != "pos1" {
		t.Errorf("stored trades = %v, want the closed trade", stored)
	}
}

// A paper account funded with 1,000,000 KRW against a 2,000,000 KRW daily
// baseline reads as a 50% daily loss once the cycle syncs live capital.
func TestCycleSyncsCapitalIntoRiskChecks(t *testing.T) {
	b, err := New(testConfig(t), ModeSafe)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.store.Close() })

	fake := &fakeNotifier{}
	b.notifier = fake
	b.risk.ResetDaily(2_000_000)

	// cancelled context keeps the cycle off the exchange; the local
	// capital sync and risk checks still run
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.runCycle(ctx)

	m := b.risk.CalculateRiskMetrics(context.Background(), nil)
	if m.DailyPnLRatio > -0.49 || m.DailyPnLRatio < -0.51 {
		t.Errorf("DailyPnLRatio = %.2f after cycle, want about -0.50", m.DailyPnLRatio)
	}
	if !b.risk.EmergencyMode() {
		t.Error("emergency mode not entered on a 50 percent daily drawdown")
	}
	if !fake.sawText("EMERGENCY") {
		t.Error("no emergency notification sent")
	}
}

func TestKSTDayBoundary(t *testing.T) {
	// 14:59 UTC Aug 25 is 23:59 KST Aug 25; 15:00 UTC is midnight Aug 26.
	before := time.Date(2026, 8, 25, 14, 59, 0, 0, time.UTC)
	after := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)

	d1 := kstDay(before)
	d2 := kstDay(after)
	if d1.Day() != 25 {
		t.Errorf("kstDay(14:59 UTC) = day %d, want 25", d1.Day())
	}
	if d2.Day() != 26 {
		t.Errorf("kstDay(15:00 UTC) = day %d, want 26", d2.Day())
	}
	if !d2.After(d1) {
		t.Error("midnight KST boundary not detected")
	}
}

func TestDailyResetSkippedWithinSameDay(t *testing.T) {
	b, err := New(testConfig(t), ModeSafe)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.store.Close() })

	before := b.lastReset
	b.dailyResetIfNeeded(context.Background())
	if !b.lastReset.Equal(before) {
		t.Error("lastReset moved without crossing midnight KST")
	}
}
