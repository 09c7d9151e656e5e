package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/coinbot-kr/coinbot/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleTrade(id string, exit time.Time, profitRatio float64) *models.TradeResult {
	return &models.TradeResult{
		PositionID:     id,
		Market:         "KRW-BTC",
		StrategyID:     "base_MOMENTUM",
		EntryTime:      exit.Add(-4 * time.Hour),
		ExitTime:       exit,
		DurationHours:  4,
		EntryPrice:     100_000,
		ExitPrice:      100_000 * (1 + profitRatio),
		Quantity:       1,
		InvestedAmount: 100_000,
		ReceivedAmount: 100_000 * (1 + profitRatio),
		ProfitAmount:   100_000 * profitRatio,
		ProfitRatio:    profitRatio,
		ExitReason:     "TAKE_PROFIT",
	}
}

func TestSaveAndGetTrades(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	for i, r := range []float64{0.05, -0.02, 0.03} {
		trade := sampleTrade(
			string(rune('a'+i)), now.Add(time.Duration(i)*time.Hour), r)
		if err := db.SaveTrade(trade); err != nil {
			t.Fatalf("SaveTrade() error = %v", err)
		}
	}

	trades, err := db.GetTrades(time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("GetTrades() error = %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("GetTrades() = %d trades, want 3", len(trades))
	}
	if trades[0].ProfitRatio != 0.05 {
		t.Errorf("first trade ratio = %.2f, want 0.05 (oldest first)", trades[0].ProfitRatio)
	}
	if trades[0].Market != "KRW-BTC" || trades[0].ExitReason != "TAKE_PROFIT" {
		t.Errorf("trade fields lost: %+v", trades[0])
	}
}

func TestGetTradesWindow(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	old := sampleTrade("old", now.Add(-48*time.Hour), 0.01)
	recent := sampleTrade("recent", now, 0.02)
	if err := db.SaveTrade(old); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveTrade(recent); err != nil {
		t.Fatal(err)
	}

	trades, err := db.GetTrades(now.Add(-24*time.Hour), time.Time{}, 0)
	if err != nil {
		t.Fatalf("GetTrades() error = %v", err)
	}
	if len(trades) != 1 || trades[0].PositionID != "recent" {
		t.Errorf("windowed trades = %v, want only the recent one", trades)
	}
}

func TestGetTradeStats(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	for i, r := range []float64{0.05, -0.02, 0.03, 0.04} {
		if err := db.SaveTrade(sampleTrade(
			string(rune('a'+i)), now.Add(time.Duration(i)*time.Minute), r)); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := db.GetTradeStats(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetTradeStats() error = %v", err)
	}
	if stats.TotalTrades != 4 || stats.WinCount != 3 {
		t.Errorf("stats = %d trades / %d wins, want 4/3", stats.TotalTrades, stats.WinCount)
	}
	if stats.WinRate != 0.75 {
		t.Errorf("WinRate = %.2f, want 0.75", stats.WinRate)
	}
}

func TestPositionLifecycle(t *testing.T) {
	db := openTestDB(t)

	p := &models.Position{
		PositionID:    "pos1",
		Market:        "KRW-ETH",
		StrategyID:    "base_TREND",
		EntryPrice:    5_000_000,
		Quantity:      0.02,
		TotalInvested: 100_000,
		CurrentPrice:  5_000_000,
		StopLoss:      4_600_000,
		TakeProfit:    6_000_000,
		EntryTime:     time.Now().UTC(),
	}
	if err := db.SavePosition(p); err != nil {
		t.Fatalf("SavePosition() error = %v", err)
	}

	open, err := db.GetOpenPositions()
	if err != nil {
		t.Fatalf("GetOpenPositions() error = %v", err)
	}
	if len(open) != 1 || open[0].Market != "KRW-ETH" {
		t.Fatalf("open positions = %v, want one KRW-ETH", open)
	}

	if err := db.ClosePosition("pos1"); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	open, _ = db.GetOpenPositions()
	if len(open) != 0 {
		t.Errorf("open positions = %d after close, want 0", len(open))
	}
}

func TestDailyPerformanceUpsert(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)

	if err := db.SaveDailyPerformance(day, 1_050_000, 50_000, 0.05, 8, 5); err != nil {
		t.Fatalf("SaveDailyPerformance() error = %v", err)
	}
	// same day again overwrites
	if err := db.SaveDailyPerformance(day, 1_060_000, 60_000, 0.06, 9, 6); err != nil {
		t.Fatalf("SaveDailyPerformance() upsert error = %v", err)
	}

	history, err := db.GetPerformanceHistory(30)
	if err != nil {
		t.Fatalf("GetPerformanceHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d rows, want 1 after upsert", len(history))
	}
	if history[0].PortfolioValue != 1_060_000 || history[0].TradeCount != 9 {
		t.Errorf("history row = %+v, want the updated values", history[0])
	}
}

func TestRiskEvents(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveRiskEvent("EMERGENCY_ENTER", "CRITICAL", "daily loss cap"); err != nil {
		t.Fatalf("SaveRiskEvent() error = %v", err)
	}
	if err := db.SaveRiskEvent("EMERGENCY_EXIT", "INFO", "daily reset"); err != nil {
		t.Fatal(err)
	}

	events, err := db.GetRiskEvents(time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("GetRiskEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].EventType != "EMERGENCY_EXIT" {
		t.Errorf("newest event = %s, want EMERGENCY_EXIT first", events[0].EventType)
	}
}

func TestPurgeOldTrades(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	if err := db.SaveTrade(sampleTrade("ancient", now.AddDate(-1, -1, 0), 0.01)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveTrade(sampleTrade("fresh", now, 0.02)); err != nil {
		t.Fatal(err)
	}

	deleted, err := db.PurgeOldTrades(365 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldTrades() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	trades, _ := db.GetTrades(time.Time{}, time.Time{}, 0)
	if len(trades) != 1 || trades[0].PositionID != "fresh" {
		t.Errorf("remaining trades = %v, want only the fresh one", trades)
	}
}

func TestBackupCopiesFile(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveRiskEvent("TEST", "INFO", "backup check"); err != nil {
		t.Fatal(err)
	}

	path, err := db.Backup(t.TempDir())
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	restored, err := New(path)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()

	events, err := restored.GetRiskEvents(time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("backup events = %d, want 1", len(events))
	}
}
