package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coinbot-kr/coinbot/internal/bot"
	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
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
			TargetMarkets: []string{"KRW-BTC"},
			Timeframes:    []string{"1m"},
			CandleCount:   100,
			MinScore:      75,
			MinConfidence: 0.6,
		},
		Database: config.DatabaseConfig{
			Path:            filepath.Join(dir, "coinbot.db"),
			BackupIntervalH: 24,
			RetentionDays:   365,
		},
		Dashboard: config.DashboardConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RefreshSeconds: 30,
		},
	}

	b, err := bot.New(cfg, bot.ModeSafe)
	if err != nil {
		t.Fatalf("bot.New() error = %v", err)
	}
	t.Cleanup(func() {
		if b.Store() != nil {
			b.Store().Close()
		}
	})
	return NewServer(b, &cfg.Dashboard)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "coinbot_") {
		t.Error("prometheus output missing coinbot metrics")
	}
}

func TestPortfolioEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/api/portfolio")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/portfolio = %d, want 200", w.Code)
	}

	var body struct {
		TotalPositions   int     `json:"total_positions"`
		AvailableCapital float64 `json:"available_capital"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding portfolio: %v", err)
	}
	if body.TotalPositions != 0 {
		t.Errorf("TotalPositions = %d, want 0", body.TotalPositions)
	}
	if body.AvailableCapital != 1_000_000 {
		t.Errorf("AvailableCapital = %.0f, want paper balance 1000000", body.AvailableCapital)
	}
}

func TestTradesEndpointEmpty(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/api/trades?days=7&limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/trades = %d, want 200", w.Code)
	}

	var body struct {
		Count int `json:"count"`
		Days  int `json:"days"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding trades: %v", err)
	}
	if body.Count != 0 || body.Days != 7 {
		t.Errorf("trades body = %+v, want 0 trades over 7 days", body)
	}
}

func TestPerformanceEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/api/performance")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/performance = %d, want 200", w.Code)
	}
	for _, key := range []string{"metrics", "strategies", "monthly", "progress"} {
		if !strings.Contains(w.Body.String(), `"`+key+`"`) {
			t.Errorf("performance body missing %q", key)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/status = %d, want 200", w.Code)
	}

	var body struct {
		Status            string `json:"status"`
		DatabaseConnected bool   `json:"database_connected"`
		RefreshSeconds    int    `json:"refresh_seconds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if body.Status != "running" || !body.DatabaseConnected || body.RefreshSeconds != 30 {
		t.Errorf("status body = %+v", body)
	}
}

func TestControlPauseResume(t *testing.T) {
	s := newTestServer(t)

	post := func(action string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/control/"+action, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w
	}

	w := post("pause")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/control/pause = %d, want 200", w.Code)
	}
	if !s.bot.Paused() {
		t.Error("bot not paused after control call")
	}

	w = post("resume")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/control/resume = %d, want 200", w.Code)
	}
	if s.bot.Paused() {
		t.Error("bot still paused after resume")
	}

	w = post("selfdestruct")
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST unknown action = %d, want 400", w.Code)
	}
}

func TestIntQueryFallbacks(t *testing.T) {
	s := newTestServer(t)

	// bad values fall back to defaults rather than erroring
	w := get(t, s, "/api/trades?days=-3&limit=zero")
	if w.Code != http.StatusOK {
		t.Fatalf("GET with bad params = %d, want 200", w.Code)
	}
	var body struct {
		Days int `json:"days"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Days != 30 {
		t.Errorf("days = %d, want default 30", body.Days)
	}
}

func TestChartEndpoint(t *testing.T) {
	s := newTestServer(t)

	if w := get(t, s, "/api/chart"); w.Code != http.StatusNotFound {
		t.Fatalf("GET /api/chart with no trades = %d, want 404", w.Code)
	}

	exit := time.Now().UTC()
	s.bot.Tracker().AddTrade(models.TradeResult{
		PositionID:     "pos1",
		Market:         "KRW-BTC",
		StrategyID:     "base_MOMENTUM",
		EntryTime:      exit.Add(-2 * time.Hour),
		ExitTime:       exit,
		InvestedAmount: 100_000,
		ReceivedAmount: 105_000,
		ProfitAmount:   5_000,
		ProfitRatio:    0.05,
	})

	w := get(t, s, "/api/chart")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/chart = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Equity Curve") {
		t.Error("chart page missing the equity curve title")
	}
}
