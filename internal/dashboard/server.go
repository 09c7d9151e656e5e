package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/bot"
	"github.com/coinbot-kr/coinbot/internal/config"
)

// Server exposes the bot's state over HTTP for the web dashboard and
// for scraping. All reads come from the live bot and its store.
type Server struct {
	bot    *bot.Bot
	cfg    *config.DashboardConfig
	router *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the dashboard routes around a running bot.
func NewServer(b *bot.Bot, cfg *config.DashboardConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		bot:    b,
		cfg:    cfg,
		router: router,
		logger: log.With().Str("component", "dashboard").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.GET("/portfolio", s.portfolio)
	api.GET("/trades", s.trades)
	api.GET("/performance", s.performance)
	api.GET("/chart", s.chart)
	api.GET("/status", s.status)
	api.POST("/control/:action", s.control)
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("dashboard listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler returns the underlying router, used by tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) portfolio(c *gin.Context) {
	summary := s.bot.Trader().PortfolioSummary(c.Request.Context())
	c.JSON(http.StatusOK, summary)
}

func (s *Server) trades(c *gin.Context) {
	store := s.bot.Store()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade storage disabled"})
		return
	}

	days := intQuery(c, "days", 30)
	limit := intQuery(c, "limit", 100)
	since := time.Now().UTC().AddDate(0, 0, -days)

	trades, err := store.GetTrades(since, time.Time{}, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("loading trades")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load trades"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(trades),
		"days":   days,
		"trades": trades,
	})
}

func (s *Server) performance(c *gin.Context) {
	tracker := s.bot.Tracker()
	body := gin.H{
		"metrics":    tracker.Calculate(),
		"strategies": tracker.CompareStrategies(),
		"monthly":    tracker.MonthlyBreakdown(),
		"progress":   tracker.Progress(),
	}
	if store := s.bot.Store(); store != nil {
		days := intQuery(c, "days", 30)
		if history, err := store.GetPerformanceHistory(days); err == nil {
			body["history"] = history
		}
	}
	c.JSON(http.StatusOK, body)
}

// chart renders the equity curve to disk and serves the HTML page.
func (s *Server) chart(c *gin.Context) {
	dir := filepath.Join(os.TempDir(), "coinbot-charts")
	path, err := s.bot.Tracker().RenderEquityChart(dir)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.File(path)
}

func (s *Server) status(c *gin.Context) {
	st := s.bot.Status()
	body := gin.H{
		"status":             "running",
		"bot":                st,
		"database_connected": s.bot.Store() != nil,
		"refresh_seconds":    s.cfg.RefreshSeconds,
		"server_time":        time.Now().UTC(),
	}
	if store := s.bot.Store(); store != nil {
		since := time.Now().UTC().Add(-24 * time.Hour)
		if events, err := store.GetRiskEvents(since, 20); err == nil {
			body["risk_events"] = events
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) control(c *gin.Context) {
	action := c.Param("action")
	switch action {
	case "pause":
		s.bot.Pause()
	case "resume":
		s.bot.Resume()
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("unknown control action %q", action),
		})
		return
	}

	s.logger.Info().Str("action", action).Msg("control command applied")
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"action":    action,
		"paused":    s.bot.Paused(),
		"timestamp": time.Now().UTC(),
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
