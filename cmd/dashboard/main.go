package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/bot"
	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/internal/dashboard"
	"github.com/coinbot-kr/coinbot/internal/logger"
)

// Standalone dashboard process. It reads the shared trade store but does
// not run the trading loop, so live position data comes up empty unless
// the bot serves its own dashboard.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFile)

	if err := cfg.Validate(false); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	b, err := bot.New(cfg, bot.ModeSafe)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing bot state")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := dashboard.NewServer(b, &cfg.Dashboard)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("dashboard exited with error")
	}
}
