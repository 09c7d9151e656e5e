package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/internal/bot"
	"github.com/coinbot-kr/coinbot/internal/config"
	"github.com/coinbot-kr/coinbot/internal/dashboard"
	"github.com/coinbot-kr/coinbot/internal/logger"
)

func main() {
	mode := flag.String("mode", bot.ModeSafe, "run mode: live, safe, check or once")
	withDash := flag.Bool("dash", true, "serve the web dashboard in-process")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFile)

	if err := cfg.Validate(*mode == bot.ModeLive); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	b, err := bot.New(cfg, *mode)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *withDash && *mode != bot.ModeCheck {
		srv := dashboard.NewServer(b, &cfg.Dashboard)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("dashboard server")
			}
		}()
	}

	if err := b.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("bot exited with error")
	}
}
