package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newswire-bots/newsrelay/internal/app"
	"github.com/newswire-bots/newsrelay/internal/config"
	"github.com/newswire-bots/newsrelay/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scraper start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("scraper starting", "config", cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scraper, err := app.NewScraper(cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize scraper", "error", err)
		return err
	}

	if err := scraper.Run(ctx); err != nil {
		return fmt.Errorf("scraper run: %w", err)
	}

	return nil
}
