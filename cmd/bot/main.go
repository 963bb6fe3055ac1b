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
	"github.com/newswire-bots/newsrelay/pkg/publisher"
	"github.com/newswire-bots/newsrelay/pkg/publisher/bluesky"
	"github.com/newswire-bots/newsrelay/pkg/publisher/mastodon"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bot start failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Drains the news stream into a social platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "bluesky",
			Short: "Publish queued posts to Bluesky",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBot(cmd.Context(), buildBluesky)
			},
		},
		&cobra.Command{
			Use:   "mastodon",
			Short: "Publish queued posts to Mastodon",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBot(cmd.Context(), buildMastodon)
			},
		},
	)

	return root
}

// builderFn constructs the platform publisher once at startup.
type builderFn func(ctx context.Context, cfg *config.Config, log logger.Logger) (publisher.Publisher, error)

func runBot(ctx context.Context, build builderFn) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("bot starting", "config", cfg.AppName)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub, err := build(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to build publisher", "error", err)
		return err
	}

	bot, err := app.NewBot(ctx, cfg, pub, log)
	if err != nil {
		logger.ErrorObj("failed to initialize bot", "error", err)
		return err
	}

	if err := bot.Run(ctx); err != nil {
		return fmt.Errorf("bot run: %w", err)
	}

	return nil
}

func buildBluesky(ctx context.Context, cfg *config.Config, log logger.Logger) (publisher.Publisher, error) {
	if cfg.BlueskyHandle == "" || cfg.BlueskyPassword == "" {
		return nil, fmt.Errorf("BLUESKY_HANDLE and BLUESKY_PASSWORD are required")
	}
	return bluesky.New(ctx, cfg.BlueskyHost, cfg.BlueskyHandle, cfg.BlueskyPassword, nil, log)
}

func buildMastodon(_ context.Context, cfg *config.Config, log logger.Logger) (publisher.Publisher, error) {
	if cfg.MastodonAccessToken == "" {
		return nil, fmt.Errorf("MASTODON_ACCESS_TOKEN is required")
	}
	return mastodon.New(cfg.MastodonServer, cfg.MastodonAccessToken, cfg.MastodonLanguage, nil, log), nil
}
