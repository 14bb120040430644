package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/pr-poehali-dev/telegram-feedback-bot/botapi"
	"github.com/pr-poehali-dev/telegram-feedback-bot/constructor"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/bootstrap"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/config"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/logger"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/telegram"
	"github.com/pr-poehali-dev/telegram-feedback-bot/server"
	"github.com/pr-poehali-dev/telegram-feedback-bot/storage"
	"github.com/pr-poehali-dev/telegram-feedback-bot/webhook"
)

const (
	defaultConfigPath = "config/config.yaml"
	shutdownTimeout   = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("feedbot: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer boot.DB.Close()
	defer func() { _ = logger.Shutdown() }()

	bots := storage.NewBotStore(boot.DB)
	convos := storage.NewConversationStore(boot.DB)
	messages := storage.NewMessageStore(boot.DB)

	client := telegram.NewClient(cfg.Telegram.APIBaseURL)
	machine := constructor.NewMachine(bots, messages, client)
	dispatcher := webhook.NewDispatcher(
		cfg.Telegram.ConstructorToken,
		cfg.Webhook.PublicURL,
		client, machine, bots, convos, messages,
	)

	apiHandler := botapi.NewHandler(bots, client, client, dispatcher.WebhookURL)
	router := server.NewRouter(webhook.NewHandler(dispatcher), apiHandler)
	srv := server.New(cfg.HTTP.Listen, cfg.HTTP.Port, router)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Webhook.RegisterOnStart {
		regCtx, regCancel := context.WithTimeout(ctx, 10*time.Second)
		url := dispatcher.WebhookURL(cfg.Telegram.ConstructorToken)
		if err := client.SetWebhook(regCtx, cfg.Telegram.ConstructorToken, url); err != nil {
			regCancel()
			return err
		}
		regCancel()
		logger.App.LogAttrs(ctx, slog.LevelInfo, "constructor webhook registered",
			slog.String("public_url", cfg.Webhook.PublicURL))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.App.LogAttrs(context.Background(), slog.LevelInfo, "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
