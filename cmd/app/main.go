package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"conuco-bot/internal/cache"
	"conuco-bot/internal/config"
	"conuco-bot/internal/convo"
	"conuco-bot/internal/httpserver"
	"conuco-bot/internal/logging"
	"conuco-bot/internal/metrics"
	"conuco-bot/internal/repo"
	"conuco-bot/internal/tg"
	"conuco-bot/internal/wa"
	"conuco-bot/internal/weather"
	"conuco-bot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting conuco-bot", "env", cfg.AppEnv)

	if cfg.PublicBaseURL != "" {
		webhookURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/webhook/telegram"
		logger.Info("public base url configured", "base_url", cfg.PublicBaseURL, "webhook_url", webhookURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var repository repo.Repository
	if cfg.DatabaseURL != "" {
		repository, err = repo.New(ctx, cfg.DatabaseURL, cfg.DBSchema, logger)
	} else {
		logger.Info("DATABASE_URL not set, using local sqlite", "path", cfg.SQLitePath)
		repository, err = repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	}
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	weatherClient := weather.New(weather.Config{
		BaseURL:  cfg.WeatherBaseURL,
		Timeout:  cfg.WeatherTimeout,
		CacheTTL: cfg.WeatherCacheTTL,
	}, logger, metricRegistry, redisClient)

	var waClient *wa.Client
	if cfg.WhatsAppEnabled {
		waClient, err = wa.New(ctx, wa.Config{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
			Metrics:   metricRegistry,
		}, logger)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()
	}

	var sender convo.TextSender
	if waClient != nil {
		sender = waClient
	}
	convoEngine := convo.New(repository, weatherClient, sender, redisClient, metricRegistry, logger, convo.EngineConfig{
		FeedbackEvery: cfg.FeedbackEvery,
		RetailMarkup:  cfg.RetailMarkup,
	})
	if waClient != nil {
		waClient.SetMessageProcessor(convoEngine)
	}

	handlers := httpserver.Handlers{}
	if cfg.TelegramBotToken != "" {
		tgClient := tg.New(tg.Config{
			Token:   cfg.TelegramBotToken,
			Timeout: cfg.TelegramTimeout,
		}, logger, metricRegistry)
		handlers.TelegramWebhook = tg.NewWebhookHandler(logger, metricRegistry, cfg.TelegramSecretToken, convoEngine, tgClient)
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, telegram channel disabled")
	}

	if waClient != nil {
		waCtx, waCancel := context.WithCancel(ctx)
		defer waCancel()
		go func() {
			if err := waClient.Start(waCtx); err != nil {
				logger.Error("whatsapp client stopped", "error", err)
				stop()
			}
		}()
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, handlers, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Repository: repository,
		Redis:      redisClient,
		Weather:    weatherClient,
		Convo:      convoEngine,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
