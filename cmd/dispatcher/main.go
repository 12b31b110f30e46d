package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"domain-check-gateway/internal/config"
	"domain-check-gateway/internal/db"
	"domain-check-gateway/internal/dispatcher"
	"domain-check-gateway/internal/metrics"
	"domain-check-gateway/internal/notify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.Webhook.URL == "" {
		logger.Fatal("webhook URL is required, set DISCORD_WEBHOOK_URL")
	}

	// Database
	database, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	repo := db.NewRepository(database)

	sender := notify.NewWebhook(notify.Config{
		URL:         cfg.Webhook.URL,
		InlineLimit: cfg.Webhook.InlineLimit,
		Timeout:     cfg.Webhook.Timeout,
	}, logger)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	d := dispatcher.New(repo, sender, collector, cfg.Webhook.FlushInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down dispatcher...")
	cancel()
	logger.Info("Dispatcher stopped")
}
