package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"domain-check-gateway/internal/api"
	"domain-check-gateway/internal/api/handlers"
	"domain-check-gateway/internal/checker"
	"domain-check-gateway/internal/config"
	"domain-check-gateway/internal/db"
	"domain-check-gateway/internal/metrics"
	"domain-check-gateway/internal/outbox"
	"domain-check-gateway/internal/ratelimit"
	"domain-check-gateway/internal/stats"
	redisstore "domain-check-gateway/internal/storage/redis"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

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

	// Optional redis result cache
	var cache checker.Cache
	if cfg.Redis.URL != "" {
		redisClient := redisstore.NewClient(cfg.Redis.URL, cfg.Redis.CacheTTL)
		defer redisClient.Close()
		cache = redisClient
	}

	chk := checker.New(checker.Config{
		Endpoint:      cfg.Upstream.Endpoint,
		Timeout:       cfg.Upstream.Timeout,
		BatchSize:     cfg.Upstream.BatchSize,
		RatePerSecond: cfg.Upstream.RatePerSecond,
		Burst:         cfg.Upstream.Burst,
	}, cache, logger)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	limiter := ratelimit.New(repo, ratelimit.Config{
		Quota:    cfg.RateLimit.Quota,
		Window:   cfg.RateLimit.Window,
		FailOpen: cfg.RateLimit.FailOpen,
	}, logger)

	aggregator := stats.New(repo, logger)
	box := outbox.New(repo, logger)

	handler := handlers.New(limiter, chk, aggregator, box, repo, collector, cfg.RateLimit.MaxPerRequest, logger)
	router := api.NewRouter(handler, cfg.Server.Mode, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
