// cmd/historian/main.go is an asynchronous historian service that pops finished
// match results from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/toshiishere/network-programming/internal/cache"
	"github.com/toshiishere/network-programming/internal/config"
	"github.com/toshiishere/network-programming/internal/historian"
	"github.com/toshiishere/network-programming/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, redisAddr, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Fatal("cannot reach redis")
	}
	defer rdb.Close()

	pool, err := historian.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("cannot reach postgres")
	}
	defer pool.Close()

	sink := historian.NewPostgresSink(pool)
	if err := sink.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("failed to create schema")
	}

	svc := historian.NewService(
		historian.NewRedisQueue(rdb, cfg.HistorianQueueName),
		sink,
		cfg.HistorianBatchSize,
		cfg.HistorianFlush,
		log,
	)
	log.WithField("queue", cfg.HistorianQueueName).Info("historian running")
	svc.Run(ctx)
	log.Info("historian stopped")
}
