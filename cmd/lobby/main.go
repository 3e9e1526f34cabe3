// cmd/lobby/main.go
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/auth"
	"github.com/toshiishere/network-programming/internal/cache"
	"github.com/toshiishere/network-programming/internal/config"
	"github.com/toshiishere/network-programming/internal/database"
	"github.com/toshiishere/network-programming/internal/game"
	"github.com/toshiishere/network-programming/internal/lobby"
	"github.com/toshiishere/network-programming/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Dial(ctx, cfg.DatastoreAddr, cfg.RPCTimeout, log)
	if err != nil {
		log.WithError(err).Fatal("cannot reach data store")
	}
	defer db.Close()

	tickets, err := auth.NewTickets(cfg.TicketTTL)
	if err != nil {
		log.WithError(err).Fatal("failed to create ticket signer")
	}

	var publisher game.Publisher
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Fatal("cannot reach redis")
		}
		defer rdb.Close()
		publisher = cache.NewPublisher(rdb, cfg.HistorianQueueName)
		log.WithField("queue", cfg.HistorianQueueName).Info("publishing match results to redis")
	}

	launcher := game.NewLauncher(game.LauncherConfig{
		Host:       cfg.MatchHost,
		BasePort:   cfg.MatchBasePort,
		RPCTimeout: cfg.RPCTimeout,
		Match: game.Config{
			TickInterval: cfg.TickInterval,
			JoinTimeout:  cfg.MatchJoinTimeout,
			WriteTimeout: cfg.MatchWriteTimeout,
			DropInterval: cfg.DropIntervalFrames,
		},
	}, db, publisher, tickets, log)

	ln, err := net.Listen("tcp", cfg.LobbyAddr)
	if err != nil {
		log.WithError(err).Fatalf("failed to listen on %s", cfg.LobbyAddr)
	}

	err = lobby.NewCoordinator(db, launcher, log).Serve(ctx, ln)
	launcher.Wait()
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("lobby exited")
		os.Exit(1)
	}
	log.Info("lobby stopped")
}
