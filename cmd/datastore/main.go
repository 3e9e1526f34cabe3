// cmd/datastore/main.go
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/toshiishere/network-programming/internal/config"
	"github.com/toshiishere/network-programming/internal/datastore"
	"github.com/toshiishere/network-programming/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	store := datastore.NewStore(cfg.GameLogFile, log)
	if err := store.LoadUsers(cfg.UsersFile); err != nil {
		log.WithError(err).Fatal("failed to load users")
	}

	ln, err := net.Listen("tcp", cfg.DatastoreAddr)
	if err != nil {
		log.WithError(err).Fatalf("failed to listen on %s", cfg.DatastoreAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("data store running on %s", ln.Addr())
	serveErr := datastore.NewServer(store, log).Serve(ctx, ln)

	if err := store.SaveUsers(cfg.UsersFile); err != nil {
		log.WithError(err).Error("failed to save users")
		os.Exit(1)
	}
	if serveErr != nil {
		log.WithError(serveErr).Error("data store exited")
		os.Exit(1)
	}
	log.Info("data store stopped")
}
