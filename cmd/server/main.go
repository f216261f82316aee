package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	server "loopin/server"
	"loopin/server/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := server.Run(ctx, cfg, store, store, store); err != nil {
		log.Fatalf("%v", err)
	}
}
