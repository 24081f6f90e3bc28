package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragbridge/app/server"
	"ragbridge/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("error loading configuration: ", err)
	}
	slog.SetDefault(config.NewLogger(cfg.Log, os.Stdout))

	ctx := context.Background()
	s, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatal("error building server: ", err)
	}

	go func() {
		if err := s.Run(); err != nil {
			os.Exit(1)
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	slog.Info("received shutdown signal, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}
