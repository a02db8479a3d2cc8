package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rfqcrm/internal/config"
	"rfqcrm/internal/listener"
	"rfqcrm/internal/logging"
	"rfqcrm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	svc, err := listener.NewService(db, cfg, logger)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("mail listener started", "provider", cfg.MailListenerProvider, "interval_sec", cfg.MailListenerIntervalSec)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
