package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"oralplatinum/cobranca/internal/app"
	"oralplatinum/cobranca/internal/application/resolver"
	"oralplatinum/cobranca/internal/infrastructure/config"
	"oralplatinum/cobranca/internal/infrastructure/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "contact resolver failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.App.Name, cfg.Log.Level, cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(ctx, cfg, log)
	defer a.Close()

	return a.RunStage(ctx, resolver.Stage)
}
