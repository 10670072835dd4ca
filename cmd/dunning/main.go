package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"oralplatinum/cobranca/internal/app"
	"oralplatinum/cobranca/internal/application/pipeline"
	"oralplatinum/cobranca/internal/infrastructure/config"
	"oralplatinum/cobranca/internal/infrastructure/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tier run failed: %v\n", err)
		os.Exit(1)
	}
}

// run executes charge finder, contact resolver and reminder dispatcher for
// the configured tier, in that order.
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

	log.Info("tier run started",
		"tier", cfg.Tier.Tier.String(),
		"run_id", a.RunID(),
		"version", cfg.App.Version,
	)

	if err := pipeline.NewRunner(log.With("run_id", a.RunID()), a.Stages()...).Run(ctx); err != nil {
		return err
	}

	log.Info("tier run finished", "tier", cfg.Tier.Tier.Name, "run_id", a.RunID())
	return nil
}
