package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Stage is one step of a tier run.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes the stages of a tier in order.
type Runner struct {
	stages []Stage
	log    *slog.Logger
}

// NewRunner creates a runner for stages.
func NewRunner(log *slog.Logger, stages ...Stage) *Runner {
	return &Runner{stages: stages, log: log}
}

// Run executes every stage in order. A failing stage does not stop the ones
// after it, since each reads whatever its predecessor last wrote. The
// returned error joins every stage failure. Cancelling ctx stops the run
// before the next stage.
func (r *Runner) Run(ctx context.Context) error {
	var errs []error

	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stage.Name, err))
			break
		}

		start := time.Now()
		r.log.Info("stage started", "stage", stage.Name)

		if err := stage.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stage.Name, err))
			r.log.Error("stage failed",
				"stage", stage.Name,
				"error", err,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			continue
		}

		r.log.Info("stage finished",
			"stage", stage.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return errors.Join(errs...)
}
