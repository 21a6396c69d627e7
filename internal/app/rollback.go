package app

import (
	"context"
	"log/slog"
)

// compensation undoes one completed saga step.
type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// rollback collects compensations for the steps a saga has completed
// and runs them in reverse order on failure. Compensation failures are
// logged and never mask the error that triggered the rollback.
type rollback struct {
	log   *slog.Logger
	steps []compensation
}

func newRollback(log *slog.Logger) *rollback {
	return &rollback{log: log}
}

func (r *rollback) push(name string, fn func(ctx context.Context) error) {
	r.steps = append(r.steps, compensation{name: name, fn: fn})
}

func (r *rollback) run(ctx context.Context) {
	for i := len(r.steps) - 1; i >= 0; i-- {
		step := r.steps[i]
		r.log.InfoContext(ctx, "compensating", "step", step.name)
		if err := step.fn(ctx); err != nil {
			r.log.ErrorContext(ctx, "compensation failed", "step", step.name, "error", err)
		}
	}
	r.steps = nil
}
