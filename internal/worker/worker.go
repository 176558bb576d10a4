package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker runs a dispatch cycle on a fixed interval, for deployments with
// no external scheduler.
type Worker struct {
	runner *Runner
	config Config
	logger *zap.Logger
}

type Config struct {
	Interval time.Duration
}

func New(runner *Runner, cfg Config, logger *zap.Logger) *Worker {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Minute
	}

	return &Worker{
		runner: runner,
		config: cfg,
		logger: logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("dispatch timer started", zap.Duration("interval", w.config.Interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			// errors are logged and counted by the runner
			_, _ = w.runner.Run(ctx, TriggerTimer)
		}
	}
}
