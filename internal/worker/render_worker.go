package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/hylarucoder/animatediff-webui/internal/service"
)

// RenderWorker runs render jobs handed over by an AsynqDispatcher.
type RenderWorker struct {
	runner service.Runner
	log    zerolog.Logger
}

// NewRenderWorker creates a new render worker
func NewRenderWorker(runner service.Runner, logger zerolog.Logger) *RenderWorker {
	return &RenderWorker{
		runner: runner,
		log:    logger,
	}
}

// ProcessTask handles render task processing
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobID, err := service.ParseRenderTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.log.Info().Int("job", jobID).Msg("render task received")

	// asynq puts a deadline on every task; renders have none.
	err = w.runner.Run(context.WithoutCancel(ctx), jobID)
	switch {
	case err == nil, errors.Is(err, service.ErrCancelled):
		return nil
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, service.ErrJobNotPending):
		// stale task from before a restart, or a duplicate delivery
		w.log.Warn().Err(err).Int("job", jobID).Msg("skipping render task")
		return nil
	default:
		return fmt.Errorf("render job %d: %v: %w", jobID, err, asynq.SkipRetry)
	}
}
