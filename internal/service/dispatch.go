package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const TaskTypeRender = "render:process"

// Dispatcher hands a pending job to whatever will run it. Dispatch must not
// block on the render itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID int) error
}

// Runner executes a pending job to completion.
type Runner interface {
	Run(ctx context.Context, jobID int) error
}

// LocalDispatcher runs each job on its own goroutine in this process.
type LocalDispatcher struct {
	runner Runner
	log    zerolog.Logger
	wg     sync.WaitGroup
}

func NewLocalDispatcher(runner Runner, logger zerolog.Logger) *LocalDispatcher {
	return &LocalDispatcher{runner: runner, log: logger}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, jobID int) error {
	// The render outlives the request that submitted it.
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.runner.Run(runCtx, jobID); errors.Is(err, ErrJobNotPending) {
			d.log.Warn().Int("job", jobID).Msg("dispatched job was not pending")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// AsynqDispatcher enqueues jobs for a worker.RenderWorker.
type AsynqDispatcher struct {
	client *asynq.Client
	queue  string
}

func NewAsynqDispatcher(client *asynq.Client, queue string) *AsynqDispatcher {
	if queue == "" {
		queue = "render"
	}
	return &AsynqDispatcher{client: client, queue: queue}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID int) error {
	task, err := NewRenderTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	// Phases are never retried.
	_, err = d.client.Enqueue(task,
		asynq.Queue(d.queue),
		asynq.TaskID(uuid.New().String()),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

type renderTaskPayload struct {
	JobID int `json:"jobId"`
}

func NewRenderTask(jobID int) (*asynq.Task, error) {
	data, err := json.Marshal(renderTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRender, data), nil
}

// ParseRenderTask returns the job id carried by a render task.
func ParseRenderTask(t *asynq.Task) (int, error) {
	var p renderTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return 0, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.JobID <= 0 {
		return 0, fmt.Errorf("invalid job id %d", p.JobID)
	}
	return p.JobID, nil
}
