package service

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

func TestRenderTask(t *testing.T) {
	task, err := NewRenderTask(7)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeRender, task.Type())
	assert.JSONEq(t, `{"jobId":7}`, string(task.Payload()))

	id, err := ParseRenderTask(task)
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	_, err = ParseRenderTask(asynq.NewTask(TaskTypeRender, []byte(`{"jobId":0}`)))
	assert.Error(t, err)
	_, err = ParseRenderTask(asynq.NewTask(TaskTypeRender, []byte(`nope`)))
	assert.Error(t, err)
}

func TestCancelFlag(t *testing.T) {
	var f CancelFlag
	assert.NoError(t, f.Checkpoint())

	f.Set()
	f.Set()
	assert.True(t, f.IsSet())
	assert.ErrorIs(t, f.Checkpoint(), ErrCancelled)
	assert.False(t, f.IsSet())
	assert.NoError(t, f.Checkpoint())
}

func TestAsynqDispatcher_EnqueueFailure(t *testing.T) {
	mr, _ := setupMiniRedis(t)
	addr := mr.Addr()
	mr.Close()

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	svc, _, _ := setupService(t, newFakeSampler(), func(d *Deps) {
		d.Dispatcher = NewAsynqDispatcher(client, "")
	})
	_, err := svc.Submit(context.Background(), &model.RenderRequest{Project: "demo", Prompt: "walk"})
	require.ErrorContains(t, err, "failed to enqueue task")
	assert.Equal(t, model.JobStatusError, svc.Jobs()[0].Status)
}
