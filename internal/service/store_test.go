package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisJobStore_SaveLoad(t *testing.T) {
	mr, client := setupMiniRedis(t)
	store := NewRedisJobStore(client)
	ctx := context.Background()

	jobs, last, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Zero(t, last)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, &model.RenderJob{ID: 2, Project: "b", Status: model.JobStatusPending, CreatedAt: created}))
	require.NoError(t, store.Save(ctx, &model.RenderJob{ID: 1, Project: "a", Status: model.JobStatusSuccess, CreatedAt: created}))
	require.NoError(t, store.Save(ctx, &model.RenderJob{ID: 2, Project: "b", Status: model.JobStatusRunning, CreatedAt: created}))

	jobs, last, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 2, last)
	assert.Equal(t, 1, jobs[0].ID)
	assert.Equal(t, model.JobStatusRunning, jobs[1].Status)
	assert.True(t, created.Equal(jobs[1].CreatedAt))
	assert.Greater(t, mr.TTL("job:1"), time.Duration(0))

	// expired snapshots are skipped but their ids are never reused
	mr.Del("job:2")
	jobs, last, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, 2, last)
}

func TestRestore_FailsInterruptedJobs(t *testing.T) {
	_, client := setupMiniRedis(t)
	store := NewRedisJobStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &model.RenderJob{ID: 1, Project: "demo", Status: model.JobStatusSuccess}))
	require.NoError(t, store.Save(ctx, &model.RenderJob{ID: 2, Project: "demo", Status: model.JobStatusPending}))
	require.NoError(t, store.Save(ctx, &model.RenderJob{ID: 2, Project: "demo", Status: model.JobStatusRunning}))

	svc, _, _ := setupService(t, newFakeSampler(), func(d *Deps) { d.Store = store })
	require.NoError(t, svc.Restore(ctx))

	jobs := svc.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, model.JobStatusSuccess, jobs[0].Status)
	assert.Equal(t, model.JobStatusError, jobs[1].Status)
	assert.Equal(t, "interrupted by restart", jobs[1].Error)
	assert.NotNil(t, jobs[1].FinishedAt)

	stored, _, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, stored[1].Status)

	resp, err := svc.Submit(ctx, &model.RenderRequest{Project: "demo", Prompt: "walk"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Pipeline.ID)
	svc.Wait()

	stored, last, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, last)
	require.Len(t, stored, 3)
	assert.Equal(t, model.JobStatusSuccess, stored[2].Status)
}

func TestRestore_WithoutStore(t *testing.T) {
	svc, _, _ := setupService(t, newFakeSampler())
	assert.NoError(t, svc.Restore(context.Background()))
	assert.Empty(t, svc.Jobs())
}
