package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

const (
	jobKeyFmt   = "job:%d"
	jobIndexKey = "jobs:index"
	jobSeqKey   = "jobs:seq"
	jobTTL      = 7 * 24 * time.Hour
)

// JobStore mirrors the in-memory queue so it survives a restart.
type JobStore interface {
	Save(ctx context.Context, job *model.RenderJob) error
	// Load returns every stored job in id order and the highest id ever
	// assigned.
	Load(ctx context.Context) ([]*model.RenderJob, int, error)
}

// RedisJobStore keeps one JSON snapshot per job.
type RedisJobStore struct {
	redis *redis.Client
}

func NewRedisJobStore(redisClient *redis.Client) *RedisJobStore {
	return &RedisJobStore{redis: redisClient}
}

func (s *RedisJobStore) Save(ctx context.Context, job *model.RenderJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fmt.Sprintf(jobKeyFmt, job.ID), data, jobTTL)
		pipe.ZAdd(ctx, jobIndexKey, redis.Z{Score: float64(job.ID), Member: job.ID})
		if job.Status == model.JobStatusPending {
			pipe.Set(ctx, jobSeqKey, job.ID, 0)
		}
		return nil
	})
	return err
}

func (s *RedisJobStore) Load(ctx context.Context) ([]*model.RenderJob, int, error) {
	lastID, err := s.redis.Get(ctx, jobSeqKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	ids, err := s.redis.ZRange(ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return nil, lastID, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, 0, fmt.Errorf("corrupt job index entry %q", id)
		}
		keys[i] = fmt.Sprintf(jobKeyFmt, n)
		if n > lastID {
			lastID = n
		}
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}
	jobs := make([]*model.RenderJob, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// expired
			continue
		}
		var job model.RenderJob
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return nil, 0, fmt.Errorf("failed to decode %s: %w", keys[i], err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, lastID, nil
}
