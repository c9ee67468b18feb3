package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hylarucoder/animatediff-webui/internal/artifact"
	"github.com/hylarucoder/animatediff-webui/internal/client"
	"github.com/hylarucoder/animatediff-webui/internal/model"
	"github.com/hylarucoder/animatediff-webui/internal/progress"
)

// phase is one step of a render. Phases run strictly in order.
type phase struct {
	stage progress.Stage
	run   func(ctx context.Context, r *run, rc *client.RunContext) error
}

func (s *RenderService) phases() []phase {
	return []phase{
		{progress.StageConfigure, s.configure},
		{progress.StagePreprocess, func(ctx context.Context, _ *run, rc *client.RunContext) error {
			return s.sampler.Preprocess(ctx, rc)
		}},
		{progress.StageLoad, func(ctx context.Context, _ *run, rc *client.RunContext) error {
			return s.sampler.LoadModels(ctx, rc)
		}},
		{progress.StageSample, func(ctx context.Context, _ *run, rc *client.RunContext) error {
			return s.sampler.Sample(ctx, rc)
		}},
		{progress.StageUnload, func(ctx context.Context, _ *run, rc *client.RunContext) error {
			return s.sampler.UnloadModels(ctx, rc)
		}},
		{progress.StageEncode, s.encode},
	}
}

// runPhase checks for an interrupt, runs p and reports it to observers.
func (s *RenderService) runPhase(ctx context.Context, r *run, p phase) error {
	r.phase = p.stage.String()
	if err := r.flag.Checkpoint(); err != nil {
		return err
	}

	rc := &client.RunContext{
		JobID:      r.id,
		Setting:    r.setting,
		ConfigPath: r.configPath,
		OutDir:     r.runDir,
		Progress: func(done, total int) {
			r.tracker.SetFraction(p.stage, done, total)
		},
		Checkpoint: r.flag.Checkpoint,
	}

	s.log.Debug().Int("job", r.id).Str("phase", r.phase).Msg("phase started")
	s.emit(model.RenderEvent{Type: model.EventPhaseStarted, JobID: r.id, Project: r.project, Phase: r.phase, Status: model.JobStatusRunning})
	start := s.now()

	err := p.run(ctx, r, rc)
	elapsed := s.now().Sub(start)
	if err != nil {
		cancelled := errors.Is(err, ErrCancelled)
		s.emit(model.RenderEvent{
			Type:     model.EventPhaseFailed,
			JobID:    r.id,
			Project:  r.project,
			Phase:    r.phase,
			Status:   model.JobStatusRunning,
			Elapsed:  elapsed,
			Err:      err,
			Canceled: cancelled,
		})
		if cancelled {
			return err
		}
		return &SamplerFailure{Phase: r.phase, Err: err}
	}

	r.tracker.Complete(p.stage)
	s.log.Debug().Int("job", r.id).Str("phase", r.phase).Dur("elapsed", elapsed).Msg("phase finished")
	s.emit(model.RenderEvent{Type: model.EventPhaseFinished, JobID: r.id, Project: r.project, Phase: r.phase, Status: model.JobStatusRunning, Elapsed: elapsed})
	return nil
}

// configure writes the raw request, resolves it, and writes the resolved
// setting the sampler reads.
func (s *RenderService) configure(_ context.Context, r *run, _ *client.RunContext) error {
	const steps = 3

	projectDir, err := s.catalog.ProjectDir(r.project)
	if err != nil {
		return err
	}
	if r.runDir, err = s.artifacts.NewRunDir(projectDir); err != nil {
		return err
	}
	s.setRunDir(r)
	if _, err := s.artifacts.WriteJSON(r.runDir, artifact.RawFile, r.req); err != nil {
		return err
	}
	r.tracker.SetFraction(progress.StageConfigure, 1, steps)

	setting, err := s.resolve(r.req)
	if err != nil {
		return err
	}
	r.setting = setting
	r.tracker.SetFraction(progress.StageConfigure, 2, steps)

	if r.configPath, err = s.artifacts.WriteJSON(r.runDir, artifact.ResolvedFile, setting); err != nil {
		return err
	}
	s.log.Info().
		Int("job", r.id).
		Str("config", r.configPath).
		Str("window", setting.Window.String()).
		Int("frames", setting.Length).
		Msg("render configured")
	return nil
}

func (s *RenderService) encode(ctx context.Context, r *run, rc *client.RunContext) error {
	path, err := s.sampler.Encode(ctx, rc)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("sampler returned no video")
	}
	if r.videoPath, err = filepath.Abs(path); err != nil {
		return err
	}
	return nil
}

// setRunDir exposes the run directory while the job is still running.
func (s *RenderService) setRunDir(r *run) {
	s.mu.Lock()
	if job := s.findLocked(r.id); job != nil {
		job.RunDir = r.runDir
	}
	s.mu.Unlock()
}
