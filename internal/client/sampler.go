package client

import (
	"context"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

// Sampler is the diffusion pipeline that does the GPU work. Calls arrive in
// phase order for one job at a time.
type Sampler interface {
	Preprocess(ctx context.Context, rc *RunContext) error
	LoadModels(ctx context.Context, rc *RunContext) error
	Sample(ctx context.Context, rc *RunContext) error
	UnloadModels(ctx context.Context, rc *RunContext) error
	// Encode writes the output video and returns its path.
	Encode(ctx context.Context, rc *RunContext) (string, error)
	// Release frees whatever the job still holds. It runs once per job on
	// every exit path.
	Release(ctx context.Context, jobID int) error
	IsConfigured() bool
}

// RunContext carries everything a phase needs.
type RunContext struct {
	JobID      int
	Setting    *model.ProjectSetting
	ConfigPath string
	OutDir     string

	// Progress reports done out of total steps for the running phase.
	Progress func(done, total int)
	// Checkpoint is a suspension point. It returns a non-nil error when the
	// job has been interrupted and the sampler must stop.
	Checkpoint func() error
}

func (rc *RunContext) report(done, total int) {
	if rc.Progress != nil {
		rc.Progress(done, total)
	}
}

func (rc *RunContext) checkpoint() error {
	if rc.Checkpoint == nil {
		return nil
	}
	return rc.Checkpoint()
}
