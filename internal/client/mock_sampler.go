package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// MockSampler walks through each phase on a timer and writes a placeholder
// video. It stands in for the GPU worker during development.
type MockSampler struct {
	stepDelay time.Duration
	log       zerolog.Logger
}

func NewMockSampler(stepDelay time.Duration, logger zerolog.Logger) *MockSampler {
	return &MockSampler{stepDelay: stepDelay, log: logger}
}

func (m *MockSampler) IsConfigured() bool { return true }

func (m *MockSampler) Preprocess(ctx context.Context, rc *RunContext) error {
	return m.walk(ctx, rc, 2)
}

func (m *MockSampler) LoadModels(ctx context.Context, rc *RunContext) error {
	return m.walk(ctx, rc, 3)
}

// Sample advances one step per frame.
func (m *MockSampler) Sample(ctx context.Context, rc *RunContext) error {
	steps := 8
	if rc.Setting != nil && rc.Setting.Length > 0 {
		steps = rc.Setting.Length
	}
	return m.walk(ctx, rc, steps)
}

func (m *MockSampler) UnloadModels(ctx context.Context, rc *RunContext) error {
	return m.walk(ctx, rc, 1)
}

func (m *MockSampler) Encode(ctx context.Context, rc *RunContext) (string, error) {
	if err := m.walk(ctx, rc, 2); err != nil {
		return "", err
	}
	path := filepath.Join(rc.OutDir, "video.mp4")
	if err := os.WriteFile(path, mockVideo, 0o644); err != nil {
		return "", fmt.Errorf("failed to write placeholder video: %w", err)
	}
	m.log.Info().Int("job", rc.JobID).Str("path", path).Msg("placeholder video written")
	return path, nil
}

func (m *MockSampler) Release(ctx context.Context, jobID int) error {
	m.log.Debug().Int("job", jobID).Msg("released")
	return nil
}

func (m *MockSampler) walk(ctx context.Context, rc *RunContext, steps int) error {
	for i := 1; i <= steps; i++ {
		if err := rc.checkpoint(); err != nil {
			return err
		}
		if m.stepDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.stepDelay):
			}
		}
		rc.report(i, steps)
	}
	return nil
}

// mockVideo is the ftyp box of an empty MP4 so content sniffing sees video/mp4.
var mockVideo = []byte{
	0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'i', 's', 'o', '2',
	'a', 'v', 'c', '1', 'm', 'p', '4', '1',
}
