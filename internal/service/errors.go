package service

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotPending = errors.New("job is not pending")
	// ErrCancelled is raised at a suspension point once an interrupt has
	// been observed. It is an expected outcome, not a fault.
	ErrCancelled = errors.New("render interrupted")
)

// SamplerFailure wraps any other error raised while a job was running.
type SamplerFailure struct {
	Phase string
	Err   error
}

func (e *SamplerFailure) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *SamplerFailure) Unwrap() error { return e.Err }
