// Package window derives the sliding context window used by the temporal sampler.
package window

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Params is the sliding window a sampler attends over.
type Params struct {
	Context int `json:"context"`
	Overlap int `json:"overlap"`
	Stride  int `json:"stride"`
}

func (p Params) String() string {
	return fmt.Sprintf("context=%d overlap=%d stride=%d", p.Context, p.Overlap, p.Stride)
}

// Validate reports whether p is usable for a video of the given length.
func (p Params) Validate(length int) error {
	switch {
	case p.Context <= 0:
		return fmt.Errorf("context must be positive, got %d", p.Context)
	case p.Overlap < 0 || p.Stride < 0:
		return fmt.Errorf("overlap and stride must not be negative (%s)", p)
	case p.Overlap >= p.Context:
		return fmt.Errorf("overlap %d must be below context %d", p.Overlap, p.Context)
	case length > 0 && p.Context > length:
		return fmt.Errorf("context %d exceeds video length %d", p.Context, length)
	}
	return nil
}

// Deriver turns requested window params into ones the model can run.
type Deriver struct {
	log zerolog.Logger
}

func NewDeriver(logger zerolog.Logger) *Deriver {
	return &Deriver{log: logger}
}

// Derive returns the window for a video of length frames. A ceiling of zero
// or less means the motion module accepts any context.
func (d *Deriver) Derive(length int, requested Params, ceiling int) Params {
	out := requested
	if length <= requested.Context {
		out = Params{Context: length, Overlap: length / 4, Stride: 0}
	}

	if ceiling > 0 && out.Context > ceiling {
		d.log.Warn().
			Int("requested", out.Context).
			Int("ceiling", ceiling).
			Msg("context larger than the motion module supports, clamping")
		out.Context = ceiling
	}
	if out.Overlap >= out.Context {
		out.Overlap = out.Context / 4
	}
	if out.Overlap < 0 {
		out.Overlap = 0
	}
	if out.Stride < 0 {
		out.Stride = 0
	}
	return out
}

// Derive is a convenience wrapper that discards the downgrade log.
func Derive(length int, requested Params, ceiling int) Params {
	return NewDeriver(zerolog.Nop()).Derive(length, requested, ceiling)
}
