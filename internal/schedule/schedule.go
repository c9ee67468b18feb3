// Package schedule expands sparse keyframe maps into dense per-frame timelines.
//
// A keyframe holds its value for a fraction of the span up to the next
// keyframe (the fixed ratio) and then hands over to the next value. The last
// keyframe wraps around to the first so the timeline loops.
package schedule

import (
	"errors"
	"math"
	"sort"
	"strings"
)

// DefaultFixedRatio is the hold fraction used when a request does not set one.
const DefaultFixedRatio = 0.5

var (
	ErrEmpty         = errors.New("schedule: no keyframes inside the video length")
	ErrInvalidLength = errors.New("schedule: length must be positive")
)

// Schedule is a dense timeline over frames 0..Length-1.
//
// Keys is the sparse form handed to the sampler, including the transition
// keyframes inserted by Build. Frames holds one value per frame.
type Schedule[V any] struct {
	Length int       `json:"length"`
	Keys   map[int]V `json:"keys"`
	Frames []V       `json:"frames"`
}

// At returns the value for frame i, wrapping out of range indices.
func (s Schedule[V]) At(i int) V {
	n := len(s.Frames)
	return s.Frames[((i%n)+n)%n]
}

// SortedKeys returns the sparse keyframe indices in ascending order.
func (s Schedule[V]) SortedKeys() []int {
	keys := make([]int, 0, len(s.Keys))
	for k := range s.Keys {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// ClampRatio bounds a fixed ratio to [0, 1].
func ClampRatio(r float64) float64 {
	if math.IsNaN(r) {
		return DefaultFixedRatio
	}
	return math.Max(0, math.Min(1, r))
}

// HasKeyframe reports whether sparse has at least one key in [0, length).
// Build fails with ErrEmpty exactly when it does not.
func HasKeyframe[V any](sparse map[int]V, length int) bool {
	for k := range sparse {
		if k >= 0 && k < length {
			return true
		}
	}
	return false
}

// Build expands sparse into a dense schedule of the given length. Keys
// outside [0, length) are ignored. The result depends only on the inputs.
func Build[V any](sparse map[int]V, length int, ratio float64) (Schedule[V], error) {
	if length <= 0 {
		return Schedule[V]{}, ErrInvalidLength
	}
	ratio = ClampRatio(ratio)

	keys := make([]int, 0, len(sparse))
	for k := range sparse {
		if k >= 0 && k < length {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Schedule[V]{}, ErrEmpty
	}
	sort.Ints(keys)

	out := Schedule[V]{
		Length: length,
		Keys:   make(map[int]V, len(keys)*2),
		Frames: make([]V, length),
	}
	for _, k := range keys {
		out.Keys[k] = sparse[k]
	}

	if len(keys) == 1 {
		v := sparse[keys[0]]
		for i := range out.Frames {
			out.Frames[i] = v
		}
		return out, nil
	}

	for i, k0 := range keys {
		var span int
		next := keys[(i+1)%len(keys)]
		if i == len(keys)-1 {
			span = next + length - k0
		} else {
			span = next - k0
		}

		// halves round to the even neighbour
		k05 := k0 + int(math.RoundToEven(float64(span)*ratio))
		if k05 == k0+span {
			k05--
		}

		v0, v1 := sparse[k0], sparse[next]
		if k05 != k0 {
			out.Keys[k05%length] = v0
		}
		for f := k0; f <= k05; f++ {
			out.Frames[f%length] = v0
		}
		for f := k05 + 1; f < k0+span; f++ {
			out.Frames[f%length] = v1
		}
	}
	return out, nil
}

// Decorate joins head, prompt and tail with commas, skipping empty parts.
func Decorate(head, prompt, tail string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{head, prompt, tail} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}

// BuildPrompts decorates every prompt and builds its schedule.
func BuildPrompts(prompts map[int]string, head, tail string, length int, ratio float64) (Schedule[string], error) {
	decorated := make(map[int]string, len(prompts))
	for k, p := range prompts {
		decorated[k] = Decorate(head, p, tail)
	}
	return Build(decorated, length, ratio)
}
