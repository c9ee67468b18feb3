// Package progress tracks render progress as seven fixed stages rolled up
// into one overall percentage.
package progress

import "sync"

// Stage identifies one of the fixed render stages.
type Stage int

const (
	StageCheck Stage = iota
	StageConfigure
	StagePreprocess
	StageLoad
	StageSample
	StageUnload
	StageEncode

	numStages = int(StageEncode) + 1
)

// Total is the upper bound of every counter.
const Total = 100

var stageInfo = [numStages]struct {
	name        string
	description string
	weight      int
}{
	{"check", "Checking Configuration", 2},
	{"configure", "Writing Configuration", 3},
	{"preprocess", "Preprocessing Controlnet & IPAdapter", 10},
	{"load", "Load Models", 10},
	{"sample", "Animating", 65},
	{"unload", "Unload Controlnet Models", 3},
	{"encode", "Make Video", 7},
}

func (s Stage) String() string {
	if s < 0 || int(s) >= numStages {
		return "unknown"
	}
	return stageInfo[s].name
}

// Description is the human readable label shown to clients.
func (s Stage) Description() string {
	if s < 0 || int(s) >= numStages {
		return ""
	}
	return stageInfo[s].description
}

// Stages returns every stage in declaration order.
func Stages() []Stage {
	out := make([]Stage, numStages)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}

// StageProgress is one entry of a snapshot.
type StageProgress struct {
	Description string `json:"description"`
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
}

// Snapshot is a point in time copy of a tracker.
type Snapshot struct {
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Stages    []StageProgress `json:"subtasks"`
}

// Initial returns the snapshot of a tracker nothing has reported to yet.
func Initial() Snapshot {
	return New().Snapshot()
}

// Tracker is safe for concurrent use. Stage counters never decrease.
type Tracker struct {
	mu     sync.Mutex
	stages [numStages]int
}

func New() *Tracker {
	return &Tracker{}
}

// Set raises stage to value. Lower values are ignored.
func (t *Tracker) Set(stage Stage, value int) {
	if stage < 0 || int(stage) >= numStages {
		return
	}
	value = clamp(value)
	t.mu.Lock()
	if value > t.stages[stage] {
		t.stages[stage] = value
	}
	t.mu.Unlock()
}

// Advance adds delta to stage, capped at Total.
func (t *Tracker) Advance(stage Stage, delta int) {
	if stage < 0 || int(stage) >= numStages || delta <= 0 {
		return
	}
	t.mu.Lock()
	t.stages[stage] = clamp(t.stages[stage] + delta)
	t.mu.Unlock()
}

// SetFraction reports done out of total steps for stage.
func (t *Tracker) SetFraction(stage Stage, done, total int) {
	if total <= 0 {
		return
	}
	t.Set(stage, done*Total/total)
}

// Complete marks stage as finished.
func (t *Tracker) Complete(stage Stage) {
	t.Set(stage, Total)
}

// Stage returns the current value of a single stage.
func (t *Tracker) Stage(stage Stage) int {
	if stage < 0 || int(stage) >= numStages {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stages[stage]
}

// Snapshot returns the overall counter and every stage in order.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	values := t.stages
	t.mu.Unlock()

	snap := Snapshot{Total: Total, Stages: make([]StageProgress, numStages)}
	weighted := 0
	for i, v := range values {
		snap.Stages[i] = StageProgress{
			Description: stageInfo[i].description,
			Completed:   v,
			Total:       Total,
		}
		weighted += v * stageInfo[i].weight
	}
	snap.Completed = weighted / Total
	return snap
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > Total {
		return Total
	}
	return v
}
