package model

import (
	"time"

	"github.com/hylarucoder/animatediff-webui/internal/progress"
)

// RenderJob is one entry of the render queue.
type RenderJob struct {
	ID         int                      `json:"id"`
	Project    string                   `json:"project"`
	Status     JobStatus                `json:"status"`
	Completed  int                      `json:"completed"`
	Total      int                      `json:"total"`
	VideoPath  string                   `json:"videoPath,omitempty"`
	PublicURL  string                   `json:"publicUrl,omitempty"`
	RunDir     string                   `json:"runDir,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Subtasks   []progress.StageProgress `json:"subtasks"`
	CreatedAt  time.Time                `json:"createdAt"`
	StartedAt  *time.Time               `json:"startedAt,omitempty"`
	FinishedAt *time.Time               `json:"finishedAt,omitempty"`
}

// Clone returns a copy that shares no mutable state with j.
func (j *RenderJob) Clone() *RenderJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Subtasks = append([]progress.StageProgress(nil), j.Subtasks...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

// ApplyProgress copies a tracker snapshot onto the job.
func (j *RenderJob) ApplyProgress(snap progress.Snapshot) {
	j.Completed = snap.Completed
	j.Total = snap.Total
	j.Subtasks = snap.Stages
}

// Progress rebuilds the tracker snapshot stored on the job.
func (j *RenderJob) Progress() progress.Snapshot {
	return progress.Snapshot{
		Completed: j.Completed,
		Total:     j.Total,
		Stages:    append([]progress.StageProgress(nil), j.Subtasks...),
	}
}

// SubmitResponse is returned by POST /api/pipeline/submit
type SubmitResponse struct {
	Pipeline *RenderJob `json:"pipeline"`
	// Deduplicated is true when an active job was returned instead of a new one.
	Deduplicated bool `json:"deduplicated"`
}

// StatusResponse is returned by GET /api/pipeline/status/:pid
type StatusResponse struct {
	Job      *RenderJob        `json:"job"`
	Progress progress.Snapshot `json:"progress"`
}

// InterruptResponse is returned by POST /api/pipeline/interrupt/:pid
type InterruptResponse struct {
	ID     int       `json:"id"`
	Status JobStatus `json:"status"`
	// Requested is false when the job was not running and the flag was ignored.
	Requested bool `json:"requested"`
}
