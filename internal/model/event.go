package model

import "time"

// EventType identifies a render lifecycle event.
type EventType string

const (
	EventJobSubmitted    EventType = "job_submitted"
	EventJobDeduplicated EventType = "job_deduplicated"
	EventJobStarted      EventType = "job_started"
	EventPhaseStarted    EventType = "phase_started"
	EventPhaseFinished   EventType = "phase_finished"
	EventPhaseFailed     EventType = "phase_failed"
	EventJobFinished     EventType = "job_finished"
)

// RenderEvent is emitted by the orchestrator to its observers.
type RenderEvent struct {
	Type     EventType
	JobID    int
	Project  string
	Phase    string
	Status   JobStatus
	Elapsed  time.Duration
	Err      error
	Canceled bool
	At       time.Time
}

// WSEventMessage is pushed to websocket subscribers of a job.
type WSEventMessage struct {
	Type   string     `json:"type"`
	JobID  int        `json:"jobId"`
	Phase  string     `json:"phase,omitempty"`
	Status JobStatus  `json:"status"`
	Job    *RenderJob `json:"job,omitempty"`
}

// WSMessageTypeSnapshot is the first message a subscriber receives.
const WSMessageTypeSnapshot = "snapshot"
