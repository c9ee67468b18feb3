package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

// SpanObserver records one span per job with a child span per phase.
type SpanObserver struct {
	tracer trace.Tracer

	mu   sync.Mutex
	jobs map[int]jobSpans
}

type jobSpans struct {
	ctx   context.Context
	job   trace.Span
	phase trace.Span
}

func NewSpanObserver(tracer trace.Tracer) *SpanObserver {
	return &SpanObserver{tracer: tracer, jobs: make(map[int]jobSpans)}
}

func (o *SpanObserver) Observe(ev model.RenderEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Type {
	case model.EventJobStarted:
		ctx, span := o.tracer.Start(context.Background(), "render.job",
			trace.WithTimestamp(ev.At),
			trace.WithAttributes(
				attribute.Int("render.job_id", ev.JobID),
				attribute.String("render.project", ev.Project),
			),
		)
		o.jobs[ev.JobID] = jobSpans{ctx: ctx, job: span}

	case model.EventPhaseStarted:
		js, ok := o.jobs[ev.JobID]
		if !ok {
			return
		}
		_, js.phase = o.tracer.Start(js.ctx, "render.phase."+ev.Phase,
			trace.WithTimestamp(ev.At),
			trace.WithAttributes(attribute.String("render.phase", ev.Phase)),
		)
		o.jobs[ev.JobID] = js

	case model.EventPhaseFinished, model.EventPhaseFailed:
		js, ok := o.jobs[ev.JobID]
		if !ok || js.phase == nil {
			return
		}
		endWith(js.phase, ev)
		js.phase = nil
		o.jobs[ev.JobID] = js

	case model.EventJobFinished:
		js, ok := o.jobs[ev.JobID]
		if !ok {
			return
		}
		if js.phase != nil {
			js.phase.End(trace.WithTimestamp(ev.At))
		}
		js.job.SetAttributes(attribute.String("render.status", string(ev.Status)))
		endWith(js.job, ev)
		delete(o.jobs, ev.JobID)
	}
}

func endWith(span trace.Span, ev model.RenderEvent) {
	switch {
	case ev.Canceled:
		span.SetAttributes(attribute.Bool("render.cancelled", true))
	case ev.Err != nil:
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	}
	span.End(trace.WithTimestamp(ev.At))
}
