// Package metrics exposes render queue metrics to Prometheus.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

// RenderObserver turns render events into Prometheus series. Labels are
// limited to phase and status; job ids never become labels.
type RenderObserver struct {
	submitted     prometheus.Counter
	deduplicated  prometheus.Counter
	finished      *prometheus.CounterVec
	active        prometheus.Gauge
	phaseDuration *prometheus.HistogramVec
	cancellations prometheus.Counter
}

// NewRenderObserver registers the render metrics with reg. A nil reg uses
// the default registry.
func NewRenderObserver(reg prometheus.Registerer) *RenderObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &RenderObserver{
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "motion_jobs_submitted_total",
			Help: "Total number of render jobs created.",
		}),
		deduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "motion_jobs_deduplicated_total",
			Help: "Total number of submissions answered with the already active job.",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "motion_jobs_finished_total",
			Help: "Total number of render jobs that reached a terminal state, by status.",
		}, []string{"status"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "motion_jobs_active",
			Help: "Render jobs currently pending or running.",
		}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "motion_phase_duration_seconds",
			Help:    "Duration of render phases.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"phase"}),
		cancellations: factory.NewCounter(prometheus.CounterOpts{
			Name: "motion_cancellations_total",
			Help: "Total number of render jobs stopped by an interrupt.",
		}),
	}
}

func (o *RenderObserver) Observe(ev model.RenderEvent) {
	switch ev.Type {
	case model.EventJobSubmitted:
		o.submitted.Inc()
		o.active.Inc()
	case model.EventJobDeduplicated:
		o.deduplicated.Inc()
	case model.EventPhaseFinished, model.EventPhaseFailed:
		o.phaseDuration.WithLabelValues(ev.Phase).Observe(ev.Elapsed.Seconds())
	case model.EventJobFinished:
		o.finished.WithLabelValues(strings.ToLower(string(ev.Status))).Inc()
		o.active.Dec()
		if ev.Canceled {
			o.cancellations.Inc()
		}
	}
}
