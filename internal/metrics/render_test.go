package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

func TestRenderObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewRenderObserver(reg)

	o.Observe(model.RenderEvent{Type: model.EventJobSubmitted, JobID: 1})
	o.Observe(model.RenderEvent{Type: model.EventJobDeduplicated, JobID: 1})
	assert.Equal(t, 1.0, testutil.ToFloat64(o.active))

	o.Observe(model.RenderEvent{Type: model.EventPhaseFinished, Phase: "sample", Elapsed: 2 * time.Second})
	o.Observe(model.RenderEvent{Type: model.EventPhaseFailed, Phase: "encode", Elapsed: time.Second})
	o.Observe(model.RenderEvent{Type: model.EventJobFinished, Status: model.JobStatusError, Canceled: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(o.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.deduplicated))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.cancellations))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.finished.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.finished.WithLabelValues("success")))
	assert.Equal(t, 2, testutil.CollectAndCount(o.phaseDuration))
}

func TestRenderObserver_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewRenderObserver(reg)
	o.Observe(model.RenderEvent{Type: model.EventJobSubmitted})
	o.Observe(model.RenderEvent{Type: model.EventJobFinished, Status: model.JobStatusSuccess})

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `motion_jobs_finished_total{status="success"} 1`)
	assert.Contains(t, string(body), "motion_jobs_submitted_total 1")
}
