package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hylarucoder/animatediff-webui/internal/artifact"
	"github.com/hylarucoder/animatediff-webui/internal/catalog"
	"github.com/hylarucoder/animatediff-webui/internal/client"
	"github.com/hylarucoder/animatediff-webui/internal/config"
	"github.com/hylarucoder/animatediff-webui/internal/model"
	"github.com/hylarucoder/animatediff-webui/internal/progress"
	"github.com/hylarucoder/animatediff-webui/internal/window"
)

// Deps are the collaborators of a RenderService. Store, Storage and
// Dispatcher are optional.
type Deps struct {
	Catalog    *catalog.Catalog
	Sampler    client.Sampler
	Artifacts  *artifact.Writer
	Store      JobStore
	Storage    client.StorageClient
	Dispatcher Dispatcher
	Observers  []Observer
	Render     config.RenderConfig
	Logger     zerolog.Logger
}

// RenderService owns the render queue. At most one job is pending or
// running at a time; jobs are never removed.
type RenderService struct {
	catalog    *catalog.Catalog
	sampler    client.Sampler
	artifacts  *artifact.Writer
	store      JobStore
	storage    client.StorageClient
	dispatcher Dispatcher
	observers  []Observer
	render     config.RenderConfig
	deriver    *window.Deriver
	log        zerolog.Logger

	mu     sync.RWMutex
	jobs   []*model.RenderJob
	runs   map[int]*run
	nextID int
	now    func() time.Time
}

// run is the state of one job between submission and completion.
type run struct {
	id      int
	project string
	req     *model.RenderRequest
	flag    *CancelFlag
	tracker *progress.Tracker

	started    time.Time
	phase      string
	runDir     string
	configPath string
	videoPath  string
	publicURL  string
	setting    *model.ProjectSetting
}

func NewRenderService(deps Deps) *RenderService {
	artifacts := deps.Artifacts
	if artifacts == nil {
		artifacts = artifact.NewWriter()
	}
	s := &RenderService{
		catalog:   deps.Catalog,
		sampler:   deps.Sampler,
		artifacts: artifacts,
		store:     deps.Store,
		storage:   deps.Storage,
		observers: deps.Observers,
		render:    deps.Render,
		deriver:   window.NewDeriver(deps.Logger),
		log:       deps.Logger,
		runs:      make(map[int]*run),
		now:       time.Now,
	}
	s.dispatcher = deps.Dispatcher
	if s.dispatcher == nil {
		s.dispatcher = NewLocalDispatcher(s, deps.Logger)
	}
	return s
}

// Submit queues req unless a job is already active, in which case that job
// is returned unchanged. Invalid requests fail with *model.ValidationError
// and create nothing.
func (s *RenderService) Submit(ctx context.Context, req *model.RenderRequest) (*model.SubmitResponse, error) {
	if resp := s.deduplicate(); resp != nil {
		return resp, nil
	}

	req.ApplyDefaults(s.catalog.DefaultPreset())
	if err := s.validate(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	// another caller may have queued a job while this one was validating
	if active := s.activeLocked(); active != nil {
		job := active.Clone()
		s.mu.Unlock()
		return s.deduplicated(job), nil
	}
	s.nextID++
	initial := progress.Initial()
	job := &model.RenderJob{
		ID:        s.nextID,
		Project:   req.Project,
		Status:    model.JobStatusPending,
		CreatedAt: s.now(),
	}
	job.ApplyProgress(initial)
	s.jobs = append(s.jobs, job)
	s.runs[job.ID] = &run{id: job.ID, project: req.Project, req: req, flag: &CancelFlag{}}
	snapshot := job.Clone()
	s.mu.Unlock()

	s.log.Info().Int("job", snapshot.ID).Str("project", snapshot.Project).Msg("render queued")
	s.persist(ctx, snapshot)
	s.emit(model.RenderEvent{Type: model.EventJobSubmitted, JobID: snapshot.ID, Project: snapshot.Project, Status: snapshot.Status})

	if err := s.dispatcher.Dispatch(ctx, snapshot.ID); err != nil {
		s.abort(ctx, snapshot.ID, err)
		return nil, fmt.Errorf("failed to dispatch render: %w", err)
	}
	return &model.SubmitResponse{Pipeline: snapshot}, nil
}

// deduplicate returns the active job as a deduplicated response, or nil when
// no job is active.
func (s *RenderService) deduplicate() *model.SubmitResponse {
	s.mu.RLock()
	var job *model.RenderJob
	if active := s.activeLocked(); active != nil {
		job = active.Clone()
	}
	s.mu.RUnlock()
	if job == nil {
		return nil
	}
	return s.deduplicated(job)
}

func (s *RenderService) deduplicated(job *model.RenderJob) *model.SubmitResponse {
	s.log.Info().Int("job", job.ID).Msg("render already active, returning it")
	s.emit(model.RenderEvent{Type: model.EventJobDeduplicated, JobID: job.ID, Project: job.Project, Status: job.Status})
	return &model.SubmitResponse{Pipeline: job, Deduplicated: true}
}

// Status returns a copy of the job with live progress.
func (s *RenderService) Status(id int) (*model.RenderJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job := s.findLocked(id)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return s.snapshotLocked(job), nil
}

// Current returns the most recently submitted job.
func (s *RenderService) Current() (*model.RenderJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return s.snapshotLocked(s.jobs[len(s.jobs)-1]), nil
}

// Jobs returns a copy of the whole queue in submission order.
func (s *RenderService) Jobs() []*model.RenderJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.RenderJob, len(s.jobs))
	for i, job := range s.jobs {
		out[i] = s.snapshotLocked(job)
	}
	return out
}

// Interrupt asks a running job to stop at its next suspension point. Jobs
// in any other state are left alone.
func (s *RenderService) Interrupt(id int) (*model.InterruptResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job := s.findLocked(id)
	if job == nil {
		return nil, ErrJobNotFound
	}
	resp := &model.InterruptResponse{ID: id, Status: job.Status}
	r := s.runs[id]
	if job.Status != model.JobStatusRunning || r == nil {
		return resp, nil
	}
	r.flag.Set()
	resp.Requested = true
	s.log.Info().Int("job", id).Msg("interrupt requested")
	return resp, nil
}

// Run executes a pending job through every phase. The returned error is
// the one that ended the job; the job itself already reflects it.
func (s *RenderService) Run(ctx context.Context, id int) (err error) {
	r, err := s.begin(ctx, id)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			err = &SamplerFailure{Phase: r.phase, Err: fmt.Errorf("panic: %v", p)}
		}
		s.finalize(ctx, r, err)
	}()

	r.phase = progress.StageCheck.String()
	if err := s.validate(r.req); err != nil {
		return &SamplerFailure{Phase: r.phase, Err: err}
	}
	r.tracker.Complete(progress.StageCheck)

	for _, p := range s.phases() {
		if err := s.runPhase(ctx, r, p); err != nil {
			return err
		}
	}
	// An interrupt that arrived after the sampler's last checkpoint.
	if err := r.flag.Checkpoint(); err != nil {
		return err
	}

	s.publish(ctx, r)
	return nil
}

// Wait blocks until every job started by the local dispatcher returns.
func (s *RenderService) Wait() {
	if w, ok := s.dispatcher.(interface{ Wait() }); ok {
		w.Wait()
	}
}

// Restore reloads the stored queue. Jobs that were still active when the
// process stopped are marked failed.
func (s *RenderService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	jobs, lastID, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	var interrupted []*model.RenderJob
	s.mu.Lock()
	for _, job := range jobs {
		if !job.Status.Terminal() {
			finished := s.now()
			job.Status = model.JobStatusError
			job.Error = "interrupted by restart"
			job.FinishedAt = &finished
			interrupted = append(interrupted, job.Clone())
		}
		if job.ID > lastID {
			lastID = job.ID
		}
	}
	s.jobs = append(jobs, s.jobs...)
	if lastID > s.nextID {
		s.nextID = lastID
	}
	s.mu.Unlock()

	for _, job := range interrupted {
		s.persist(ctx, job)
	}
	s.log.Info().Int("jobs", len(jobs)).Int("interrupted", len(interrupted)).Msg("render queue restored")
	return nil
}

// begin moves a job from PENDING to RUNNING and binds a fresh tracker.
func (s *RenderService) begin(ctx context.Context, id int) (*run, error) {
	s.mu.Lock()
	job := s.findLocked(id)
	if job == nil {
		s.mu.Unlock()
		return nil, ErrJobNotFound
	}
	r := s.runs[id]
	if job.Status != model.JobStatusPending || r == nil {
		s.mu.Unlock()
		return nil, ErrJobNotPending
	}
	r.tracker = progress.New()
	r.started = s.now()
	started := r.started
	job.Status = model.JobStatusRunning
	job.StartedAt = &started
	snapshot := job.Clone()
	s.mu.Unlock()

	s.log.Info().Int("job", id).Str("project", r.project).Msg("render started")
	s.persist(ctx, snapshot)
	s.emit(model.RenderEvent{Type: model.EventJobStarted, JobID: id, Project: r.project, Status: model.JobStatusRunning})
	return r, nil
}

// finalize runs once per started job whatever the outcome.
func (s *RenderService) finalize(ctx context.Context, r *run, err error) {
	releaseCtx := context.WithoutCancel(ctx)
	if relErr := s.sampler.Release(releaseCtx, r.id); relErr != nil {
		s.log.Warn().Err(relErr).Int("job", r.id).Msg("failed to release sampler")
	}

	status := model.JobStatusSuccess
	cancelled := errors.Is(err, ErrCancelled)
	if err != nil {
		status = model.JobStatusError
	}

	s.mu.Lock()
	job := s.findLocked(r.id)
	finished := s.now()
	job.Status = status
	job.FinishedAt = &finished
	job.ApplyProgress(r.tracker.Snapshot())
	job.RunDir = r.runDir
	switch {
	case err == nil:
		job.VideoPath = r.videoPath
	case cancelled:
		job.Error = "interrupted"
	default:
		job.Error = fmt.Sprintf("render failed during %s", r.phase)
	}
	job.PublicURL = r.publicURL
	snapshot := job.Clone()
	delete(s.runs, r.id)
	s.mu.Unlock()

	elapsed := finished.Sub(r.started)
	switch {
	case err == nil:
		s.log.Info().Int("job", r.id).Str("video", r.videoPath).Dur("elapsed", elapsed).Msg("render finished")
	case cancelled:
		s.log.Info().Int("job", r.id).Str("phase", r.phase).Msg("render interrupted")
	default:
		s.log.Error().Err(err).Int("job", r.id).Str("phase", r.phase).Msg("render failed")
	}

	s.persist(releaseCtx, snapshot)
	s.emit(model.RenderEvent{
		Type:     model.EventJobFinished,
		JobID:    r.id,
		Project:  r.project,
		Status:   status,
		Elapsed:  elapsed,
		Err:      err,
		Canceled: cancelled,
	})
}

// abort fails a job that never started.
func (s *RenderService) abort(ctx context.Context, id int, cause error) {
	s.mu.Lock()
	job := s.findLocked(id)
	finished := s.now()
	job.Status = model.JobStatusError
	job.Error = "render could not be scheduled"
	job.FinishedAt = &finished
	snapshot := job.Clone()
	delete(s.runs, id)
	s.mu.Unlock()

	s.log.Error().Err(cause).Int("job", id).Msg("failed to dispatch render")
	s.persist(ctx, snapshot)
	s.emit(model.RenderEvent{Type: model.EventJobFinished, JobID: id, Project: snapshot.Project, Status: snapshot.Status, Err: cause})
}

func (s *RenderService) activeLocked() *model.RenderJob {
	if len(s.jobs) == 0 {
		return nil
	}
	last := s.jobs[len(s.jobs)-1]
	if last.Status.Active() {
		return last
	}
	return nil
}

func (s *RenderService) findLocked(id int) *model.RenderJob {
	// ids are assigned in append order but restored queues may have gaps
	for i := len(s.jobs) - 1; i >= 0; i-- {
		if s.jobs[i].ID == id {
			return s.jobs[i]
		}
	}
	return nil
}

func (s *RenderService) snapshotLocked(job *model.RenderJob) *model.RenderJob {
	out := job.Clone()
	if job.Status == model.JobStatusRunning {
		if r := s.runs[job.ID]; r != nil && r.tracker != nil {
			out.ApplyProgress(r.tracker.Snapshot())
		}
	}
	return out
}

func (s *RenderService) persist(ctx context.Context, job *model.RenderJob) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, job); err != nil {
		s.log.Warn().Err(err).Int("job", job.ID).Msg("failed to store job snapshot")
	}
}

func (s *RenderService) emit(ev model.RenderEvent) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	for _, o := range s.observers {
		o.Observe(ev)
	}
}

// publish uploads a finished render. Failures leave the job successful.
func (s *RenderService) publish(ctx context.Context, r *run) {
	if s.storage == nil || r.videoPath == "" {
		return
	}
	prefix := fmt.Sprintf("renders/%s/%s/", r.project, filepath.Base(r.runDir))

	url, err := s.storage.UploadFile(ctx, prefix+filepath.Base(r.videoPath), r.videoPath)
	if err != nil {
		s.log.Warn().Err(err).Int("job", r.id).Msg("failed to publish video")
		return
	}
	r.publicURL = url
	if r.configPath != "" {
		if _, err := s.storage.UploadFile(ctx, prefix+artifact.ResolvedFile, r.configPath); err != nil {
			s.log.Warn().Err(err).Int("job", r.id).Msg("failed to publish configuration")
		}
	}
	s.log.Info().Int("job", r.id).Str("url", url).Msg("render published")
}
