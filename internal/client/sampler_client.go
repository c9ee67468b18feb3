package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hylarucoder/animatediff-webui/internal/config"
	"github.com/hylarucoder/animatediff-webui/internal/model"
)

// SamplerClient drives a remote diffusion worker over HTTP. Each phase is
// started as a task on the worker and polled until it settles.
type SamplerClient struct {
	httpClient   *http.Client
	baseURL      string
	pollInterval time.Duration
	log          zerolog.Logger
}

type phaseRequest struct {
	Setting    *model.ProjectSetting `json:"setting"`
	ConfigPath string                `json:"configPath"`
	OutDir     string                `json:"outDir"`
}

type taskRef struct {
	TaskID string `json:"taskId"`
}

// TaskStatus is the worker's view of a running phase.
type TaskStatus struct {
	Status    string `json:"status"` // pending, running, completed, failed, cancelled
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	VideoPath string `json:"videoPath,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewSamplerClient(cfg *config.SamplerConfig, logger zerolog.Logger) *SamplerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SamplerClient{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      cfg.ServiceURL,
		pollInterval: interval,
		log:          logger,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *SamplerClient) IsConfigured() bool {
	return c.baseURL != ""
}

func (c *SamplerClient) Preprocess(ctx context.Context, rc *RunContext) error {
	_, err := c.runPhase(ctx, rc, "preprocess")
	return err
}

func (c *SamplerClient) LoadModels(ctx context.Context, rc *RunContext) error {
	_, err := c.runPhase(ctx, rc, "load")
	return err
}

func (c *SamplerClient) Sample(ctx context.Context, rc *RunContext) error {
	_, err := c.runPhase(ctx, rc, "sample")
	return err
}

func (c *SamplerClient) UnloadModels(ctx context.Context, rc *RunContext) error {
	_, err := c.runPhase(ctx, rc, "unload")
	return err
}

func (c *SamplerClient) Encode(ctx context.Context, rc *RunContext) (string, error) {
	st, err := c.runPhase(ctx, rc, "encode")
	if err != nil {
		return "", err
	}
	if st.VideoPath == "" {
		return "", fmt.Errorf("sampler finished encoding without a video path")
	}
	return st.VideoPath, nil
}

func (c *SamplerClient) Release(ctx context.Context, jobID int) error {
	return c.post(ctx, fmt.Sprintf("/jobs/%d/release", jobID), struct{}{}, nil)
}

// runPhase starts a phase and polls it. Every poll is a suspension point.
func (c *SamplerClient) runPhase(ctx context.Context, rc *RunContext, phase string) (*TaskStatus, error) {
	if err := rc.checkpoint(); err != nil {
		return nil, err
	}

	var ref taskRef
	body := phaseRequest{Setting: rc.Setting, ConfigPath: rc.ConfigPath, OutDir: rc.OutDir}
	if err := c.post(ctx, fmt.Sprintf("/jobs/%d/%s", rc.JobID, phase), body, &ref); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", phase, err)
	}

	attempt := 0
	for {
		attempt++
		if err := rc.checkpoint(); err != nil {
			c.cancelTask(ref.TaskID)
			return nil, err
		}

		var st TaskStatus
		if err := c.get(ctx, "/tasks/"+ref.TaskID, &st); err != nil {
			return nil, fmt.Errorf("failed to poll %s: %w", phase, err)
		}
		c.log.Debug().
			Int("job", rc.JobID).
			Str("phase", phase).
			Int("attempt", attempt).
			Str("status", st.Status).
			Msg("sampler poll")
		rc.report(st.Done, st.Total)

		switch st.Status {
		case "completed":
			return &st, nil
		case "failed", "cancelled":
			return nil, fmt.Errorf("%s %s: %s", phase, st.Status, st.Error)
		}

		select {
		case <-ctx.Done():
			c.cancelTask(ref.TaskID)
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// cancelTask asks the worker to stop a task. Failures are only logged.
func (c *SamplerClient) cancelTask(taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.post(ctx, "/tasks/"+taskID+"/cancel", struct{}{}, nil); err != nil {
		c.log.Warn().Err(err).Str("task", taskID).Msg("failed to cancel sampler task")
	}
}

// post sends a POST request with JSON body
func (c *SamplerClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *SamplerClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *SamplerClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sampler error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
