// Package cronjobs talks to the external cron service that triggers the
// webhook. The service owns all scheduling; this client only manages job
// registrations at startup/admin time.
package cronjobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Job is one registration on the cron service.
type Job struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	WebhookURL     string `json:"webhook_url"`
	Enabled        bool   `json:"enabled"`
}

// RegisterJobRequest is the payload for creating a job.
type RegisterJobRequest struct {
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	WebhookURL     string `json:"webhook_url"`
	WebhookSecret  string `json:"webhook_secret"`
}

// Options parameterise the cron service client.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// Client is an HTTP client for the cron service API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient constructs a cron service client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "cron_client").Logger(),
	}
}

// HealthCheck verifies the cron service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cron service health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cron service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// RegisterJob creates a job. The cron expression is validated client-side
// before the request is issued.
func (c *Client) RegisterJob(ctx context.Context, reg RegisterJobRequest) (*Job, error) {
	if _, err := cron.ParseStandard(reg.CronExpression); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", reg.CronExpression, err)
	}

	body, err := json.Marshal(reg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("register job: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}

	c.logger.Info().Str("job_id", job.ID).Str("name", job.Name).Msg("job registered")
	return &job, nil
}

// ListJobs fetches every registered job. Both a bare array and a wrapped
// {"jobs": [...]} response are accepted.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list jobs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var jobs []Job
	if err := json.Unmarshal(payload, &jobs); err == nil {
		return jobs, nil
	}

	var wrapped struct {
		Jobs []Job `json:"jobs"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return wrapped.Jobs, nil
}

// DeleteJob removes a job by id.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete job %s: status %d", jobID, resp.StatusCode)
	}

	c.logger.Info().Str("job_id", jobID).Msg("job deleted")
	return nil
}

// EnsureJob leaves exactly one active job with the requested name: any
// existing jobs with that name are deleted, then the job is registered
// fresh.
func (c *Client) EnsureJob(ctx context.Context, reg RegisterJobRequest) (*Job, error) {
	jobs, err := c.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	stale := lo.Filter(jobs, func(j Job, _ int) bool { return j.Name == reg.Name })
	for _, job := range stale {
		c.logger.Info().Str("job_id", job.ID).Msg("removing existing job")
		if err := c.DeleteJob(ctx, job.ID); err != nil {
			return nil, err
		}
	}

	return c.RegisterJob(ctx, reg)
}
