// Package client talks to the research API: submission with retries, status
// and result reads, cancellation, and health checks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/research-sdk-go/observe"
	"github.com/talentsift/research-sdk-go/types"
)

const (
	defaultSubmitTimeout = 120 * time.Second
	defaultStatusTimeout = 10 * time.Second
)

type Client struct {
	baseURL      string
	submitClient *http.Client
	statusClient *http.Client
	policy       RetryPolicy
	observer     observe.Sink
	instanceID   string
}

type Option func(*Client)

func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.submitClient.Timeout = d
		}
	}
}

func WithStatusTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.statusClient.Timeout = d
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.policy = normalizeRetryPolicy(policy) }
}

// WithHTTPClient replaces both underlying clients, dropping the split
// timeouts. Mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.submitClient = h
			c.statusClient = h
		}
	}
}

func WithObserver(sink observe.Sink) Option {
	return func(c *Client) {
		if sink != nil {
			c.observer = sink
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("research API base URL is required")
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		submitClient: &http.Client{Timeout: defaultSubmitTimeout},
		statusClient: &http.Client{Timeout: defaultStatusTimeout},
		policy:       DefaultRetryPolicy(),
		observer:     observe.NoopSink{},
		instanceID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

type SubmitResult struct {
	RunID   string
	Status  string
	Message string
}

// Submit validates the request locally, then posts it with retries. Only
// network faults, timeouts, throttling, and server faults retry; validation
// rejections fail on the spot.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := req.Validate(); err != nil {
		c.emit(ctx, observe.Event{Kind: observe.KindSubmit, Status: observe.StatusFailed, Error: err.Error()})
		return SubmitResult{}, err
	}

	body, contentType, err := encodeSubmitForm(req)
	if err != nil {
		return SubmitResult{}, err
	}

	c.emit(ctx, observe.Event{Kind: observe.KindSubmit, Status: observe.StatusStarted})

	var lastErr *types.RunError
	attempts := 0
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		attempts = attempt
		result, runErr := c.postSubmission(ctx, body, contentType, req.OnUploadProgress)
		if runErr == nil {
			c.emit(ctx, observe.Event{
				Kind:   observe.KindSubmit,
				Status: observe.StatusCompleted,
				RunID:  result.RunID,
				Attributes: map[string]any{
					"attempt": attempt,
				},
			})
			return result, nil
		}
		lastErr = runErr
		if !runErr.Retryable || attempt == c.policy.MaxAttempts {
			break
		}
		backoff := c.policy.backoffForAttempt(attempt)
		c.emit(ctx, observe.Event{
			Kind:    observe.KindSubmit,
			Status:  observe.StatusFailed,
			Error:   runErr.Error(),
			Message: fmt.Sprintf("retrying in %s", backoff),
			Attributes: map[string]any{
				"attempt": attempt,
			},
		})
		select {
		case <-ctx.Done():
			return SubmitResult{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	c.emit(ctx, observe.Event{Kind: observe.KindSubmit, Status: observe.StatusFailed, Error: lastErr.Error()})
	return SubmitResult{}, fmt.Errorf("submission failed after %d attempt(s): %w", attempts, lastErr)
}

func (c *Client) postSubmission(ctx context.Context, body []byte, contentType string, onProgress func(sent, total int64)) (SubmitResult, *types.RunError) {
	var reader io.Reader = bytes.NewReader(body)
	if onProgress != nil {
		reader = &progressReader{r: reader, total: int64(len(body)), fn: onProgress}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/research", reader)
	if err != nil {
		return SubmitResult{}, &types.RunError{Kind: types.ErrorNetwork, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Client-Instance", c.instanceID)

	resp, err := c.submitClient.Do(httpReq)
	if err != nil {
		return SubmitResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SubmitResult{}, &types.RunError{Kind: types.ErrorNetwork, Message: err.Error(), Retryable: true}
	}
	if resp.StatusCode >= 300 {
		return SubmitResult{}, classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return SubmitResult{}, &types.RunError{Kind: types.ErrorServer, Message: fmt.Sprintf("failed to decode submission response: %v", err)}
	}
	if decoded.ResearchID == "" {
		return SubmitResult{}, &types.RunError{Kind: types.ErrorServer, Message: "submission response had no research_id"}
	}
	return SubmitResult{RunID: decoded.ResearchID, Status: decoded.Status, Message: decoded.Message}, nil
}

// StatusSnapshot is the server's view of a run at one poll instant.
type StatusSnapshot struct {
	RunID                  string
	Status                 types.RunStatus
	CurrentStage           string
	OverallProgress        float64
	EstimatedSecondsRemain *int
	Stages                 []StageSnapshot
	Error                  *types.RunError
}

type StageSnapshot struct {
	ID       string
	Status   types.StageStatus
	Progress float64
}

func (c *Client) Status(ctx context.Context, runID string) (StatusSnapshot, error) {
	if strings.TrimSpace(runID) == "" {
		return StatusSnapshot{}, fmt.Errorf("run id is required")
	}
	var decoded statusResponse
	if err := c.getJSON(ctx, "/api/research/"+runID+"/status", &decoded); err != nil {
		return StatusSnapshot{}, err
	}

	snapshot := StatusSnapshot{
		RunID:                  decoded.ResearchID,
		Status:                 types.RunStatus(decoded.Status),
		CurrentStage:           decoded.CurrentStage,
		OverallProgress:        decoded.OverallProgress,
		EstimatedSecondsRemain: decoded.EstimatedTimeRemaining,
	}
	if snapshot.RunID == "" {
		snapshot.RunID = runID
	}
	for _, stage := range decoded.Stages {
		snapshot.Stages = append(snapshot.Stages, StageSnapshot{
			ID:       stage.ID,
			Status:   types.StageStatus(stage.Status),
			Progress: stage.Progress,
		})
	}
	if decoded.Error != nil {
		snapshot.Error = &types.RunError{
			Kind:      types.ErrorKind(decoded.Error.Kind),
			Message:   decoded.Error.Message,
			Stage:     decoded.Error.Stage,
			Retryable: decoded.Error.Retryable,
		}
	}
	return snapshot, nil
}

// Results fetches the final score card. The payload is opaque to the
// tracker and handed through untouched.
func (c *Client) Results(ctx context.Context, runID string) (json.RawMessage, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/research/"+runID+"/results", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create results request: %w", err)
	}
	resp, err := c.statusClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("results request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read results response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.RawMessage(raw), nil
}

// Cancel asks the server to stop a run. Callers treat this as best effort;
// local state is already cancelled when this goes out.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/research/"+runID+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("failed to create cancel request: %w", err)
	}
	resp, err := c.statusClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := c.statusClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("research API unhealthy (%d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.statusClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func encodeSubmitForm(req SubmitRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("linkedin_url", req.LinkedInURL); err != nil {
		return nil, "", fmt.Errorf("failed to encode linkedin_url: %w", err)
	}
	cvPart, err := form.CreateFormFile("cv_file", req.CV.Name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode cv file: %w", err)
	}
	if _, err := cvPart.Write(req.CV.Content); err != nil {
		return nil, "", fmt.Errorf("failed to encode cv file: %w", err)
	}

	if req.JobDescriptionFile != nil && len(req.JobDescriptionFile.Content) > 0 {
		jdPart, err := form.CreateFormFile("job_description_file", req.JobDescriptionFile.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode job description file: %w", err)
		}
		if _, err := jdPart.Write(req.JobDescriptionFile.Content); err != nil {
			return nil, "", fmt.Errorf("failed to encode job description file: %w", err)
		}
	} else {
		if err := form.WriteField("job_description", req.JobDescription); err != nil {
			return nil, "", fmt.Errorf("failed to encode job_description: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return buf.Bytes(), form.FormDataContentType(), nil
}

func (c *Client) emit(ctx context.Context, event observe.Event) {
	if c == nil || c.observer == nil {
		return
	}
	event.Normalize()
	_ = c.observer.Emit(ctx, event)
}

type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

type submitResponse struct {
	ResearchID string `json:"research_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

type statusResponse struct {
	ResearchID             string            `json:"research_id"`
	Status                 string            `json:"status"`
	CurrentStage           string            `json:"current_stage"`
	OverallProgress        float64           `json:"overall_progress"`
	EstimatedTimeRemaining *int              `json:"estimated_time_remaining"`
	Stages                 []stageStatusBody `json:"stages"`
	Error                  *errorBody        `json:"error"`
}

type stageStatusBody struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

type errorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Stage     string `json:"stage"`
	Retryable bool   `json:"retryable"`
}
