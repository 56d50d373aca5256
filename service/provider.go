package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Normalized provider-side job statuses.
const (
	ProviderStatusPending    = "pending"
	ProviderStatusProcessing = "processing"
	ProviderStatusCompleted  = "completed"
	ProviderStatusFailed     = "failed"
)

// GenerationRequest carries the parameters for one generation job. The
// prompt text itself is assembled upstream; the core only forwards it.
type GenerationRequest struct {
	ProjectID   string `json:"project_id"`
	SceneID     string `json:"scene_id,omitempty"`
	Kind        string `json:"kind"` // "video" or "music"
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Seconds     int    `json:"seconds,omitempty"`
}

// StatusResult is the async provider's answer to a status check.
type StatusResult struct {
	Status    string  `json:"status"`
	ResultURL string  `json:"result_url,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// AsyncClient talks to the async-task provider: submit once, learn
// completion later through the status endpoint.
type AsyncClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewAsyncClient(baseURL, apiKey string) *AsyncClient {
	return &AsyncClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Start submits a job and returns the provider's opaque external task id.
func (c *AsyncClient) Start(ctx context.Context, req GenerationRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.auth(httpReq)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", &NetworkError{Op: "start generation", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", classifyStatus(resp)
	}

	var out struct {
		ExternalTaskID string `json:"external_task_id"`
		ID             string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start response: %w", err)
	}
	if out.ExternalTaskID != "" {
		return out.ExternalTaskID, nil
	}
	if out.ID != "" {
		return out.ID, nil
	}
	return "", fmt.Errorf("start response missing task id")
}

// Status fetches the current state of an external task.
func (c *AsyncClient) Status(ctx context.Context, externalTaskID string) (*StatusResult, error) {
	url := fmt.Sprintf("%s/v1/generations/%s", c.BaseURL, externalTaskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.auth(httpReq)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "status check", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}
	var out StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &out, nil
}

func (c *AsyncClient) auth(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

// Operation is the handle returned by the sync-poll provider's submit.
type Operation struct {
	ID string `json:"id"`
}

// PollResult is one answer from the sync provider's poll endpoint.
type PollResult struct {
	Done      bool    `json:"done"`
	ResultURL string  `json:"result_url,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Filtered  bool    `json:"filtered,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// SyncClient talks to the synchronous-poll provider: the caller submits
// and then holds a poll loop open on the operation handle until done.
type SyncClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewSyncClient(baseURL, apiKey string) *SyncClient {
	return &SyncClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *SyncClient) Submit(ctx context.Context, req GenerationRequest) (*Operation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/operations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.auth(httpReq)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "submit operation", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, classifyStatus(resp)
	}
	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	if op.ID == "" {
		return nil, fmt.Errorf("submit response missing operation id")
	}
	return &op, nil
}

func (c *SyncClient) Poll(ctx context.Context, op *Operation) (*PollResult, error) {
	url := fmt.Sprintf("%s/v1/operations/%s", c.BaseURL, op.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.auth(httpReq)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "poll operation", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}
	var out PollResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return &out, nil
}

// Download retrieves the finished result bytes.
func (c *SyncClient) Download(ctx context.Context, resultURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "download result", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "result download failed"}
	}
	return io.ReadAll(resp.Body)
}

func (c *SyncClient) auth(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

// classifyStatus maps a non-2xx provider response onto the error
// taxonomy, attaching remediation hints for the usual suspects.
func classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error    string `json:"error"`
		Filtered bool   `json:"filtered"`
	}
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	if body.Filtered || resp.StatusCode == http.StatusUnprocessableEntity {
		return &ContentFilterError{Reason: msg}
	}

	hint := ""
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		hint = "rate limited; lower concurrency or wait before retrying"
	case http.StatusUnauthorized, http.StatusForbidden:
		hint = "check the provider API key"
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: msg, Hint: hint}
}
