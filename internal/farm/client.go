// Package farm is the HTTP client for the render farm management API. It
// covers the handful of calls a submission needs: resolving farm and queue
// metadata, fetching queue environment parameter definitions, and creating
// jobs.
package farm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"stagehand/internal/config"
	"stagehand/internal/queueparams"
)

// HTTPDoer describes the HTTP client used by the farm service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Farm is the farm resource as returned by the service.
type Farm struct {
	FarmID      string `json:"farmId"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

// Queue is the queue resource as returned by the service.
type Queue struct {
	QueueID            string `json:"queueId"`
	DisplayName        string `json:"displayName"`
	Status             string `json:"status,omitempty"`
	DefaultBudgetUsage string `json:"defaultBudgetUsage,omitempty"`
}

// StorageProfile describes the shared storage layout a queue expects.
type StorageProfile struct {
	StorageProfileID string           `json:"storageProfileId"`
	DisplayName      string           `json:"displayName"`
	OSFamily         string           `json:"osFamily,omitempty"`
	FileSystems      []FileSystemRoot `json:"fileSystemLocations,omitempty"`
}

// FileSystemRoot is one shared filesystem location of a storage profile.
type FileSystemRoot struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type,omitempty"`
}

// CreateJobRequest is the payload for job creation.
type CreateJobRequest struct {
	Template             string            `json:"template"`
	TemplateType         string            `json:"templateType"`
	Priority             int               `json:"priority"`
	TargetTaskRunStatus  string            `json:"targetTaskRunStatus,omitempty"`
	MaxFailedTasksCount  int               `json:"maxFailedTasksCount"`
	MaxRetriesPerTask    int               `json:"maxRetriesPerTask"`
	Parameters           map[string]string `json:"parameters,omitempty"`
	StorageProfileID     string            `json:"storageProfileId,omitempty"`
	SourceManifestHashes []string          `json:"sourceManifestHashes,omitempty"`
}

// CreateJobResponse carries the identifier of the created job.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// Client talks to one farm endpoint.
type Client struct {
	endpoint string
	token    string
	client   HTTPDoer
}

// NewClient builds a farm client from configuration. The HTTP client's
// timeout follows the configured request timeout.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Farm.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("farm endpoint not configured")
	}
	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Farm.AuthToken),
		client:   &http.Client{Timeout: time.Duration(cfg.Farm.RequestTimeout) * time.Second},
	}, nil
}

// NewClientWithDoer injects a custom HTTP doer, primarily for tests.
func NewClientWithDoer(endpoint, token string, doer HTTPDoer) *Client {
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		token:    strings.TrimSpace(token),
		client:   doer,
	}
}

// GetFarm fetches farm metadata.
func (c *Client) GetFarm(ctx context.Context, farmID string) (*Farm, error) {
	var out Farm
	path := fmt.Sprintf("/2023-10-12/farms/%s", farmID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("get farm %s: %w", farmID, err)
	}
	return &out, nil
}

// GetQueue fetches queue metadata.
func (c *Client) GetQueue(ctx context.Context, farmID, queueID string) (*Queue, error) {
	var out Queue
	path := fmt.Sprintf("/2023-10-12/farms/%s/queues/%s", farmID, queueID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("get queue %s: %w", queueID, err)
	}
	return &out, nil
}

// GetStorageProfile fetches a queue-scoped storage profile.
func (c *Client) GetStorageProfile(ctx context.Context, farmID, queueID, profileID string) (*StorageProfile, error) {
	var out StorageProfile
	path := fmt.Sprintf("/2023-10-12/farms/%s/queues/%s/storage-profiles/%s", farmID, queueID, profileID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("get storage profile %s: %w", profileID, err)
	}
	return &out, nil
}

// ListQueueParameterDefinitions fetches every queue environment parameter
// definition, following pagination.
func (c *Client) ListQueueParameterDefinitions(ctx context.Context, farmID, queueID string) ([]queueparams.Definition, error) {
	type page struct {
		ParameterDefinitions []queueparams.Definition `json:"parameterDefinitions"`
		NextToken            string                   `json:"nextToken,omitempty"`
	}

	var defs []queueparams.Definition
	token := ""
	for {
		path := fmt.Sprintf("/2023-10-12/farms/%s/queues/%s/parameter-definitions", farmID, queueID)
		if token != "" {
			path += "?nextToken=" + token
		}
		var out page
		if err := c.get(ctx, path, &out); err != nil {
			return nil, fmt.Errorf("list queue parameter definitions: %w", err)
		}
		defs = append(defs, out.ParameterDefinitions...)
		if out.NextToken == "" {
			return defs, nil
		}
		token = out.NextToken
	}
}

// CreateJob submits a job to the queue and returns its identifier.
func (c *Client) CreateJob(ctx context.Context, farmID, queueID string, req CreateJobRequest) (string, error) {
	if req.TemplateType == "" {
		req.TemplateType = "YAML"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode create job request: %w", err)
	}
	path := fmt.Sprintf("/2023-10-12/farms/%s/queues/%s/jobs", farmID, queueID)
	var out CreateJobResponse
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), &out); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if out.JobID == "" {
		return "", errors.New("create job: service returned no job id")
	}
	return out.JobID, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if c == nil || c.client == nil {
		return errors.New("farm client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(payload))
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
