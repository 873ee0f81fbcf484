// Package client provides a REST client for the modeldash server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/refinelab/modeldash/internal/metrics"
	"github.com/refinelab/modeldash/internal/models"
	"github.com/refinelab/modeldash/internal/ollama"
)

// Client talks to the modeldash REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses the MODELDASH_SERVER_URL env var or defaults to
// localhost:8430. Timeout can be configured via MODELDASH_CLIENT_TIMEOUT.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("MODELDASH_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8430"
	}

	timeout := 5 * time.Minute // generous: ingest and evaluation calls embed
	if t := os.Getenv("MODELDASH_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// errorEnvelope mirrors the server's error payload.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// do sends a request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil && envelope.Error.Message != "" {
			return fmt.Errorf("server error (%d %s): %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health reports the server's dependency status.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var result map[string]string
	if err := c.do(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Stats returns the server's in-memory operation timings.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListModels returns the installed Ollama models.
func (c *Client) ListModels(ctx context.Context) ([]ollama.Model, error) {
	var list []ollama.Model
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteModel removes a model.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/models/"+name, nil, nil)
}

// ListDatasets returns all registered datasets.
func (c *Client) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	var list []models.Dataset
	if err := c.do(ctx, http.MethodGet, "/api/datasets", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreateDataset registers a new dataset.
func (c *Client) CreateDataset(ctx context.Context, input models.DatasetInput) (*models.Dataset, error) {
	var ds models.Dataset
	if err := c.do(ctx, http.MethodPost, "/api/datasets", input, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// ListJobs returns all training jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]models.TrainingJob, error) {
	var list []models.TrainingJob
	if err := c.do(ctx, http.MethodGet, "/api/training-jobs", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetJob retrieves a training job by id.
func (c *Client) GetJob(ctx context.Context, id int64) (*models.TrainingJob, error) {
	var job models.TrainingJob
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/training-jobs/%d", id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob creates a training job.
func (c *Client) CreateJob(ctx context.Context, input models.TrainingJobInput) (*models.TrainingJob, error) {
	var job models.TrainingJob
	if err := c.do(ctx, http.MethodPost, "/api/training-jobs", input, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// StartJob begins executing a training job in the background.
func (c *Client) StartJob(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/training-jobs/%d/start", id), nil, nil)
}

// StopJob cancels a running training job.
func (c *Client) StopJob(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/training-jobs/%d/stop", id), nil, nil)
}

// RAGDatasets returns the dataset ids in a job's knowledge base.
func (c *Client) RAGDatasets(ctx context.Context, jobID int64) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/rag/jobs/%d/datasets", jobID), nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RAGCollections returns the collection names backing a job's knowledge base.
func (c *Client) RAGCollections(ctx context.Context, jobID int64) ([]string, error) {
	var names []string
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/rag/jobs/%d/collections", jobID), nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// RAGIngest ingests a stored dataset into a job's knowledge base.
func (c *Client) RAGIngest(ctx context.Context, jobID, datasetID int64) error {
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/rag/jobs/%d/datasets/%d", jobID, datasetID), nil, nil)
}

// RAGDeleteDataset removes a dataset from a job's knowledge base.
func (c *Client) RAGDeleteDataset(ctx context.Context, jobID, datasetID int64) error {
	return c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/api/rag/jobs/%d/datasets/%d", jobID, datasetID), nil, nil)
}
