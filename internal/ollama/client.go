// Package ollama manages local Ollama models for the dashboard.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/refinelab/modeldash/internal/metrics"
)

// Model describes an installed Ollama model.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	ModifiedAt time.Time `json:"modified_at"`
	Family     string    `json:"family,omitempty"`
	ParamSize  string    `json:"parameter_size,omitempty"`
	Quant      string    `json:"quantization_level,omitempty"`
}

// ModelDetails is the full metadata for a single model.
type ModelDetails struct {
	Name       string           `json:"name"`
	Modelfile  string           `json:"modelfile"`
	Parameters string           `json:"parameters"`
	Template   string           `json:"template"`
	System     string           `json:"system"`
	Details    api.ModelDetails `json:"details"`
}

// Client wraps the Ollama API for model lifecycle operations.
type Client struct {
	api     *api.Client
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewClient creates a model-management client. The server URL comes from
// the OLLAMA_HOST environment variable.
func NewClient(collector *metrics.Collector, logger *slog.Logger) (*Client, error) {
	apiClient, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Client{api: apiClient, metrics: collector, logger: logger}, nil
}

// List returns the installed models.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	start := time.Now()
	resp, err := c.api.List(ctx)
	c.metrics.RecordTiming(metrics.OpOllama, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	list := make([]Model, len(resp.Models))
	for i, m := range resp.Models {
		list[i] = Model{
			Name:       m.Name,
			Size:       m.Size,
			Digest:     m.Digest,
			ModifiedAt: m.ModifiedAt,
			Family:     m.Details.Family,
			ParamSize:  m.Details.ParameterSize,
			Quant:      m.Details.QuantizationLevel,
		}
	}
	return list, nil
}

// Show returns the full metadata for a model.
func (c *Client) Show(ctx context.Context, name string) (*ModelDetails, error) {
	start := time.Now()
	resp, err := c.api.Show(ctx, &api.ShowRequest{Model: name})
	c.metrics.RecordTiming(metrics.OpOllama, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("show model %q: %w", name, err)
	}
	return &ModelDetails{
		Name:       name,
		Modelfile:  resp.Modelfile,
		Parameters: resp.Parameters,
		Template:   resp.Template,
		System:     resp.System,
		Details:    resp.Details,
	}, nil
}

// Create builds a new model from a base model with the given system prompt
// and generation parameters. Blocks until the create completes.
func (c *Client) Create(ctx context.Context, name, from, system string, params ModelfileParams) error {
	req := &api.CreateRequest{
		Model:  name,
		From:   from,
		System: system,
		Parameters: map[string]any{
			"num_ctx":        params.NumCtx,
			"temperature":    params.Temperature,
			"top_p":          params.TopP,
			"top_k":          params.TopK,
			"repeat_penalty": params.RepeatPenalty,
			"repeat_last_n":  64,
		},
	}

	start := time.Now()
	err := c.api.Create(ctx, req, func(resp api.ProgressResponse) error {
		c.logger.Debug("model create progress", "model", name, "status", resp.Status)
		return nil
	})
	c.metrics.RecordTiming(metrics.OpOllama, time.Since(start))
	if err != nil {
		return fmt.Errorf("create model %q from %q: %w", name, from, err)
	}

	c.logger.Info("ollama model created", "model", name, "from", from)
	return nil
}

// Delete removes a model.
func (c *Client) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := c.api.Delete(ctx, &api.DeleteRequest{Model: name})
	c.metrics.RecordTiming(metrics.OpOllama, time.Since(start))
	if err != nil {
		return fmt.Errorf("delete model %q: %w", name, err)
	}
	c.logger.Info("ollama model deleted", "model", name)
	return nil
}

// Heartbeat checks that the Ollama server is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}
