// Package ollama calls a local Ollama server for embeddings.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultModel = "mxbai-embed-large"

// Provider calls the Ollama embeddings API.
type Provider struct {
	client *resty.Client
	model  string
}

// New creates a Provider for baseURL, e.g. http://localhost:11434.
func New(baseURL, model string) *Provider {
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(5 * time.Minute)
	return &Provider{client: c, model: model}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed generates a dense vector for the given text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	reqBody := embedRequest{Model: p.model, Prompt: text}

	resp, err := p.client.R().SetContext(ctx).SetBody(&reqBody).Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		// Ollama answers non-200 when the model is missing; pull it and retry once.
		p.pullModel(ctx)
		retry, err := p.client.R().SetContext(ctx).SetBody(&reqBody).Post("/api/embeddings")
		if err != nil {
			return nil, fmt.Errorf("ollama status %d: %s (after pull attempt; err=%v)", resp.StatusCode(), resp.String(), err)
		}
		if retry.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("ollama status %d: %s (after pull attempt)", retry.StatusCode(), retry.String())
		}
		resp = retry
	}

	var er embedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if er.Error != "" {
		return nil, fmt.Errorf("ollama embeddings error: %s", er.Error)
	}
	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// pullModel is best-effort; failures surface on the retried embed call.
func (p *Provider) pullModel(ctx context.Context) {
	_, _ = p.client.R().SetContext(ctx).SetBody(map[string]interface{}{"name": p.model, "stream": false}).Post("/api/pull")
}

// HealthPing implements health.HealthPinger by checking /api/tags for the configured model.
func (p *Provider) HealthPing(ctx context.Context) error {
	var data struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	resp, err := p.client.R().SetContext(ctx).SetResult(&data).Get("/api/tags")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("ollama status %d", resp.StatusCode())
	}
	want := baseModelName(p.model)
	for _, m := range data.Models {
		if baseModelName(m.Name) == want {
			return nil
		}
	}
	return fmt.Errorf("model %s not found", want)
}

func baseModelName(name string) string {
	return strings.SplitN(name, ":", 2)[0]
}
