// Package openai calls the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultModel = "text-embedding-3-small"

type Provider struct {
	client *resty.Client
	model  string
}

// New creates a provider against baseURL (e.g. https://api.openai.com).
func New(baseURL, apiKey, model string) *Provider {
	if model == "" {
		model = DefaultModel
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)
	return &Provider{client: c, model: model}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch sends all texts in one request and returns vectors in input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var (
		result embedResponse
		apiErr apiError
	)
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(embedRequest{Input: texts, Model: p.model}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/v1/embeddings")
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return nil, fmt.Errorf("openai embeddings status %d: %s", resp.StatusCode(), msg)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(result.Data), len(texts))
	}
	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	out := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// HealthPing implements health.HealthPinger by listing models.
func (p *Provider) HealthPing(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get("/v1/models")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("openai status %d", resp.StatusCode())
	}
	return nil
}
