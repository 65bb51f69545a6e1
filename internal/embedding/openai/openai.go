// Package openai embeds text through an OpenAI-compatible API.
package openai

import (
	"context"
	"fmt"
	"os"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"docrag/internal/domain"
)

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	client *openai.Client
	model  string
}

// Config configures the client. The API key is read from APIKeyEnv.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.E(domain.KindConfig, "openai.embed", "missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	config := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{client: openai.NewClientWithConfig(config), model: cfg.Model}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// EmbedOne returns an embedding vector for the given text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds all texts in one request and orders the result by the
// index the API reports.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "openai.embed"
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindUpstream, op, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.E(domain.KindUpstream, op, "got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, domain.E(domain.KindUpstream, op, "unexpected embedding index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%s: empty embedding for input %d", op, i)
		}
	}
	return out, nil
}
