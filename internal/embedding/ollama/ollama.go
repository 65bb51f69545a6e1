// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docrag/internal/domain"
)

// Client calls the Ollama /api/embed endpoint.
type Client struct {
	baseURL    string
	model      string
	client     *http.Client
	maxRetries int
}

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: cfg.MaxRetries,
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "ollama:" + c.model }

// EmbedOne returns an embedding vector for the given text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds all texts in one request.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "ollama.embed"
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: c.model, Input: texts})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, retryDelay(attempt-1)); err != nil {
				return nil, domain.Wrap(domain.KindUpstream, op, err)
			}
		}
		vecs, retry, err := c.post(ctx, body)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, domain.E(domain.KindUpstream, op, "got %d embeddings for %d inputs", len(vecs), len(texts))
			}
			return vecs, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, domain.Wrap(domain.KindUpstream, op, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) ([][]float32, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			_ = sleep(ctx, time.Duration(secs)*time.Second)
		}
		return nil, true, fmt.Errorf("embed request failed: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("embed request failed: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	vecs, err := decode(payload)
	return vecs, false, err
}

// decode accepts both the batch shape {"embeddings": [[...]]} and the older
// single shape {"embedding": [...]}.
func decode(payload []byte) ([][]float32, error) {
	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
		Embedding  []float32   `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embeddings) > 0 {
		return out.Embeddings, nil
	}
	if len(out.Embedding) > 0 {
		return [][]float32{out.Embedding}, nil
	}
	return nil, errors.New("no embedding returned")
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 200ms<<5 already exceeds the cap; larger shifts overflow
	if attempt > 5 {
		attempt = 5
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
