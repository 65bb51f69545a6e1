// Package ollama answers prompts with a local Ollama chat model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docrag/internal/domain"
)

// Client calls the non-streaming /api/chat endpoint.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// Config configures the chat client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient creates a chat client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 300 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: t},
	}
}

// Complete sends a system and a user message and returns the reply.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	const op = "ollama.chat"
	body, err := json.Marshal(struct {
		Model    string    `json:"model"`
		Messages []message `json:"messages"`
		Stream   bool      `json:"stream"`
	}{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.Wrap(domain.KindUpstream, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.Wrap(domain.KindUpstream, op, err)
	}
	if resp.StatusCode >= 300 {
		return "", domain.E(domain.KindUpstream, op, "chat request failed: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	var out struct {
		Message message `json:"message"`
		Error   string  `json:"error"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", domain.Wrap(domain.KindUpstream, op, fmt.Errorf("decode chat response: %w", err))
	}
	if out.Error != "" {
		return "", domain.Wrap(domain.KindUpstream, op, errors.New(out.Error))
	}
	return out.Message.Content, nil
}
