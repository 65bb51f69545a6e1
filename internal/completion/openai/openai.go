// Package openai answers prompts through an OpenAI-compatible chat API.
package openai

import (
	"context"
	"os"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"docrag/internal/domain"
)

// Client wraps the chat completions endpoint.
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

// NewClient creates a chat client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.E(domain.KindConfig, "openai.chat", "missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	config := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{client: openai.NewClientWithConfig(config), model: cfg.Model}, nil
}

// Complete sends a system and a user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	const op = "openai.chat"
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", domain.Wrap(domain.KindUpstream, op, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.E(domain.KindUpstream, op, "empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
