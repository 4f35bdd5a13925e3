// Package oracle wraps the hosted chat-completion service. The service is
// treated as a black box mapping a prompt to free text; callers never trust
// the reply to follow a schema.
package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds the chat-completion endpoint settings.
type Config struct {
	APIKey      string
	BaseURL     string // OpenAI-compatible endpoint, e.g. https://api.perplexity.ai
	Model       string
	Temperature float32
	TimeoutMS   int
}

// Client issues single synchronous chat-completion calls.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
}

// New creates a Client for the configured endpoint.
func New(cfg Config) *Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	c.HTTPClient = httpClient

	return &Client{
		api:         openai.NewClientWithConfig(c),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Ask sends systemPrompt plus userText and returns the raw reply. No
// retries: a transport or API error surfaces as the error return, and the
// caller decides how to degrade.
func (c *Client) Ask(ctx context.Context, systemPrompt, userText string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
	})
	if err != nil {
		return "", fmt.Errorf("oracle: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
