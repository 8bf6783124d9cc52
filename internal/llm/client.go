// Package llm talks to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/history"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Response is one completion result
type Response struct {
	Content     string
	Model       string
	TotalTokens int
	Elapsed     time.Duration
}

// Client wraps a go-openai client with the configured endpoint
type Client struct {
	client *openai.Client
	logger *zap.Logger
}

// NewClient creates a client for the configured base URL and key
func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		client: openai.NewClientWithConfig(oc),
		logger: logger,
	}
}

// Complete sends messages to the model described by profile
func (c *Client) Complete(ctx context.Context, profile config.ModelConfig, messages []history.Message) (Response, error) {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       profile.Name,
		Messages:    oaMsgs,
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion returned no choices")
	}

	out := Response{
		Content:     resp.Choices[0].Message.Content,
		Model:       profile.Name,
		TotalTokens: resp.Usage.TotalTokens,
		Elapsed:     time.Since(start),
	}

	c.logger.Debug("Chat completion finished",
		zap.String("model", out.Model),
		zap.Int("tokens", out.TotalTokens),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out, nil
}
