package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// LLMClient sends one prompt to the model and returns its full answer.
type LLMClient interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint,
// Gemini's included.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient builds a client for baseURL. An empty baseURL keeps the
// library default.
func NewOpenAIClient(apiKey, baseURL string, hc *http.Client) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm api key is empty")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if hc != nil {
		cfg.HTTPClient = hc
	}

	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
