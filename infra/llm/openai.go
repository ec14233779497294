package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/resqmeals/gateway/core/fault"
)

// OpenAIClient talks to any chat-completions compatible endpoint through
// go-openai. The SDK sends exactly one request per call.
type OpenAIClient struct {
	cfg    Config
	client *openai.Client
}

// NewOpenAIClient builds a client from cfg. An empty BaseURL targets the
// OpenAI API.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = base
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout()}
	return &OpenAIClient{cfg: cfg, client: openai.NewClientWithConfig(oc)}
}

// Complete performs one chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fault.Newf(fault.ErrConfiguration, "llm", "api key is not set")
	}
	if c.cfg.Model == "" {
		return "", fault.Newf(fault.ErrConfiguration, "llm", "model is not set")
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", transportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fault.Newf(fault.ErrTransport, "llm", "response missing choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func transportError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fault.Newf(fault.ErrTransport, "llm", "status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fault.Newf(fault.ErrTransport, "llm", "status %d: %v", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fault.New(fault.ErrTransport, "llm", err)
}
