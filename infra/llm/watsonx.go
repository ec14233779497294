package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/resqmeals/gateway/auth"
	"github.com/resqmeals/gateway/core/fault"
)

const (
	defaultWatsonxURL = "https://us-south.ml.cloud.ibm.com"
	watsonxVersion    = "2024-05-01"
)

// Message is one chat turn on the watsonx wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type watsonxRequest struct {
	ModelID     string    `json:"model_id"`
	ProjectID   string    `json:"project_id"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type watsonxResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// WatsonxClient calls the watsonx.ai text chat endpoint with an IAM token.
type WatsonxClient struct {
	cfg     Config
	baseURL string
	tokens  auth.Provider
	http    *http.Client
}

// NewWatsonxClient builds a client. tokens may be nil, in which case an IAM
// provider is derived from cfg.APIKey.
func NewWatsonxClient(cfg Config, tokens auth.Provider) *WatsonxClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultWatsonxURL
	}
	client := &http.Client{Timeout: cfg.Timeout()}
	if tokens == nil {
		tokens = auth.NewProvider(auth.Conf{Mode: auth.ModeIAM, APIKey: cfg.APIKey, IAMURL: cfg.IAMURL}, client)
	}
	return &WatsonxClient{cfg: cfg, baseURL: base, tokens: tokens, http: client}
}

// Complete performs one chat completion.
func (c *WatsonxClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.ProjectID == "" {
		return "", fault.Newf(fault.ErrConfiguration, "llm", "watsonx project id is not set")
	}
	if c.cfg.Model == "" {
		return "", fault.Newf(fault.ErrConfiguration, "llm", "model is not set")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(watsonxRequest{
		ModelID:   c.cfg.Model,
		ProjectID: c.cfg.ProjectID,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/ml/v1/text/chat?version=%s", c.baseURL, watsonxVersion)
	var decoded watsonxResponse
	if err := postJSON(ctx, c.http, endpoint, "Bearer "+token, payload, &decoded); err != nil {
		return "", err
	}
	if len(decoded.Choices) == 0 {
		return "", fault.Newf(fault.ErrTransport, "llm", "response missing choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// postJSON sends payload and decodes a 2xx JSON response into out.
func postJSON(ctx context.Context, client *http.Client, endpoint, authorization string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fault.New(fault.ErrTransport, "llm", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fault.Newf(fault.ErrTransport, "llm", "status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Newf(fault.ErrTransport, "llm", "decode response: %v", err)
	}
	return nil
}
