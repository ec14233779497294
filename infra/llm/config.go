package llm

import "time"

// Provider selectors.
const (
	ProviderOpenAI  = "openai"
	ProviderWatsonx = "watsonx"
)

// Config holds the language-model settings.
type Config struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	APIKey         string  `json:"api_key"`
	BaseURL        string  `json:"base_url"`
	ProjectID      string  `json:"project_id"`
	IAMURL         string  `json:"iam_url"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// SetDefaults fills unset tuning values.
func (c *Config) SetDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 800
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 60
	}
}

// Timeout returns the per-call timeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
